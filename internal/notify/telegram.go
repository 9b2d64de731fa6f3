package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"trading-advisor-bot/internal/logging"
)

const defaultTelegramBaseURL = "https://api.telegram.org"

// TelegramNotifier sends messages through the Telegram bot API.
type TelegramNotifier struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewTelegramNotifier creates the Telegram provider. baseURL may be empty for
// the public API; tests point it at a fake.
func NewTelegramNotifier(token, baseURL string, logger *logging.Logger) *TelegramNotifier {
	if baseURL == "" {
		baseURL = defaultTelegramBaseURL
	}
	if logger == nil {
		logger = logging.WithComponent("telegram")
	}
	return &TelegramNotifier{
		token:   token,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Name identifies the provider.
func (t *TelegramNotifier) Name() string { return "telegram" }

// IsEnabled reports whether the provider is configured.
func (t *TelegramNotifier) IsEnabled() bool { return t.token != "" }

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Send delivers one message via sendMessage.
func (t *TelegramNotifier) Send(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    msg.ChatID,
		Text:      msg.Text,
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("failed to read telegram response: %w", err)
	}

	var tgResp sendMessageResponse
	if err := json.Unmarshal(respBody, &tgResp); err != nil {
		return fmt.Errorf("failed to parse telegram response: %w", err)
	}
	if !tgResp.OK {
		return fmt.Errorf("telegram error %d: %s", tgResp.ErrorCode, tgResp.Description)
	}

	t.logger.Debug("telegram message sent", "chat_id", msg.ChatID, "kind", string(msg.Kind))
	return nil
}
