package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTelegramSend(t *testing.T) {
	var got sendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottest-token/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer server.Close()

	n := NewTelegramNotifier("test-token", server.URL, nil)
	err := n.Send(context.Background(), &Message{
		ChatID: 42,
		Kind:   KindSignal,
		Text:   "<b>BTCUSDT</b> BUY",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.ChatID != 42 || got.Text != "<b>BTCUSDT</b> BUY" {
		t.Errorf("request = %+v", got)
	}
	if got.ParseMode != "HTML" {
		t.Errorf("parse mode = %q, want HTML", got.ParseMode)
	}
}

func TestTelegramSendAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"ok": false, "error_code": 403, "description": "bot was blocked by the user"}`)
	}))
	defer server.Close()

	n := NewTelegramNotifier("test-token", server.URL, nil)
	err := n.Send(context.Background(), &Message{ChatID: 42, Text: "hi"})
	if err == nil {
		t.Fatal("expected an error for ok=false")
	}
	if !strings.Contains(err.Error(), "blocked") {
		t.Errorf("error %q does not carry the API description", err)
	}
}

func TestTelegramIsEnabled(t *testing.T) {
	if NewTelegramNotifier("", "", nil).IsEnabled() {
		t.Error("empty token reported enabled")
	}
	if !NewTelegramNotifier("tok", "", nil).IsEnabled() {
		t.Error("configured token reported disabled")
	}
}

type recordingNotifier struct {
	name    string
	enabled bool
	sent    []*Message
	err     error
}

func (r *recordingNotifier) Send(ctx context.Context, msg *Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}
func (r *recordingNotifier) Name() string    { return r.name }
func (r *recordingNotifier) IsEnabled() bool { return r.enabled }

func TestManagerFansOutToEnabledProviders(t *testing.T) {
	enabled := &recordingNotifier{name: "a", enabled: true}
	disabled := &recordingNotifier{name: "b", enabled: false}

	m := NewManager()
	m.AddNotifier(enabled)
	m.AddNotifier(disabled)

	if err := m.Send(context.Background(), &Message{ChatID: 1, Text: "x"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(enabled.sent) != 1 {
		t.Errorf("enabled provider got %d messages, want 1", len(enabled.sent))
	}
	if len(disabled.sent) != 0 {
		t.Error("disabled provider received a message")
	}
	if enabled.sent[0].Timestamp.IsZero() {
		t.Error("manager did not stamp the message")
	}
}

func TestManagerContinuesPastFailures(t *testing.T) {
	failing := &recordingNotifier{name: "a", enabled: true, err: fmt.Errorf("boom")}
	working := &recordingNotifier{name: "b", enabled: true}

	m := NewManager()
	m.AddNotifier(failing)
	m.AddNotifier(working)

	err := m.Send(context.Background(), &Message{ChatID: 1, Text: "x"})
	if err == nil {
		t.Fatal("expected the failing provider's error")
	}
	if len(working.sent) != 1 {
		t.Error("a provider failure stopped delivery to the rest")
	}
}
