package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const bybitKlineLimit = 200

// BybitClient fetches klines from the Bybit v5 public market endpoints.
type BybitClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *PaceLimiter
}

// NewBybitClient creates a Bybit market data client.
func NewBybitClient(baseURL string, timeout time.Duration, limiter *PaceLimiter) *BybitClient {
	return &BybitClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

type bybitKlineResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string     `json:"category"`
		Symbol   string     `json:"symbol"`
		List     [][]string `json:"list"`
	} `json:"result"`
}

// Klines fetches a candle window. Bybit returns newest-first; the result is
// reversed to ascending open time before returning.
func (c *BybitClient) Klines(ctx context.Context, symbol string, tf Timeframe, limit int, market MarketType) ([]Candle, error) {
	if limit > bybitKlineLimit {
		limit = bybitKlineLimit
	}

	category := "spot"
	if market == MarketFutures {
		category = "linear"
	}

	params := url.Values{}
	params.Set("category", category)
	params.Set("symbol", symbol)
	params.Set("interval", tf.BybitInterval())
	params.Set("limit", strconv.Itoa(limit))

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, ExchangeBybit); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransientNetwork, err)
		}
	}

	endpoint := c.baseURL + "/v5/market/kline?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrTransientNetwork, resp.StatusCode, string(body))
	}

	var klineResp bybitKlineResponse
	if err := json.Unmarshal(body, &klineResp); err != nil {
		return nil, fmt.Errorf("error parsing kline response: %w", err)
	}

	if klineResp.RetCode != 0 {
		return nil, classifyBybitError(klineResp.RetCode, klineResp.RetMsg)
	}

	// Newest-first on the wire; reverse while parsing.
	list := klineResp.Result.List
	candles := make([]Candle, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		row := list[i]
		if len(row) < 6 {
			continue
		}
		openMs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		candles = append(candles, Candle{
			OpenTime: time.UnixMilli(openMs).UTC(),
			Open:     parseFloatStr(row[1]),
			High:     parseFloatStr(row[2]),
			Low:      parseFloatStr(row[3]),
			Close:    parseFloatStr(row[4]),
			Volume:   parseFloatStr(row[5]),
		})
	}

	return candles, nil
}

// classifyBybitError maps a non-zero retCode to the failure taxonomy.
// 10001 is parameter error (bad symbol or interval), 10006 is rate limit.
func classifyBybitError(retCode int, retMsg string) error {
	switch retCode {
	case 10001, 110001:
		return fmt.Errorf("%w: retCode %d: %s", ErrSymbolUnknown, retCode, retMsg)
	case 10006, 10018:
		return fmt.Errorf("%w: retCode %d: %s", ErrRateLimited, retCode, retMsg)
	default:
		return fmt.Errorf("%w: retCode %d: %s", ErrTransientNetwork, retCode, retMsg)
	}
}

func parseFloatStr(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
