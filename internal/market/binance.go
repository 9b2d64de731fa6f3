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

const (
	binanceSpotKlineLimit    = 1000
	binanceFuturesKlineLimit = 1500
)

// BinanceClient fetches klines and tickers from Binance spot and USD-M
// futures public endpoints. API keys are not required for market data.
type BinanceClient struct {
	spotURL    string
	futuresURL string
	httpClient *http.Client
	limiter    *PaceLimiter
}

// NewBinanceClient creates a Binance market data client.
func NewBinanceClient(spotURL, futuresURL string, timeout time.Duration, limiter *PaceLimiter) *BinanceClient {
	return &BinanceClient{
		spotURL:    spotURL,
		futuresURL: futuresURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// Klines fetches a candle window. MarketAuto is resolved by the fetcher, not
// here; this method expects spot or futures.
func (c *BinanceClient) Klines(ctx context.Context, symbol string, tf Timeframe, limit int, market MarketType) ([]Candle, error) {
	var endpoint string
	switch market {
	case MarketFutures:
		if limit > binanceFuturesKlineLimit {
			limit = binanceFuturesKlineLimit
		}
		endpoint = c.futuresURL + "/fapi/v1/klines"
	default:
		if limit > binanceSpotKlineLimit {
			limit = binanceSpotKlineLimit
		}
		endpoint = c.spotURL + "/api/v3/klines"
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(tf))
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, endpoint+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	candles := make([]Candle, 0, len(rawKlines))
	for _, raw := range rawKlines {
		if len(raw) < 6 {
			continue
		}
		openMs, ok := raw[0].(float64)
		if !ok {
			continue
		}
		candles = append(candles, Candle{
			OpenTime: time.UnixMilli(int64(openMs)).UTC(),
			Open:     parseFloat(raw[1]),
			High:     parseFloat(raw[2]),
			Low:      parseFloat(raw[3]),
			Close:    parseFloat(raw[4]),
			Volume:   parseFloat(raw[5]),
		})
	}

	return candles, nil
}

// Ticker24h fetches the 24-hour rolling ticker for one symbol from spot.
func (c *BinanceClient) Ticker24h(ctx context.Context, symbol string) (*Ticker24h, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, c.spotURL+"/api/v3/ticker/24hr?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var raw struct {
		Symbol             string  `json:"symbol"`
		LastPrice          float64 `json:"lastPrice,string"`
		HighPrice          float64 `json:"highPrice,string"`
		LowPrice           float64 `json:"lowPrice,string"`
		PriceChangePercent float64 `json:"priceChangePercent,string"`
		QuoteVolume        float64 `json:"quoteVolume,string"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing ticker: %w", err)
	}

	return &Ticker24h{
		Symbol:             raw.Symbol,
		LastPrice:          raw.LastPrice,
		HighPrice:          raw.HighPrice,
		LowPrice:           raw.LowPrice,
		PriceChangePercent: raw.PriceChangePercent,
		QuoteVolume:        raw.QuoteVolume,
	}, nil
}

func (c *BinanceClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, ExchangeBinance); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransientNetwork, err)
		}
	}

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

	if resp.StatusCode != http.StatusOK {
		return nil, classifyBinanceError(resp.StatusCode, body)
	}

	return body, nil
}

// classifyBinanceError maps a non-200 response to the failure taxonomy.
// Binance error bodies look like {"code":-1121,"msg":"Invalid symbol."}.
func classifyBinanceError(status int, body []byte) error {
	switch {
	case status == http.StatusTooManyRequests || status == 418:
		return fmt.Errorf("%w: status %d", ErrRateLimited, status)
	case status >= 500:
		return fmt.Errorf("%w: status %d", ErrTransientNetwork, status)
	}

	var apiErr struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil {
		// -1121 invalid symbol, -1100/-1104 bad parameters
		if apiErr.Code == -1121 || apiErr.Code == -1100 || apiErr.Code == -1104 {
			return fmt.Errorf("%w: %s", ErrSymbolUnknown, apiErr.Msg)
		}
	}

	return fmt.Errorf("%w: status %d: %s", ErrTransientNetwork, status, string(body))
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	default:
		return 0
	}
}
