package market

import (
	"fmt"
	"time"
)

// Exchange identifies a supported candle source.
type Exchange string

const (
	ExchangeBinance Exchange = "binance"
	ExchangeBybit   Exchange = "bybit"
)

// Alternate returns the fallback exchange for e.
func (e Exchange) Alternate() Exchange {
	if e == ExchangeBinance {
		return ExchangeBybit
	}
	return ExchangeBinance
}

// MarketType selects the venue within an exchange.
type MarketType string

const (
	MarketSpot    MarketType = "spot"
	MarketFutures MarketType = "futures"
	// MarketAuto lets the fetcher pick: futures first, then spot.
	MarketAuto MarketType = "auto"
)

// Timeframe is a candle duration label from the closed supported set.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF2h  Timeframe = "2h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
	TF1w  Timeframe = "1w"
)

var timeframeMinutes = map[Timeframe]int{
	TF1m:  1,
	TF5m:  5,
	TF15m: 15,
	TF30m: 30,
	TF1h:  60,
	TF2h:  120,
	TF4h:  240,
	TF1d:  1440,
	TF1w:  10080,
}

// ParseTimeframe validates a timeframe label.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeMinutes[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe: %q", s)
	}
	return tf, nil
}

// Minutes returns the canonical duration in minutes.
func (tf Timeframe) Minutes() int {
	return timeframeMinutes[tf]
}

// Duration returns the canonical duration.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.Minutes()) * time.Minute
}

// Valid reports whether tf belongs to the supported set.
func (tf Timeframe) Valid() bool {
	_, ok := timeframeMinutes[tf]
	return ok
}

// BybitInterval maps a timeframe to Bybit's v5 interval notation.
func (tf Timeframe) BybitInterval() string {
	switch tf {
	case TF1d:
		return "D"
	case TF1w:
		return "W"
	default:
		return fmt.Sprintf("%d", tf.Minutes())
	}
}

// Candle is a single OHLCV bar.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Validate checks the OHLCV invariant.
func (c Candle) Validate() error {
	lo, hi := c.Open, c.Open
	if c.Close < lo {
		lo = c.Close
	}
	if c.Close > hi {
		hi = c.Close
	}
	if c.Low > lo || c.High < hi {
		return fmt.Errorf("candle at %s violates low <= open/close <= high", c.OpenTime.Format(time.RFC3339))
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle at %s has negative volume", c.OpenTime.Format(time.RFC3339))
	}
	return nil
}

// Closes extracts the close series from a window.
func Closes(window []Candle) []float64 {
	out := make([]float64, len(window))
	for i, c := range window {
		out[i] = c.Close
	}
	return out
}

// Tail returns the last n candles of the window (all of it if shorter).
func Tail(window []Candle, n int) []Candle {
	if len(window) <= n {
		return window
	}
	return window[len(window)-n:]
}

// LastClose returns the most recent close, or 0 for an empty window.
func LastClose(window []Candle) float64 {
	if len(window) == 0 {
		return 0
	}
	return window[len(window)-1].Close
}

// Ticker24h is the Binance 24-hour rolling ticker subset the advisor uses.
type Ticker24h struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"last_price"`
	HighPrice          float64 `json:"high_price"`
	LowPrice           float64 `json:"low_price"`
	PriceChangePercent float64 `json:"price_change_percent"`
	QuoteVolume        float64 `json:"quote_volume"`
}
