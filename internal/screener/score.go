package screener

import (
	"trading-advisor-bot/internal/indicator"
	"trading-advisor-bot/internal/market"
)

// Stage A weights. They sum to 100.
const (
	weightTrend       = 30
	weightRSI         = 20
	weightMACD        = 15
	weightADX         = 10
	weightVolume      = 15
	weightPriceAction = 10
)

// DefaultGate is the Stage A score below which symbols are dropped.
const DefaultGate = 60.0

// ScoreBreakdown carries the per-component Stage A points.
type ScoreBreakdown struct {
	Trend       float64 `json:"trend"`
	RSI         float64 `json:"rsi"`
	MACD        float64 `json:"macd"`
	ADX         float64 `json:"adx"`
	Volume      float64 `json:"volume"`
	PriceAction float64 `json:"price_action"`
	Total       float64 `json:"total"`

	Direction indicator.Trend `json:"direction"`
}

// LocalScore computes the cheap Stage A score in [0,100] for a candle window.
// It is pure; the same window always yields the same breakdown.
func LocalScore(window []market.Candle) ScoreBreakdown {
	if len(window) == 0 {
		return ScoreBreakdown{Direction: indicator.TrendSideways}
	}

	trend := indicator.TrendSummary(window)
	rsi := indicator.RSI(window, 14)
	macd := indicator.MACD(window)
	adx := indicator.ADX(window, 14)
	volSMA := indicator.VolumeSMA(window, 20)
	lastVol := window[len(window)-1].Volume
	momentum := indicator.Momentum(window, 10)

	b := ScoreBreakdown{Direction: trend}

	// Trend alignment: a directional trend is worth more when momentum
	// points the same way.
	switch trend {
	case indicator.TrendBullish:
		if momentum > 0 {
			b.Trend = weightTrend
		} else {
			b.Trend = weightTrend * 2 / 3
		}
	case indicator.TrendBearish:
		if momentum < 0 {
			b.Trend = weightTrend
		} else {
			b.Trend = weightTrend * 2 / 3
		}
	default:
		b.Trend = weightTrend / 3
	}

	// RSI zone: full points for momentum zones in the trend direction,
	// partial for extremes (mean-reversion setups).
	switch trend {
	case indicator.TrendBullish:
		switch {
		case rsi > 50 && rsi <= 70:
			b.RSI = weightRSI
		case rsi > 70:
			b.RSI = weightRSI / 4
		case rsi > 40:
			b.RSI = weightRSI / 2
		}
	case indicator.TrendBearish:
		switch {
		case rsi >= 30 && rsi < 50:
			b.RSI = weightRSI
		case rsi < 30:
			b.RSI = weightRSI / 4
		case rsi < 60:
			b.RSI = weightRSI / 2
		}
	default:
		if rsi < 30 || rsi > 70 {
			b.RSI = weightRSI * 3 / 4
		} else {
			b.RSI = weightRSI / 4
		}
	}

	// MACD: histogram agreeing with the trend direction scores full points.
	switch {
	case trend == indicator.TrendBullish && macd.Histogram > 0:
		b.MACD = weightMACD
	case trend == indicator.TrendBearish && macd.Histogram < 0:
		b.MACD = weightMACD
	case macd.Histogram != 0:
		b.MACD = weightMACD / 3
	}

	// ADX: trend strength.
	switch {
	case adx >= 25:
		b.ADX = weightADX
	case adx >= 20:
		b.ADX = weightADX / 2
	}

	// Volume vs its 20-SMA.
	switch {
	case volSMA > 0 && lastVol >= 1.5*volSMA:
		b.Volume = weightVolume
	case volSMA > 0 && lastVol >= volSMA:
		b.Volume = weightVolume * 2 / 3
	}

	// Short-window price action: 10-bar momentum in the trend direction.
	absMomentum := momentum
	if absMomentum < 0 {
		absMomentum = -absMomentum
	}
	aligned := (trend == indicator.TrendBullish && momentum > 0) ||
		(trend == indicator.TrendBearish && momentum < 0)
	switch {
	case aligned && absMomentum >= 1.0:
		b.PriceAction = weightPriceAction
	case aligned && absMomentum >= 0.3:
		b.PriceAction = weightPriceAction / 2
	}

	b.Total = b.Trend + b.RSI + b.MACD + b.ADX + b.Volume + b.PriceAction
	return b
}
