package orchestrator

import (
	"trading-advisor-bot/internal/indicator"
	"trading-advisor-bot/internal/market"
	"trading-advisor-bot/internal/planner"
)

// deriveSignal reduces a candle window to BUY/SELL/HOLD by a three-vote sum:
// trend direction, RSI zone, MACD histogram sign. Two aligned votes are
// required for an actionable signal.
func deriveSignal(window []market.Candle) planner.Signal {
	if len(window) == 0 {
		return planner.SignalHold
	}

	vote := 0

	switch indicator.TrendSummary(window) {
	case indicator.TrendBullish:
		vote++
	case indicator.TrendBearish:
		vote--
	}

	rsi := indicator.RSI(window, 14)
	switch {
	case rsi >= 60:
		vote++
	case rsi <= 40:
		vote--
	}

	macd := indicator.MACD(window)
	switch {
	case macd.Histogram > 0:
		vote++
	case macd.Histogram < 0:
		vote--
	}

	switch {
	case vote >= 2:
		return planner.SignalBuy
	case vote <= -2:
		return planner.SignalSell
	default:
		return planner.SignalHold
	}
}
