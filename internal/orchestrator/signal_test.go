package orchestrator

import (
	"testing"
	"time"

	"trading-advisor-bot/internal/market"
	"trading-advisor-bot/internal/planner"
)

func signalWindowFrom(start, step float64, n int) []market.Candle {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, n)
	for i := range out {
		c := start + step*float64(i)
		out[i] = market.Candle{
			OpenTime: base.Add(time.Duration(i) * 4 * time.Hour),
			Open:     c, High: c + 0.5, Low: c - 0.5, Close: c,
			Volume: 1000,
		}
	}
	return out
}

func TestDeriveSignalBuyOnAlignedVotes(t *testing.T) {
	// Steady uptrend: bullish trend, RSI pinned high, positive histogram.
	window := signalWindowFrom(100, 1, 100)
	if got := deriveSignal(window); got != planner.SignalBuy {
		t.Errorf("uptrend signal = %v, want BUY", got)
	}
}

func TestDeriveSignalSellOnAlignedVotes(t *testing.T) {
	window := signalWindowFrom(300, -1, 100)
	if got := deriveSignal(window); got != planner.SignalSell {
		t.Errorf("downtrend signal = %v, want SELL", got)
	}
}

func TestDeriveSignalHoldWithoutConsensus(t *testing.T) {
	// Flat closes: sideways trend, neutral RSI, zero histogram.
	window := signalWindowFrom(100, 0, 100)
	if got := deriveSignal(window); got != planner.SignalHold {
		t.Errorf("flat window signal = %v, want HOLD", got)
	}
}

func TestDeriveSignalEmptyWindowHolds(t *testing.T) {
	if got := deriveSignal(nil); got != planner.SignalHold {
		t.Errorf("empty window signal = %v, want HOLD", got)
	}
}
