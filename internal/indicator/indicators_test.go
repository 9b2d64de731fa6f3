package indicator

import (
	"math"
	"testing"
	"time"

	"trading-advisor-bot/internal/market"
)

// candlesFromCloses builds hourly candles whose high/low hug the close.
func candlesFromCloses(closes ...float64) []market.Candle {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     c,
			High:     c + 0.5,
			Low:      c - 0.5,
			Close:    c,
			Volume:   1000,
		}
	}
	return out
}

func risingCandles(n int) []market.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	return candlesFromCloses(closes...)
}

func TestSMA(t *testing.T) {
	window := candlesFromCloses(1, 2, 3, 4, 5)
	if got := SMA(window, 5); got != 3 {
		t.Errorf("SMA(5) = %v, want 3", got)
	}
	if got := SMA(window, 2); got != 4.5 {
		t.Errorf("SMA(2) = %v, want 4.5", got)
	}
	if got := SMA(window, 10); got != 0 {
		t.Errorf("SMA over short window = %v, want 0", got)
	}
}

func TestRSINeutralOnShortWindow(t *testing.T) {
	// period+1 bars are required; period bars return the neutral default.
	window := risingCandles(14)
	if got := RSI(window, 14); got != 50.0 {
		t.Errorf("RSI on 14 bars with period 14 = %v, want 50", got)
	}
}

func TestRSIBounds(t *testing.T) {
	up := risingCandles(30)
	if got := RSI(up, 14); got != 100.0 {
		t.Errorf("RSI on monotone rise = %v, want 100", got)
	}

	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	down := candlesFromCloses(closes...)
	if got := RSI(down, 14); got != 0.0 {
		t.Errorf("RSI on monotone fall = %v, want 0", got)
	}

	flat := candlesFromCloses(100, 100, 100, 100, 100, 100, 100, 100)
	if got := RSI(flat, 5); got != 50.0 {
		t.Errorf("RSI on flat closes = %v, want 50", got)
	}
}

func TestMACDZeroUnderSlowPeriod(t *testing.T) {
	window := risingCandles(25)
	res := MACD(window)
	if res.MACD != 0 || res.Signal != 0 || res.Histogram != 0 {
		t.Errorf("MACD on 25 bars = %+v, want zeros", res)
	}
}

func TestMACDPositiveInUptrend(t *testing.T) {
	res := MACD(risingCandles(60))
	if res.MACD <= 0 {
		t.Errorf("MACD line %v in a steady uptrend, want > 0", res.MACD)
	}
	if math.Abs(res.Histogram-(res.MACD-res.Signal)) > 1e-9 {
		t.Errorf("histogram %v != macd - signal (%v)", res.Histogram, res.MACD-res.Signal)
	}
}

func TestEMASeriesConverges(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = 10
	}
	series := EMASeries(values, 9)
	if len(series) != 50 {
		t.Fatalf("series length %d, want 50", len(series))
	}
	if got := series[len(series)-1]; math.Abs(got-10) > 1e-9 {
		t.Errorf("EMA over constant 10 = %v, want 10", got)
	}

	if EMASeries(values[:5], 9) != nil {
		t.Error("EMASeries under period should be nil")
	}
}

func TestADXNeutralUnderThreshold(t *testing.T) {
	window := risingCandles(27)
	if got := ADX(window, 14); got != 25.0 {
		t.Errorf("ADX on 27 bars with period 14 = %v, want neutral 25", got)
	}
}

func TestADXDefinedAtThreshold(t *testing.T) {
	// Exactly 2*period bars is enough.
	window := risingCandles(28)
	got := ADX(window, 14)
	if got < 0 || got > 100 {
		t.Fatalf("ADX = %v, out of [0,100]", got)
	}
	// A monotone rise is strongly directional.
	if got <= 25 {
		t.Errorf("ADX on a steady uptrend = %v, want > 25", got)
	}
}

func TestVolatility(t *testing.T) {
	if got := Volatility(candlesFromCloses(100)); got != 0 {
		t.Errorf("Volatility of one bar = %v, want 0", got)
	}
	if got := Volatility(candlesFromCloses(100, 100, 100)); got != 0 {
		t.Errorf("Volatility of flat closes = %v, want 0", got)
	}

	// Sample stddev of {1, 3} is sqrt(2).
	got := Volatility(candlesFromCloses(1, 3))
	if math.Abs(got-math.Sqrt2) > 1e-9 {
		t.Errorf("Volatility = %v, want sqrt(2)", got)
	}
}

func TestTrendSummary(t *testing.T) {
	if got := TrendSummary(nil); got != TrendSideways {
		t.Errorf("empty window trend = %v, want SIDEWAYS", got)
	}
	if got := TrendSummary(risingCandles(30)); got != TrendBullish {
		t.Errorf("uptrend = %v, want BULLISH", got)
	}

	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 200 - float64(i)*2
	}
	if got := TrendSummary(candlesFromCloses(closes...)); got != TrendBearish {
		t.Errorf("downtrend = %v, want BEARISH", got)
	}

	flat := candlesFromCloses(100, 100, 100, 100, 100, 100, 100, 100, 100, 100)
	if got := TrendSummary(flat); got != TrendSideways {
		t.Errorf("flat closes = %v, want SIDEWAYS", got)
	}
}

func TestMomentum(t *testing.T) {
	window := candlesFromCloses(100, 105, 110)
	if got := Momentum(window, 2); math.Abs(got-10) > 1e-9 {
		t.Errorf("Momentum(2) = %v, want 10", got)
	}
	if got := Momentum(window, 5); got != 0 {
		t.Errorf("Momentum over short window = %v, want 0", got)
	}
}

func TestBollinger(t *testing.T) {
	flat := candlesFromCloses(100, 100, 100, 100, 100)
	res := Bollinger(flat, 5, 2)
	if res.Upper != 100 || res.Middle != 100 || res.Lower != 100 {
		t.Errorf("Bollinger over flat closes = %+v, want all 100", res)
	}

	if got := Bollinger(flat, 10, 2); got != (BollingerResult{}) {
		t.Errorf("Bollinger under period = %+v, want zero value", got)
	}
}
