package indicator

import (
	"math"

	"trading-advisor-bot/internal/market"
)

// Every function in this package is total: at or below its data threshold it
// returns the documented neutral default instead of failing. Callers rely on
// that and never check window length first.

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA calculates the simple moving average of closes over the last period bars.
func SMA(window []market.Candle, period int) float64 {
	if period <= 0 || len(window) < period {
		return 0
	}

	sum := 0.0
	for i := len(window) - period; i < len(window); i++ {
		sum += window[i].Close
	}
	return sum / float64(period)
}

// VolumeSMA calculates the simple moving average of volume.
func VolumeSMA(window []market.Candle, period int) float64 {
	if period <= 0 || len(window) < period {
		return 0
	}

	sum := 0.0
	for i := len(window) - period; i < len(window); i++ {
		sum += window[i].Volume
	}
	return sum / float64(period)
}

// EMASeries calculates an exponential moving average series with smoothing
// factor 2/(period+1). The first period-1 entries are backfilled with the
// seed SMA so the series is total over the input.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	out := make([]float64, len(values))

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	seed /= float64(period)

	k := 2.0 / float64(period+1)
	for i := 0; i < period; i++ {
		out[i] = seed
	}
	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}

	return out
}

// EMA returns the latest EMA value over closes.
func EMA(window []market.Candle, period int) float64 {
	series := EMASeries(market.Closes(window), period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// ============================================================================
// RSI
// ============================================================================

// RSI calculates the Relative Strength Index over the last period changes.
// Returns the neutral 50.0 when the window is too short.
func RSI(window []market.Candle, period int) float64 {
	if period <= 0 || len(window) < period+1 {
		return 50.0
	}

	gains := 0.0
	losses := 0.0
	for i := len(window) - period; i < len(window); i++ {
		change := window[i].Close - window[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	if losses == 0 {
		if gains == 0 {
			return 50.0
		}
		return 100.0
	}

	rs := gains / losses
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// MACD
// ============================================================================

// MACDResult holds MACD line, signal line and histogram values.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD calculates MACD(12,26) with a true 9-period EMA signal line computed
// over the MACD series. Returns zeros when the window is shorter than the
// slow period.
func MACD(window []market.Candle) MACDResult {
	return MACDWithPeriods(window, 12, 26, 9)
}

// MACDWithPeriods calculates MACD with explicit fast/slow/signal periods.
func MACDWithPeriods(window []market.Candle, fast, slow, signal int) MACDResult {
	if len(window) < slow {
		return MACDResult{}
	}

	closes := market.Closes(window)
	fastEMA := EMASeries(closes, fast)
	slowEMA := EMASeries(closes, slow)

	macdSeries := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		macdSeries = append(macdSeries, fastEMA[i]-slowEMA[i])
	}

	macdLine := macdSeries[len(macdSeries)-1]

	signalLine := macdLine
	if len(macdSeries) >= signal {
		sigSeries := EMASeries(macdSeries, signal)
		signalLine = sigSeries[len(sigSeries)-1]
	}

	return MACDResult{
		MACD:      macdLine,
		Signal:    signalLine,
		Histogram: macdLine - signalLine,
	}
}

// ============================================================================
// ADX
// ============================================================================

// ADX calculates the Average Directional Index with Wilder smoothing.
// Returns the neutral 25.0 when the window is shorter than 2*period.
func ADX(window []market.Candle, period int) float64 {
	if period <= 0 || len(window) < 2*period {
		return 25.0
	}

	n := len(window)
	trs := make([]float64, 0, n-1)
	plusDMs := make([]float64, 0, n-1)
	minusDMs := make([]float64, 0, n-1)

	for i := 1; i < n; i++ {
		cur, prev := window[i], window[i-1]

		tr := math.Max(cur.High-cur.Low,
			math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
		trs = append(trs, tr)

		upMove := cur.High - prev.High
		downMove := prev.Low - cur.Low
		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		plusDMs = append(plusDMs, plusDM)
		minusDMs = append(minusDMs, minusDM)
	}

	// Seed Wilder sums with the first period movements.
	smTR, smPlus, smMinus := 0.0, 0.0, 0.0
	for i := 0; i < period; i++ {
		smTR += trs[i]
		smPlus += plusDMs[i]
		smMinus += minusDMs[i]
	}

	dxs := make([]float64, 0, len(trs)-period+1)
	appendDX := func() {
		if smTR == 0 {
			return
		}
		plusDI := 100 * smPlus / smTR
		minusDI := 100 * smMinus / smTR
		sum := plusDI + minusDI
		if sum == 0 {
			return
		}
		dxs = append(dxs, 100*math.Abs(plusDI-minusDI)/sum)
	}
	appendDX()

	for i := period; i < len(trs); i++ {
		smTR = smTR - smTR/float64(period) + trs[i]
		smPlus = smPlus - smPlus/float64(period) + plusDMs[i]
		smMinus = smMinus - smMinus/float64(period) + minusDMs[i]
		appendDX()
	}

	if len(dxs) == 0 {
		return 25.0
	}

	// First ADX is a simple mean of the leading DX values, then Wilder
	// smoothing over the remainder.
	seedLen := period
	if seedLen > len(dxs) {
		seedLen = len(dxs)
	}
	adx := 0.0
	for i := 0; i < seedLen; i++ {
		adx += dxs[i]
	}
	adx /= float64(seedLen)
	for i := seedLen; i < len(dxs); i++ {
		adx = (adx*float64(period-1) + dxs[i]) / float64(period)
	}

	return adx
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerResult holds Bollinger Bands values.
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger calculates Bollinger Bands over closes.
func Bollinger(window []market.Candle, period int, stdDevMultiplier float64) BollingerResult {
	if period <= 0 || len(window) < period {
		return BollingerResult{}
	}

	middle := SMA(window, period)

	variance := 0.0
	for i := len(window) - period; i < len(window); i++ {
		diff := window[i].Close - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	return BollingerResult{
		Upper:  middle + stdDev*stdDevMultiplier,
		Middle: middle,
		Lower:  middle - stdDev*stdDevMultiplier,
	}
}

// ============================================================================
// VOLATILITY & TREND
// ============================================================================

// Volatility is the sample standard deviation of closes over the window.
func Volatility(window []market.Candle) float64 {
	if len(window) < 2 {
		return 0
	}

	closes := market.Closes(window)
	mean := 0.0
	for _, c := range closes {
		mean += c
	}
	mean /= float64(len(closes))

	variance := 0.0
	for _, c := range closes {
		diff := c - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(closes)-1))
}

// Trend labels a directional bias.
type Trend string

const (
	TrendBullish  Trend = "BULLISH"
	TrendBearish  Trend = "BEARISH"
	TrendSideways Trend = "SIDEWAYS"
)

// trendBand is the dead zone around the 10-bar midpoint within which the
// trend reads SIDEWAYS.
const trendBand = 0.005

// TrendSummary classifies the window by comparing the last close to the
// midpoint of the highest high and lowest low of the last 10 bars.
func TrendSummary(window []market.Candle) Trend {
	if len(window) == 0 {
		return TrendSideways
	}

	tail := market.Tail(window, 10)
	maxHigh := tail[0].High
	minLow := tail[0].Low
	for _, c := range tail {
		if c.High > maxHigh {
			maxHigh = c.High
		}
		if c.Low < minLow {
			minLow = c.Low
		}
	}

	mid := (maxHigh + minLow) / 2
	last := window[len(window)-1].Close

	switch {
	case mid > 0 && last > mid*(1+trendBand):
		return TrendBullish
	case mid > 0 && last < mid*(1-trendBand):
		return TrendBearish
	default:
		return TrendSideways
	}
}

// Momentum returns the percentage price change over the last period bars.
func Momentum(window []market.Candle, period int) float64 {
	if period <= 0 || len(window) < period+1 {
		return 0
	}

	current := window[len(window)-1].Close
	past := window[len(window)-period-1].Close
	if past == 0 {
		return 0
	}
	return (current - past) / past * 100
}
