package planner

import (
	"fmt"
	"strings"

	"trading-advisor-bot/internal/indicator"
	"trading-advisor-bot/internal/market"
)

// SystemPromptTradingPlan instructs the LLM to produce a laddered trading
// plan as strict JSON.
const SystemPromptTradingPlan = `You are an expert cryptocurrency trading analyst producing structured trading plans.

Your response must be valid JSON with exactly this structure:
{
  "signal": "BUY" | "SELL" | "HOLD" | "WAIT" | "SCALP_LONG" | "SCALP_SHORT",
  "trend": "BULLISH" | "BEARISH" | "SIDEWAYS",
  "confidence": 0.0-1.0,
  "reason": "brief explanation",
  "entries": [
    {"level": number, "weight": 0.0-1.0, "risk_score": 1-10}
  ],
  "take_profits": [
    {"level": number, "reward_ratio": number, "pct_gain": number}
  ],
  "stop_loss": number,
  "stop_loss_reason": "brief explanation",
  "risk_reward_ratio": number,
  "probability_of_success": 0.0-1.0,
  "expected_return": number
}

Hard rules:
- Entry levels must sit within 1.5% of the current price on the correct side for the signal direction.
- Entry weights must sum to 1.0.
- The stop loss goes on the losing side of every entry; every take profit goes on the winning side.
- Entry #1 must offer a reward-to-risk of at least 2:1.
- When conditions do not justify a trade, return HOLD or WAIT with empty entries and take_profits.
Be conservative with confidence. Only exceed 0.7 when multiple indicators align.`

// mtfHierarchy lists the lower timeframes consulted for confluence per
// primary timeframe.
var mtfHierarchy = map[market.Timeframe][]market.Timeframe{
	market.TF1d: {market.TF4h, market.TF1h},
	market.TF4h: {market.TF1h},
	market.TF2h: {market.TF1h},
}

// ConfluenceTimeframes returns the lower timeframes consulted for tf.
func ConfluenceTimeframes(tf market.Timeframe) []market.Timeframe {
	return mtfHierarchy[tf]
}

// TimeframeSummary condenses a lower timeframe into prompt context.
type TimeframeSummary struct {
	Timeframe   market.Timeframe
	Trend       indicator.Trend
	SMAPosition string // "above" or "below" the 20-SMA
	Momentum    float64
}

// SummarizeTimeframe computes the lower-timeframe digest.
func SummarizeTimeframe(tf market.Timeframe, window []market.Candle) TimeframeSummary {
	position := "below"
	if sma := indicator.SMA(window, 20); sma > 0 && market.LastClose(window) >= sma {
		position = "above"
	}
	return TimeframeSummary{
		Timeframe:   tf,
		Trend:       indicator.TrendSummary(window),
		SMAPosition: position,
		Momentum:    indicator.Momentum(window, 10),
	}
}

// marketSnapshot carries the locally computed context the prompt is built
// from.
type marketSnapshot struct {
	Symbol       string
	Timeframe    market.Timeframe
	CurrentPrice float64
	RSI          float64
	MACD         indicator.MACDResult
	ADX          float64
	VolumeSMA20  float64
	LastVolume   float64
	Supports     []float64
	Resistances  []float64
	High24h      float64
	Low24h       float64
	Trend        indicator.Trend
	Gates        qualityGates
	Scalping     scalpSetup
	Summaries    []TimeframeSummary
	RiskProfile  string
}

// qualityGates records which local no-trade conditions fired.
type qualityGates struct {
	WeakADX       bool // ADX < 20
	NeutralRSI    bool // RSI in [40, 60]
	LowVolume     bool // last volume below the 20-SMA
	NearLevel     bool // price within 0.5% of a cluster level
	NearLevelDesc string
}

// Any reports whether at least one gate fired.
func (g qualityGates) Any() bool {
	return g.WeakADX || g.NeutralRSI || g.LowVolume || g.NearLevel
}

// scalpSetup describes a detected range-scalp opportunity near a cluster
// level.
type scalpSetup struct {
	Active    bool
	Kind      string // "support_bounce" or "resistance_reject"
	Level     float64
	Distance  float64 // relative distance from price to the level
}

// BuildPlanPrompt renders the user prompt for plan generation.
func BuildPlanPrompt(snap marketSnapshot) string {
	prec := PricePrecision(snap.CurrentPrice)
	p := func(v float64) string {
		return fmt.Sprintf("%.*f", prec, v)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Symbol: %s\nTimeframe: %s\nCurrent price: %s\n\n", snap.Symbol, snap.Timeframe, p(snap.CurrentPrice))

	b.WriteString("Indicators:\n")
	fmt.Fprintf(&b, "- RSI(14): %.1f\n", snap.RSI)
	fmt.Fprintf(&b, "- MACD: %.6f signal %.6f histogram %.6f\n", snap.MACD.MACD, snap.MACD.Signal, snap.MACD.Histogram)
	fmt.Fprintf(&b, "- ADX(14): %.1f\n", snap.ADX)
	fmt.Fprintf(&b, "- Volume: %.2f vs 20-SMA %.2f\n", snap.LastVolume, snap.VolumeSMA20)
	fmt.Fprintf(&b, "- Local trend: %s\n", snap.Trend)
	fmt.Fprintf(&b, "- 24h range: %s - %s\n", p(snap.Low24h), p(snap.High24h))

	if len(snap.Supports) > 0 {
		b.WriteString("- Support clusters: ")
		b.WriteString(joinLevels(snap.Supports, prec))
		b.WriteString("\n")
	}
	if len(snap.Resistances) > 0 {
		b.WriteString("- Resistance clusters: ")
		b.WriteString(joinLevels(snap.Resistances, prec))
		b.WriteString("\n")
	}

	if len(snap.Summaries) > 0 {
		b.WriteString("\nMulti-timeframe context (the higher timeframe is authoritative):\n")
		for _, s := range snap.Summaries {
			fmt.Fprintf(&b, "- %s: trend %s, price %s 20-SMA, momentum %+.2f%%\n",
				s.Timeframe, s.Trend, s.SMAPosition, s.Momentum)
		}
		b.WriteString("If a lower timeframe opposes the primary timeframe trend, do NOT emit a counter-trend signal; return WAIT or a signal aligned with the primary trend, mentioning the lower timeframe as pullback context.\n")
	}

	if snap.Scalping.Active {
		fmt.Fprintf(&b, "\nScalping mode is ACTIVE (%s at %s, %.2f%% away, low ADX, neutral RSI).\n",
			snap.Scalping.Kind, p(snap.Scalping.Level), snap.Scalping.Distance*100)
		b.WriteString("Quality gates are relaxed. If the level holds, return SCALP_LONG (at support) or SCALP_SHORT (at resistance) with a tight stop of 0.3-0.5% and take profits of 0.5-1.5%. Otherwise return WAIT.\n")
	} else if snap.Gates.Any() {
		b.WriteString("\nQuality gates failed:\n")
		if snap.Gates.WeakADX {
			b.WriteString("- ADX below 20: no tradeable trend\n")
		}
		if snap.Gates.NeutralRSI {
			b.WriteString("- RSI in the 40-60 neutral zone\n")
		}
		if snap.Gates.LowVolume {
			b.WriteString("- volume below its 20-SMA\n")
		}
		if snap.Gates.NearLevel {
			fmt.Fprintf(&b, "- price within 0.5%% of a cluster level (%s)\n", snap.Gates.NearLevelDesc)
		}
		b.WriteString("You MUST return HOLD with empty entries and take_profits.\n")
	}

	if snap.RiskProfile != "" {
		fmt.Fprintf(&b, "\nUser risk profile: %s\n", snap.RiskProfile)
	}

	b.WriteString("\nProduce the trading plan JSON now.")

	return b.String()
}

func joinLevels(levels []float64, prec int) string {
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = fmt.Sprintf("%.*f", prec, l)
	}
	return strings.Join(parts, ", ")
}
