package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"trading-advisor-bot/internal/indicator"
	"trading-advisor-bot/internal/logging"
	"trading-advisor-bot/internal/market"
)

// Completer is the LLM surface the generator needs.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// CandleSource supplies the lower-timeframe windows for confluence.
type CandleSource interface {
	Fetch(ctx context.Context, req market.FetchRequest) (*market.FetchResult, error)
}

// PlanRequest describes one plan generation.
type PlanRequest struct {
	Symbol      string
	Timeframe   market.Timeframe
	Window      []market.Candle
	Exchange    market.Exchange
	Market      market.MarketType
	RiskProfile string
}

// Generator turns a candle window into a TradingPlan via the LLM. It is
// reentrant; the shared state is the HTTP client and the gate inside the
// Completer.
type Generator struct {
	llm    Completer
	source CandleSource
	logger *logging.Logger
}

// NewGenerator creates a plan generator. source may be nil to skip
// multi-timeframe context (tests).
func NewGenerator(llm Completer, source CandleSource, logger *logging.Logger) *Generator {
	if logger == nil {
		logger = logging.WithComponent("planner")
	}
	return &Generator{llm: llm, source: source, logger: logger}
}

// Generate produces a trading plan or ErrPlanGenerationFailed. A plan that
// fails post-validation is coerced to HOLD, not reported as an error.
func (g *Generator) Generate(ctx context.Context, req PlanRequest) (*TradingPlan, error) {
	if len(req.Window) == 0 {
		return nil, fmt.Errorf("%w: empty candle window for %s", ErrPlanGenerationFailed, req.Symbol)
	}

	snap := g.buildSnapshot(ctx, req)

	response, err := g.llm.Complete(ctx, SystemPromptTradingPlan, BuildPlanPrompt(snap))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanGenerationFailed, err)
	}

	plan, err := g.parsePlan(response, snap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanGenerationFailed, err)
	}

	// The higher timeframe is authoritative: never emit a counter-trend
	// actionable signal against the primary trend.
	if !plan.Scalp {
		if snap.Trend == indicator.TrendBullish && plan.Signal == SignalSell {
			plan.Signal = SignalWait
			plan.Reason = "lower timeframe weakness treated as pullback against the primary uptrend"
			plan.Entries = nil
			plan.TakeProfits = nil
		}
		if snap.Trend == indicator.TrendBearish && plan.Signal == SignalBuy {
			plan.Signal = SignalWait
			plan.Reason = "lower timeframe strength treated as relief bounce against the primary downtrend"
			plan.Entries = nil
			plan.TakeProfits = nil
		}
	}

	if err := plan.Validate(); err != nil {
		g.logger.Warn("plan failed post-validation, coercing to HOLD",
			"symbol", req.Symbol, "timeframe", string(req.Timeframe), "error", err)
		return HoldPlan(req.Symbol, req.Timeframe, snap.CurrentPrice, err.Error()), nil
	}

	return plan, nil
}

// buildSnapshot computes the local indicator context, quality gates,
// scalping detection and multi-timeframe summaries.
func (g *Generator) buildSnapshot(ctx context.Context, req PlanRequest) marketSnapshot {
	window := req.Window
	price := market.LastClose(window)

	snap := marketSnapshot{
		Symbol:       strings.ToUpper(req.Symbol),
		Timeframe:    req.Timeframe,
		CurrentPrice: price,
		RSI:          indicator.RSI(window, 14),
		MACD:         indicator.MACD(window),
		ADX:          indicator.ADX(window, 14),
		VolumeSMA20:  indicator.VolumeSMA(window, 20),
		LastVolume:   window[len(window)-1].Volume,
		Supports:     indicator.SupportLevels(window, indicator.DefaultClusterCount),
		Resistances:  indicator.ResistanceLevels(window, indicator.DefaultClusterCount),
		Trend:        indicator.TrendSummary(window),
		RiskProfile:  req.RiskProfile,
	}

	snap.High24h, snap.Low24h = dayRange(window, req.Timeframe)

	supportLevel, supportDist, hasSupport := indicator.NearestLevel(price, snap.Supports)
	resistLevel, resistDist, hasResist := indicator.NearestLevel(price, snap.Resistances)

	nearLevel := (hasSupport && supportDist <= 0.005) || (hasResist && resistDist <= 0.005)
	snap.Gates = qualityGates{
		WeakADX:    snap.ADX < 20,
		NeutralRSI: snap.RSI >= 40 && snap.RSI <= 60,
		LowVolume:  snap.VolumeSMA20 > 0 && snap.LastVolume < snap.VolumeSMA20,
		NearLevel:  nearLevel,
	}
	if nearLevel {
		if hasSupport && supportDist <= 0.005 {
			snap.Gates.NearLevelDesc = fmt.Sprintf("support %.8g", supportLevel)
		} else {
			snap.Gates.NearLevelDesc = fmt.Sprintf("resistance %.8g", resistLevel)
		}
	}

	// Scalping: low ADX, neutral RSI, price hugging a cluster level.
	if snap.ADX < 25 && snap.RSI >= 40 && snap.RSI <= 60 {
		switch {
		case hasSupport && supportDist <= 0.005:
			snap.Scalping = scalpSetup{Active: true, Kind: "support_bounce", Level: supportLevel, Distance: supportDist}
		case hasResist && resistDist <= 0.01:
			snap.Scalping = scalpSetup{Active: true, Kind: "resistance_reject", Level: resistLevel, Distance: resistDist}
		}
	}

	snap.Summaries = g.collectConfluence(ctx, req)

	return snap
}

// collectConfluence pulls the lower-timeframe windows in the fixed hierarchy
// and summarizes each. Fetch failures drop the summary rather than failing
// the plan.
func (g *Generator) collectConfluence(ctx context.Context, req PlanRequest) []TimeframeSummary {
	lowerTFs := ConfluenceTimeframes(req.Timeframe)
	if len(lowerTFs) == 0 || g.source == nil {
		return nil
	}

	summaries := make([]TimeframeSummary, 0, len(lowerTFs))
	for _, tf := range lowerTFs {
		res, err := g.source.Fetch(ctx, market.FetchRequest{
			Symbol:    req.Symbol,
			Timeframe: tf,
			Limit:     100,
			Exchange:  req.Exchange,
			Market:    req.Market,
			UseCache:  true,
		})
		if err != nil {
			g.logger.Debug("skipping confluence timeframe",
				"symbol", req.Symbol, "timeframe", string(tf), "error", err)
			continue
		}
		summaries = append(summaries, SummarizeTimeframe(tf, res.Candles))
	}

	return summaries
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")

// stripMarkdownCodeBlock removes ```json fences some models wrap around
// JSON-mode output.
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)
	if matches := codeBlockRe.FindStringSubmatch(response); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return response
}

type rawPlan struct {
	Signal     string  `json:"signal"`
	Trend      string  `json:"trend"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Entries    []struct {
		Level     float64 `json:"level"`
		Weight    float64 `json:"weight"`
		RiskScore int     `json:"risk_score"`
	} `json:"entries"`
	TakeProfits []struct {
		Level       float64 `json:"level"`
		RewardRatio float64 `json:"reward_ratio"`
		PctGain     float64 `json:"pct_gain"`
	} `json:"take_profits"`
	StopLoss             float64 `json:"stop_loss"`
	StopLossReason       string  `json:"stop_loss_reason"`
	RiskRewardRatio      float64 `json:"risk_reward_ratio"`
	ProbabilityOfSuccess float64 `json:"probability_of_success"`
	ExpectedReturn       float64 `json:"expected_return"`
}

// parsePlan decodes the LLM response once, at this boundary, with defaults
// for missing fields. Loose maps never propagate past here.
func (g *Generator) parsePlan(response string, snap marketSnapshot) (*TradingPlan, error) {
	var raw rawPlan
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(response)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse plan JSON: %w", err)
	}

	signal, scalp := normalizeSignal(raw.Signal)

	trend := indicator.Trend(strings.ToUpper(raw.Trend))
	switch trend {
	case indicator.TrendBullish, indicator.TrendBearish, indicator.TrendSideways:
	default:
		trend = snap.Trend
	}

	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	now := time.Now().UTC()
	plan := &TradingPlan{
		ID:                   uuid.NewString(),
		Symbol:               snap.Symbol,
		Timeframe:            snap.Timeframe,
		GeneratedAt:          now,
		ExpiresAt:            now.Add(ValidityFor(snap.Timeframe)),
		CurrentPrice:         snap.CurrentPrice,
		Trend:                trend,
		Signal:               signal,
		Confidence:           confidence,
		Reason:               raw.Reason,
		StopLoss:             raw.StopLoss,
		StopLossReason:       raw.StopLossReason,
		RiskRewardRatio:      raw.RiskRewardRatio,
		ProbabilityOfSuccess: raw.ProbabilityOfSuccess,
		ExpectedReturn:       raw.ExpectedReturn,
		Scalp:                scalp,
	}

	for _, e := range raw.Entries {
		plan.Entries = append(plan.Entries, Entry{Level: e.Level, Weight: e.Weight, RiskScore: e.RiskScore})
	}
	for _, tp := range raw.TakeProfits {
		plan.TakeProfits = append(plan.TakeProfits, TakeProfit{Level: tp.Level, RewardRatio: tp.RewardRatio, PctGain: tp.PctGain})
	}

	// A single entry with no weight means the full position.
	if len(plan.Entries) == 1 && plan.Entries[0].Weight == 0 {
		plan.Entries[0].Weight = 1
	}

	return plan, nil
}

// normalizeSignal maps the LLM signal vocabulary onto the plan signal set.
// Scalp verdicts collapse to BUY/SELL with the scalp flag set.
func normalizeSignal(s string) (Signal, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG":
		return SignalBuy, false
	case "SELL", "SHORT":
		return SignalSell, false
	case "SCALP_LONG":
		return SignalBuy, true
	case "SCALP_SHORT":
		return SignalSell, true
	case "WAIT":
		return SignalWait, false
	default:
		return SignalHold, false
	}
}

// dayRange finds the highest high and lowest low over the bars covering the
// last 24 hours.
func dayRange(window []market.Candle, tf market.Timeframe) (high, low float64) {
	bars := 1
	if m := tf.Minutes(); m > 0 {
		bars = 1440 / m
		if bars < 1 {
			bars = 1
		}
	}
	tail := market.Tail(window, bars)
	high, low = tail[0].High, tail[0].Low
	for _, c := range tail {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high, low
}
