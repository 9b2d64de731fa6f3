package planner

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"trading-advisor-bot/internal/indicator"
	"trading-advisor-bot/internal/market"
)

// ErrPlanGenerationFailed marks LLM or parse failures. The orchestrator
// downgrades it to a HOLD plan and drops the result silently.
var ErrPlanGenerationFailed = errors.New("plan generation failed")

// Signal is the actionable verdict of a trading plan.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
	SignalWait Signal = "WAIT"
)

// Actionable reports whether the signal should reach a user.
func (s Signal) Actionable() bool {
	return s == SignalBuy || s == SignalSell
}

// Entry is a single laddered entry level.
type Entry struct {
	Level     float64 `json:"level"`
	Weight    float64 `json:"weight"`     // fraction of position, entries sum to ~1
	RiskScore int     `json:"risk_score"` // 1 (safest) .. 10
}

// TakeProfit is one target level.
type TakeProfit struct {
	Level       float64 `json:"level"`
	RewardRatio float64 `json:"reward_ratio"`
	PctGain     float64 `json:"pct_gain"`
}

// TradingPlan is the structured output of plan generation.
type TradingPlan struct {
	ID                   string          `json:"id"`
	Symbol               string          `json:"symbol"`
	Timeframe            market.Timeframe `json:"timeframe"`
	GeneratedAt          time.Time       `json:"generated_at"`
	ExpiresAt            time.Time       `json:"expires_at"`
	CurrentPrice         float64         `json:"current_price"`
	Trend                indicator.Trend `json:"trend"`
	Signal               Signal          `json:"signal"`
	Confidence           float64         `json:"confidence"`
	Reason               string          `json:"reason"`
	Entries              []Entry         `json:"entries"`
	TakeProfits          []TakeProfit    `json:"take_profits"`
	StopLoss             float64         `json:"stop_loss"`
	StopLossReason       string          `json:"stop_loss_reason"`
	RiskRewardRatio      float64         `json:"risk_reward_ratio"`
	ProbabilityOfSuccess float64         `json:"probability_of_success"`
	ExpectedReturn       float64         `json:"expected_return"`
	Scalp                bool            `json:"scalp"`
	DataSource           market.Exchange `json:"data_source"`
}

// Entry levels may sit at most this far on the wrong side of current price.
const maxEntryDrift = 0.015

// minRiskReward is the floor for entry #1's reward-to-risk.
const minRiskReward = 2.0

// planValidity maps a timeframe to plan lifetime. Timeframes outside the
// table get 4x their duration, clamped to [1h, 24h]; the source left those
// unspecified.
var planValidity = map[market.Timeframe]time.Duration{
	market.TF1h: 3 * time.Hour,
	market.TF2h: 4 * time.Hour,
	market.TF4h: 6 * time.Hour,
	market.TF1d: 12 * time.Hour,
}

// ValidityFor returns the plan lifetime for a timeframe.
func ValidityFor(tf market.Timeframe) time.Duration {
	if d, ok := planValidity[tf]; ok {
		return d
	}
	d := 4 * tf.Duration()
	if d < time.Hour {
		d = time.Hour
	}
	if d > 24*time.Hour {
		d = 24 * time.Hour
	}
	return d
}

// HoldPlan builds the minimal plan used when generation fails or validation
// rejects the LLM output.
func HoldPlan(symbol string, tf market.Timeframe, price float64, reason string) *TradingPlan {
	now := time.Now().UTC()
	return &TradingPlan{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		Timeframe:    tf,
		GeneratedAt:  now,
		ExpiresAt:    now.Add(ValidityFor(tf)),
		CurrentPrice: price,
		Trend:        indicator.TrendSideways,
		Signal:       SignalHold,
		Confidence:   0,
		Reason:       reason,
	}
}

// Validate enforces the plan post-conditions for actionable signals:
// direction-appropriate entries within 1.5% of price, stop on the losing
// side, targets on the winning side, and entry #1 reward-to-risk of at least
// 2. Non-actionable plans pass trivially.
func (p *TradingPlan) Validate() error {
	if !p.Signal.Actionable() {
		return nil
	}

	if len(p.Entries) == 0 {
		return fmt.Errorf("%s plan has no entries", p.Signal)
	}
	if len(p.TakeProfits) == 0 {
		return fmt.Errorf("%s plan has no take profits", p.Signal)
	}
	if p.StopLoss <= 0 || p.CurrentPrice <= 0 {
		return fmt.Errorf("%s plan has invalid stop or price", p.Signal)
	}

	minEntry, maxEntry := p.Entries[0].Level, p.Entries[0].Level
	weightSum := 0.0
	for _, e := range p.Entries {
		if e.Level <= 0 {
			return fmt.Errorf("entry level must be positive, got %f", e.Level)
		}
		if e.Level < minEntry {
			minEntry = e.Level
		}
		if e.Level > maxEntry {
			maxEntry = e.Level
		}
		weightSum += e.Weight
	}
	if math.Abs(weightSum-1) > 0.05 {
		return fmt.Errorf("entry weights sum to %.3f, want ~1", weightSum)
	}

	minTP, maxTP := p.TakeProfits[0].Level, p.TakeProfits[0].Level
	for _, tp := range p.TakeProfits {
		if tp.Level < minTP {
			minTP = tp.Level
		}
		if tp.Level > maxTP {
			maxTP = tp.Level
		}
	}

	entry1 := p.Entries[0].Level
	tp1 := p.TakeProfits[0].Level

	switch p.Signal {
	case SignalBuy:
		if maxEntry > p.CurrentPrice*(1+maxEntryDrift) {
			return fmt.Errorf("BUY entry %.8f above %.1f%% of price %.8f", maxEntry, maxEntryDrift*100, p.CurrentPrice)
		}
		if p.StopLoss >= minEntry {
			return fmt.Errorf("BUY stop %.8f not below min entry %.8f", p.StopLoss, minEntry)
		}
		if minTP <= maxEntry {
			return fmt.Errorf("BUY take profit %.8f not above max entry %.8f", minTP, maxEntry)
		}
		risk := entry1 - p.StopLoss
		if risk <= 0 || (tp1-entry1)/risk < minRiskReward {
			return fmt.Errorf("BUY entry #1 reward/risk below %.1f", minRiskReward)
		}
	case SignalSell:
		if minEntry < p.CurrentPrice*(1-maxEntryDrift) {
			return fmt.Errorf("SELL entry %.8f below %.1f%% of price %.8f", minEntry, maxEntryDrift*100, p.CurrentPrice)
		}
		if p.StopLoss <= maxEntry {
			return fmt.Errorf("SELL stop %.8f not above max entry %.8f", p.StopLoss, maxEntry)
		}
		if maxTP >= minEntry {
			return fmt.Errorf("SELL take profit %.8f not below min entry %.8f", maxTP, minEntry)
		}
		risk := p.StopLoss - entry1
		if risk <= 0 || (entry1-tp1)/risk < minRiskReward {
			return fmt.Errorf("SELL entry #1 reward/risk below %.1f", minRiskReward)
		}
	}

	return nil
}

// PricePrecision returns display decimals for prompt formatting: 2 for
// prices >= 1000, 4 for >= 1, 6 below.
func PricePrecision(price float64) int {
	switch {
	case price >= 1000:
		return 2
	case price >= 1:
		return 4
	default:
		return 6
	}
}
