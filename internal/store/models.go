package store

import (
	"errors"
	"time"

	"trading-advisor-bot/internal/market"
)

// ErrLimitExceeded is returned when a tier cap blocks a write.
var ErrLimitExceeded = errors.New("tier limit exceeded")

// ErrNotAllowed is returned when a feature is not enabled for a user.
var ErrNotAllowed = errors.New("feature not allowed")

// Tier is a user's subscription level.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierAdmin   Tier = "admin"
)

// tierLimits caps the countable resources per tier. Zero means unlimited.
type tierLimits struct {
	Subscriptions int
	Alerts        int
	Schedules     int
}

var limitsByTier = map[Tier]tierLimits{
	TierFree:    {Subscriptions: 5, Alerts: 3, Schedules: 1},
	TierPremium: {Subscriptions: 50, Alerts: 20, Schedules: 5},
	TierAdmin:   {},
}

// LimitsFor returns the caps for a tier; unknown tiers get free limits.
func LimitsFor(tier Tier) (subscriptions, alerts, schedules int) {
	l, ok := limitsByTier[tier]
	if !ok {
		l = limitsByTier[TierFree]
	}
	return l.Subscriptions, l.Alerts, l.Schedules
}

// User is a chat user of the advisory service.
type User struct {
	ChatID        int64      `json:"chat_id"`
	Username      string     `json:"username"`
	Tier          Tier       `json:"tier"`
	Enabled       bool       `json:"enabled"`
	TierExpiresAt *time.Time `json:"tier_expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// EffectiveTier downgrades an expired premium to free.
func (u *User) EffectiveTier(now time.Time) Tier {
	if u.Tier == TierPremium && u.TierExpiresAt != nil && now.After(*u.TierExpiresAt) {
		return TierFree
	}
	return u.Tier
}

// Subscription is a user's interest in recurring signal checks for a symbol.
type Subscription struct {
	ID        int64            `json:"id"`
	ChatID    int64            `json:"chat_id"`
	Symbol    string           `json:"symbol"`
	Timeframe market.Timeframe `json:"timeframe"`
	CreatedAt time.Time        `json:"created_at"`
}

// AlertDirection is the cross direction of a price alert.
type AlertDirection string

const (
	AlertAbove AlertDirection = "above"
	AlertBelow AlertDirection = "below"
)

// PriceAlert fires once when price crosses the target.
type PriceAlert struct {
	ID          int64          `json:"id"`
	ChatID      int64          `json:"chat_id"`
	Symbol      string         `json:"symbol"`
	Direction   AlertDirection `json:"direction"`
	TargetPrice float64        `json:"target_price"`
	Triggered   bool           `json:"triggered"`
	CreatedAt   time.Time      `json:"created_at"`
	TriggeredAt *time.Time     `json:"triggered_at,omitempty"`
}

// Crossed reports whether price satisfies the alert condition.
func (a *PriceAlert) Crossed(price float64) bool {
	switch a.Direction {
	case AlertAbove:
		return price >= a.TargetPrice
	case AlertBelow:
		return price <= a.TargetPrice
	}
	return false
}

// ScreeningSchedule is a recurring screening request, one per
// (chat_id, timeframe).
type ScreeningSchedule struct {
	ID              int64            `json:"id"`
	ChatID          int64            `json:"chat_id"`
	Timeframe       market.Timeframe `json:"timeframe"`
	IntervalMinutes int              `json:"interval_minutes"`
	MinScore        float64          `json:"min_score"`
	Enabled         bool             `json:"enabled"`
	LastRun         *time.Time       `json:"last_run,omitempty"`
}

// validScheduleIntervals is the closed set of allowed schedule intervals.
var validScheduleIntervals = map[int]bool{
	15: true, 30: true, 60: true, 120: true, 180: true,
	240: true, 360: true, 720: true, 1440: true,
}

// ValidScheduleInterval reports whether minutes is an allowed interval.
func ValidScheduleInterval(minutes int) bool {
	return validScheduleIntervals[minutes]
}
