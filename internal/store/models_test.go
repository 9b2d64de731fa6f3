package store

import (
	"testing"
	"time"
)

func TestLimitsFor(t *testing.T) {
	tests := []struct {
		tier      Tier
		subs      int
		alerts    int
		schedules int
	}{
		{TierFree, 5, 3, 1},
		{TierPremium, 50, 20, 5},
		{TierAdmin, 0, 0, 0}, // zero means unlimited
		{Tier("unknown"), 5, 3, 1},
	}
	for _, tt := range tests {
		subs, alerts, schedules := LimitsFor(tt.tier)
		if subs != tt.subs || alerts != tt.alerts || schedules != tt.schedules {
			t.Errorf("LimitsFor(%s) = (%d, %d, %d), want (%d, %d, %d)",
				tt.tier, subs, alerts, schedules, tt.subs, tt.alerts, tt.schedules)
		}
	}
}

func TestEffectiveTier(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		user User
		want Tier
	}{
		{"free stays free", User{Tier: TierFree}, TierFree},
		{"premium without expiry", User{Tier: TierPremium}, TierPremium},
		{"premium before expiry", User{Tier: TierPremium, TierExpiresAt: &future}, TierPremium},
		{"premium after expiry", User{Tier: TierPremium, TierExpiresAt: &past}, TierFree},
		{"admin never expires", User{Tier: TierAdmin, TierExpiresAt: &past}, TierAdmin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.EffectiveTier(now); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAlertCrossed(t *testing.T) {
	tests := []struct {
		name      string
		direction AlertDirection
		target    float64
		price     float64
		want      bool
	}{
		{"above crossed", AlertAbove, 100, 101, true},
		{"above at target", AlertAbove, 100, 100, true},
		{"above not yet", AlertAbove, 100, 99.99, false},
		{"below crossed", AlertBelow, 100, 99, true},
		{"below at target", AlertBelow, 100, 100, true},
		{"below not yet", AlertBelow, 100, 100.01, false},
		{"unknown direction", AlertDirection("sideways"), 100, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &PriceAlert{Direction: tt.direction, TargetPrice: tt.target}
			if got := a.Crossed(tt.price); got != tt.want {
				t.Errorf("Crossed(%v) = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}

func TestValidScheduleInterval(t *testing.T) {
	for _, minutes := range []int{15, 30, 60, 120, 180, 240, 360, 720, 1440} {
		if !ValidScheduleInterval(minutes) {
			t.Errorf("interval %d rejected", minutes)
		}
	}
	for _, minutes := range []int{0, 1, 45, 90, 2880, -60} {
		if ValidScheduleInterval(minutes) {
			t.Errorf("interval %d accepted", minutes)
		}
	}
}
