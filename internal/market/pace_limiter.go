package market

import (
	"context"
	"sync"
	"time"
)

// PaceLimiter enforces a minimum gap between requests per exchange. One
// instance is shared by every worker in the process; a caller claims the next
// slot under the lock and then sleeps outside it, so holders never block each
// other while waiting.
type PaceLimiter struct {
	mu   sync.Mutex
	next map[Exchange]time.Time
	gaps map[Exchange]time.Duration
}

// DefaultGaps returns the per-exchange minimum request spacing.
func DefaultGaps() map[Exchange]time.Duration {
	return map[Exchange]time.Duration{
		ExchangeBinance: 100 * time.Millisecond,
		ExchangeBybit:   200 * time.Millisecond,
	}
}

// NewPaceLimiter creates a limiter with the given per-exchange gaps.
func NewPaceLimiter(gaps map[Exchange]time.Duration) *PaceLimiter {
	if gaps == nil {
		gaps = DefaultGaps()
	}
	return &PaceLimiter{
		next: make(map[Exchange]time.Time),
		gaps: gaps,
	}
}

// Wait blocks until the caller may issue a request to the exchange, or the
// context is cancelled. The slot is claimed atomically, so concurrent callers
// are spaced by at least the configured gap regardless of scheduling.
func (p *PaceLimiter) Wait(ctx context.Context, exchange Exchange) error {
	p.mu.Lock()
	now := time.Now()
	slot := p.next[exchange]
	if slot.Before(now) {
		slot = now
	}
	p.next[exchange] = slot.Add(p.gaps[exchange])
	p.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Gap returns the configured spacing for an exchange.
func (p *PaceLimiter) Gap(exchange Exchange) time.Duration {
	return p.gaps[exchange]
}
