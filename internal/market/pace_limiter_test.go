package market

import (
	"context"
	"testing"
	"time"
)

func TestPaceLimiterEnforcesGap(t *testing.T) {
	gap := 50 * time.Millisecond
	limiter := NewPaceLimiter(map[Exchange]time.Duration{
		ExchangeBinance: gap,
	})

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Wait(ctx, ExchangeBinance); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	// Three calls need two full gaps between them.
	if elapsed < 2*gap {
		t.Errorf("three requests took %v, want at least %v", elapsed, 2*gap)
	}
}

func TestPaceLimiterPerExchange(t *testing.T) {
	limiter := NewPaceLimiter(map[Exchange]time.Duration{
		ExchangeBinance: 200 * time.Millisecond,
		ExchangeBybit:   200 * time.Millisecond,
	})

	ctx := context.Background()
	if err := limiter.Wait(ctx, ExchangeBinance); err != nil {
		t.Fatal(err)
	}

	// A different exchange is not delayed by the first one's slot.
	start := time.Now()
	if err := limiter.Wait(ctx, ExchangeBybit); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("bybit wait blocked for %v behind binance slot", elapsed)
	}
}

func TestPaceLimiterContextCancel(t *testing.T) {
	limiter := NewPaceLimiter(map[Exchange]time.Duration{
		ExchangeBinance: time.Hour,
	})

	ctx := context.Background()
	if err := limiter.Wait(ctx, ExchangeBinance); err != nil {
		t.Fatal(err)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(cancelCtx, ExchangeBinance); err == nil {
		t.Error("expected context error while waiting for an hour-long slot")
	}
}
