package screener

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trading-advisor-bot/config"
	"trading-advisor-bot/internal/logging"
	"trading-advisor-bot/internal/market"
)

const quickScoreKey = "screener:quick:%s:%s" // symbol, timeframe

// ScoreCache caches Stage B quick scores in Redis with graceful degradation.
// When Redis is down the cache reports misses and drops writes; the screener
// falls back to calling the LLM.
type ScoreCache struct {
	client *redis.Client
	logger *logging.Logger

	mu           sync.Mutex
	failureCount int
	disabled     bool
	disabledAt   time.Time
}

const (
	cacheMaxFailures    = 3
	cacheRecoveryWindow = 30 * time.Second
)

// NewScoreCache connects to Redis. A failed ping returns a working cache in
// degraded mode, not an error.
func NewScoreCache(cfg config.RedisConfig, logger *logging.Logger) *ScoreCache {
	if logger == nil {
		logger = logging.WithComponent("screener-cache")
	}
	if !cfg.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	sc := &ScoreCache{client: client, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, screener cache degraded", "error", err)
		sc.disabled = true
		sc.disabledAt = time.Now()
	}

	return sc
}

// Get returns the cached quick score, or ok=false on miss or degraded Redis.
func (sc *ScoreCache) Get(ctx context.Context, symbol string, tf market.Timeframe) (QuickScore, bool) {
	if sc == nil || !sc.available() {
		return QuickScore{}, false
	}

	data, err := sc.client.Get(ctx, fmt.Sprintf(quickScoreKey, symbol, tf)).Bytes()
	if err == redis.Nil {
		return QuickScore{}, false
	}
	if err != nil {
		sc.recordFailure(err)
		return QuickScore{}, false
	}
	sc.recordSuccess()

	var qs QuickScore
	if err := json.Unmarshal(data, &qs); err != nil {
		return QuickScore{}, false
	}
	return qs, true
}

// Put stores a quick score for one timeframe duration. Failures are logged
// and swallowed.
func (sc *ScoreCache) Put(ctx context.Context, symbol string, tf market.Timeframe, qs QuickScore) {
	if sc == nil || !sc.available() {
		return
	}

	data, err := json.Marshal(qs)
	if err != nil {
		return
	}

	ttl := tf.Duration()
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := sc.client.Set(ctx, fmt.Sprintf(quickScoreKey, symbol, tf), data, ttl).Err(); err != nil {
		sc.recordFailure(err)
	} else {
		sc.recordSuccess()
	}
}

// Close releases the Redis connection.
func (sc *ScoreCache) Close() error {
	if sc == nil || sc.client == nil {
		return nil
	}
	return sc.client.Close()
}

func (sc *ScoreCache) available() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.disabled {
		return true
	}
	// Probe again after the recovery window.
	if time.Since(sc.disabledAt) >= cacheRecoveryWindow {
		sc.disabled = false
		sc.failureCount = 0
		return true
	}
	return false
}

func (sc *ScoreCache) recordFailure(err error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.failureCount++
	if sc.failureCount >= cacheMaxFailures && !sc.disabled {
		sc.disabled = true
		sc.disabledAt = time.Now()
		sc.logger.Warn("disabling screener cache after repeated redis failures", "error", err)
	}
}

func (sc *ScoreCache) recordSuccess() {
	sc.mu.Lock()
	sc.failureCount = 0
	sc.mu.Unlock()
}
