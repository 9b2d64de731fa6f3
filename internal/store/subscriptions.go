package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trading-advisor-bot/internal/market"
)

// AddSubscription subscribes a user to a symbol, enforcing the tier cap.
// Re-subscribing to an existing symbol is a no-op.
func (r *Repository) AddSubscription(ctx context.Context, chatID int64, symbol string, tf market.Timeframe) (*Subscription, error) {
	symbol = strings.ToUpper(symbol)
	if !tf.Valid() {
		return nil, fmt.Errorf("invalid timeframe %q", tf)
	}

	user, err := r.GetUser(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("unknown user %d", chatID)
	}

	maxSubs, _, _ := LimitsFor(user.EffectiveTier(time.Now()))
	if maxSubs > 0 {
		count, err := r.countSubscriptions(ctx, chatID)
		if err != nil {
			return nil, err
		}
		if count >= maxSubs {
			return nil, fmt.Errorf("%w: %d subscriptions", ErrLimitExceeded, maxSubs)
		}
	}

	sub := &Subscription{}
	err = r.db.Pool.QueryRow(ctx, `
		INSERT INTO subscriptions (chat_id, symbol, timeframe)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, symbol) DO UPDATE SET timeframe = EXCLUDED.timeframe
		RETURNING id, chat_id, symbol, timeframe, created_at
	`, chatID, symbol, string(tf)).Scan(&sub.ID, &sub.ChatID, &sub.Symbol, &sub.Timeframe, &sub.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add subscription: %w", err)
	}

	r.auditSubscription(ctx, chatID, symbol, "subscribe")
	return sub, nil
}

// RemoveSubscription drops a user's subscription; ok is false when no row
// matched.
func (r *Repository) RemoveSubscription(ctx context.Context, chatID int64, symbol string) (bool, error) {
	symbol = strings.ToUpper(symbol)
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM subscriptions WHERE chat_id = $1 AND symbol = $2`, chatID, symbol)
	if err != nil {
		return false, fmt.Errorf("failed to remove subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	r.auditSubscription(ctx, chatID, symbol, "unsubscribe")
	return true, nil
}

// ListSubscriptions returns a user's subscriptions ordered by symbol.
func (r *Repository) ListSubscriptions(ctx context.Context, chatID int64) ([]Subscription, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, chat_id, symbol, timeframe, created_at
		FROM subscriptions WHERE chat_id = $1 ORDER BY symbol
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.ID, &s.ChatID, &s.Symbol, &s.Timeframe, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (r *Repository) countSubscriptions(ctx context.Context, chatID int64) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE chat_id = $1`, chatID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return count, nil
}

// auditSubscription appends to the subscription audit log. Audit failures are
// logged, not propagated.
func (r *Repository) auditSubscription(ctx context.Context, chatID int64, symbol, action string) {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO subscription_history (chat_id, symbol, action) VALUES ($1, $2, $3)`,
		chatID, symbol, action)
	if err != nil {
		r.logger.Warn().Err(err).Int64("chat_id", chatID).Str("symbol", symbol).
			Msg("failed to write subscription audit row")
	}
}
