package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CreateAlert registers a price alert, enforcing the tier cap on pending
// alerts.
func (r *Repository) CreateAlert(ctx context.Context, chatID int64, symbol string, direction AlertDirection, target float64) (*PriceAlert, error) {
	symbol = strings.ToUpper(symbol)
	if direction != AlertAbove && direction != AlertBelow {
		return nil, fmt.Errorf("invalid alert direction %q", direction)
	}
	if target <= 0 {
		return nil, fmt.Errorf("alert target price must be positive")
	}

	user, err := r.GetUser(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("unknown user %d", chatID)
	}

	_, maxAlerts, _ := LimitsFor(user.EffectiveTier(time.Now()))
	if maxAlerts > 0 {
		var count int
		err := r.db.Pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM price_alerts WHERE chat_id = $1 AND triggered = false`,
			chatID).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("failed to count alerts: %w", err)
		}
		if count >= maxAlerts {
			return nil, fmt.Errorf("%w: %d active alerts", ErrLimitExceeded, maxAlerts)
		}
	}

	alert := &PriceAlert{}
	err = r.db.Pool.QueryRow(ctx, `
		INSERT INTO price_alerts (chat_id, symbol, direction, target_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id, chat_id, symbol, direction, target_price, triggered, created_at, triggered_at
	`, chatID, symbol, string(direction), target).Scan(
		&alert.ID, &alert.ChatID, &alert.Symbol, &alert.Direction,
		&alert.TargetPrice, &alert.Triggered, &alert.CreatedAt, &alert.TriggeredAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	return alert, nil
}

// ListPendingAlerts returns every untriggered alert across all enabled users.
func (r *Repository) ListPendingAlerts(ctx context.Context) ([]PriceAlert, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT a.id, a.chat_id, a.symbol, a.direction, a.target_price, a.triggered, a.created_at, a.triggered_at
		FROM price_alerts a
		JOIN users u ON u.chat_id = a.chat_id
		WHERE a.triggered = false AND u.enabled = true
		ORDER BY a.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending alerts: %w", err)
	}
	defer rows.Close()

	var alerts []PriceAlert
	for rows.Next() {
		var a PriceAlert
		if err := rows.Scan(&a.ID, &a.ChatID, &a.Symbol, &a.Direction, &a.TargetPrice,
			&a.Triggered, &a.CreatedAt, &a.TriggeredAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ListAlerts returns a user's alerts, pending first.
func (r *Repository) ListAlerts(ctx context.Context, chatID int64) ([]PriceAlert, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, chat_id, symbol, direction, target_price, triggered, created_at, triggered_at
		FROM price_alerts WHERE chat_id = $1 ORDER BY triggered, id
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []PriceAlert
	for rows.Next() {
		var a PriceAlert
		if err := rows.Scan(&a.ID, &a.ChatID, &a.Symbol, &a.Direction, &a.TargetPrice,
			&a.Triggered, &a.CreatedAt, &a.TriggeredAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// MarkAlertTriggered flips an alert to triggered exactly once. The guard on
// triggered=false makes the flip atomic; ok is false when another worker (or
// an earlier tick) already claimed it.
func (r *Repository) MarkAlertTriggered(ctx context.Context, alertID int64) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE price_alerts SET triggered = true, triggered_at = NOW()
		WHERE id = $1 AND triggered = false
	`, alertID)
	if err != nil {
		return false, fmt.Errorf("failed to mark alert triggered: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteAlert removes a user's alert; ok is false when no row matched.
func (r *Repository) DeleteAlert(ctx context.Context, chatID, alertID int64) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM price_alerts WHERE id = $1 AND chat_id = $2`, alertID, chatID)
	if err != nil {
		return false, fmt.Errorf("failed to delete alert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
