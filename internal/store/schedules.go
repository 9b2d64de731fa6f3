package store

import (
	"context"
	"fmt"
	"time"

	"trading-advisor-bot/internal/market"
)

// UpsertSchedule creates or replaces the (chat_id, timeframe) screening
// schedule, enforcing the interval set and the tier cap.
func (r *Repository) UpsertSchedule(ctx context.Context, s ScreeningSchedule) (*ScreeningSchedule, error) {
	if !s.Timeframe.Valid() {
		return nil, fmt.Errorf("invalid timeframe %q", s.Timeframe)
	}
	if !ValidScheduleInterval(s.IntervalMinutes) {
		return nil, fmt.Errorf("invalid schedule interval %d minutes", s.IntervalMinutes)
	}

	user, err := r.GetUser(ctx, s.ChatID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("unknown user %d", s.ChatID)
	}

	_, _, maxSchedules := LimitsFor(user.EffectiveTier(time.Now()))
	if maxSchedules > 0 {
		var count int
		err := r.db.Pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM screening_schedules
			WHERE chat_id = $1 AND timeframe <> $2
		`, s.ChatID, string(s.Timeframe)).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("failed to count schedules: %w", err)
		}
		if count >= maxSchedules {
			return nil, fmt.Errorf("%w: %d screening schedules", ErrLimitExceeded, maxSchedules)
		}
	}

	out := &ScreeningSchedule{}
	err = r.db.Pool.QueryRow(ctx, `
		INSERT INTO screening_schedules (chat_id, timeframe, interval_minutes, min_score, enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chat_id, timeframe) DO UPDATE SET
			interval_minutes = EXCLUDED.interval_minutes,
			min_score = EXCLUDED.min_score,
			enabled = EXCLUDED.enabled
		RETURNING id, chat_id, timeframe, interval_minutes, min_score, enabled, last_run
	`, s.ChatID, string(s.Timeframe), s.IntervalMinutes, s.MinScore, s.Enabled).Scan(
		&out.ID, &out.ChatID, &out.Timeframe, &out.IntervalMinutes,
		&out.MinScore, &out.Enabled, &out.LastRun,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert schedule: %w", err)
	}
	return out, nil
}

// ListEnabledSchedules returns every enabled schedule of enabled users.
func (r *Repository) ListEnabledSchedules(ctx context.Context) ([]ScreeningSchedule, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT s.id, s.chat_id, s.timeframe, s.interval_minutes, s.min_score, s.enabled, s.last_run
		FROM screening_schedules s
		JOIN users u ON u.chat_id = s.chat_id
		WHERE s.enabled = true AND u.enabled = true
		ORDER BY s.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []ScreeningSchedule
	for rows.Next() {
		var s ScreeningSchedule
		if err := rows.Scan(&s.ID, &s.ChatID, &s.Timeframe, &s.IntervalMinutes,
			&s.MinScore, &s.Enabled, &s.LastRun); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// ListSchedules returns a user's schedules.
func (r *Repository) ListSchedules(ctx context.Context, chatID int64) ([]ScreeningSchedule, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, chat_id, timeframe, interval_minutes, min_score, enabled, last_run
		FROM screening_schedules WHERE chat_id = $1 ORDER BY timeframe
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []ScreeningSchedule
	for rows.Next() {
		var s ScreeningSchedule
		if err := rows.Scan(&s.ID, &s.ChatID, &s.Timeframe, &s.IntervalMinutes,
			&s.MinScore, &s.Enabled, &s.LastRun); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// MarkScheduleRun stamps last_run after a screening was enqueued.
func (r *Repository) MarkScheduleRun(ctx context.Context, scheduleID int64, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE screening_schedules SET last_run = $2 WHERE id = $1`, scheduleID, at)
	if err != nil {
		return fmt.Errorf("failed to mark schedule run: %w", err)
	}
	return nil
}

// DeleteSchedule removes the (chat_id, timeframe) schedule; ok is false when
// no row matched.
func (r *Repository) DeleteSchedule(ctx context.Context, chatID int64, tf market.Timeframe) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM screening_schedules WHERE chat_id = $1 AND timeframe = $2`,
		chatID, string(tf))
	if err != nil {
		return false, fmt.Errorf("failed to delete schedule: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
