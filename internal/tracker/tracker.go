// Package tracker keeps an append-only history of emitted trading plans and
// their eventual outcomes.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"trading-advisor-bot/internal/planner"
	"trading-advisor-bot/internal/store"
)

// Outcome is the resolved state of a recorded signal.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeWon       Outcome = "won"
	OutcomeLost      Outcome = "lost"
	OutcomeBreakeven Outcome = "breakeven"
)

// SignalRecord is one row of signal history.
type SignalRecord struct {
	ID           int64      `json:"id"`
	PlanID       string     `json:"plan_id"`
	ChatID       int64      `json:"chat_id"`
	Symbol       string     `json:"symbol"`
	Timeframe    string     `json:"timeframe"`
	Signal       string     `json:"signal"`
	Confidence   float64    `json:"confidence"`
	EntryPrice   *float64   `json:"entry_price,omitempty"`
	StopLoss     *float64   `json:"stop_loss,omitempty"`
	TakeProfit   *float64   `json:"take_profit,omitempty"`
	CurrentPrice float64    `json:"current_price"`
	Scalp        bool       `json:"scalp"`
	Outcome      Outcome    `json:"outcome"`
	ActualReturn *float64   `json:"actual_return,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// Stats aggregates signal accuracy. WinRate is a percentage.
type Stats struct {
	Total     int     `json:"total"`
	Pending   int     `json:"pending"`
	Won       int     `json:"won"`
	Lost      int     `json:"lost"`
	Breakeven int     `json:"breakeven"`
	WinRate   float64 `json:"win_rate"`
	AvgReturn float64 `json:"avg_return"`
}

// Tracker records and queries signal history. Writes are strictly append
// plus outcome updates.
type Tracker struct {
	db     *store.DB
	logger zerolog.Logger
}

// New creates a tracker over the shared pool.
func New(db *store.DB, logger zerolog.Logger) *Tracker {
	return &Tracker{db: db, logger: logger}
}

// Record appends an emitted plan and returns the signal id.
func (t *Tracker) Record(ctx context.Context, plan *planner.TradingPlan, chatID int64) (int64, error) {
	var entry, stop, tp *float64
	if len(plan.Entries) > 0 {
		entry = &plan.Entries[0].Level
	}
	if plan.StopLoss > 0 {
		stop = &plan.StopLoss
	}
	if len(plan.TakeProfits) > 0 {
		tp = &plan.TakeProfits[0].Level
	}

	var id int64
	err := t.db.Pool.QueryRow(ctx, `
		INSERT INTO signal_history (
			plan_id, chat_id, symbol, timeframe, signal, confidence,
			entry_price, stop_loss, take_profit, current_price, scalp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, plan.ID, chatID, plan.Symbol, string(plan.Timeframe), string(plan.Signal),
		plan.Confidence, entry, stop, tp, plan.CurrentPrice, plan.Scalp).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record signal: %w", err)
	}

	t.logger.Info().Int64("signal_id", id).Str("symbol", plan.Symbol).
		Str("signal", string(plan.Signal)).Int64("chat_id", chatID).
		Msg("signal recorded")
	return id, nil
}

// UpdateOutcome resolves a pending signal. actualReturn is the realized P&L
// percentage, nil when unknown.
func (t *Tracker) UpdateOutcome(ctx context.Context, signalID int64, outcome Outcome, actualReturn *float64) error {
	switch outcome {
	case OutcomeWon, OutcomeLost, OutcomeBreakeven:
	default:
		return fmt.Errorf("invalid outcome %q", outcome)
	}

	tag, err := t.db.Pool.Exec(ctx, `
		UPDATE signal_history
		SET outcome = $2, actual_outcome = $3, resolved_at = NOW()
		WHERE id = $1 AND outcome = 'pending'
	`, signalID, string(outcome), actualReturn)
	if err != nil {
		return fmt.Errorf("failed to update outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("signal %d not found or already resolved", signalID)
	}
	return nil
}

const recordColumns = `
	id, plan_id, chat_id, symbol, timeframe, signal, confidence,
	entry_price, stop_loss, take_profit, current_price, scalp,
	outcome, actual_outcome, created_at, resolved_at
`

func scanRecord(row pgx.Row) (*SignalRecord, error) {
	rec := &SignalRecord{}
	err := row.Scan(
		&rec.ID, &rec.PlanID, &rec.ChatID, &rec.Symbol, &rec.Timeframe,
		&rec.Signal, &rec.Confidence, &rec.EntryPrice, &rec.StopLoss,
		&rec.TakeProfit, &rec.CurrentPrice, &rec.Scalp, &rec.Outcome,
		&rec.ActualReturn, &rec.CreatedAt, &rec.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (t *Tracker) queryRecords(ctx context.Context, query string, args ...any) ([]SignalRecord, error) {
	rows, err := t.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal history: %w", err)
	}
	defer rows.Close()

	var records []SignalRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// History returns a user's most recent signals.
func (t *Tracker) History(ctx context.Context, chatID int64, limit int) ([]SignalRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return t.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM signal_history WHERE chat_id = $1 ORDER BY created_at DESC LIMIT $2`,
		chatID, limit)
}

// Best returns the resolved signals with the highest realized return.
func (t *Tracker) Best(ctx context.Context, chatID int64, limit int) ([]SignalRecord, error) {
	if limit <= 0 {
		limit = 5
	}
	return t.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM signal_history
		WHERE chat_id = $1 AND actual_outcome IS NOT NULL
		ORDER BY actual_outcome DESC LIMIT $2
	`, chatID, limit)
}

// Worst returns the resolved signals with the lowest realized return.
func (t *Tracker) Worst(ctx context.Context, chatID int64, limit int) ([]SignalRecord, error) {
	if limit <= 0 {
		limit = 5
	}
	return t.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM signal_history
		WHERE chat_id = $1 AND actual_outcome IS NOT NULL
		ORDER BY actual_outcome ASC LIMIT $2
	`, chatID, limit)
}

// BySymbol returns a user's signals for one symbol.
func (t *Tracker) BySymbol(ctx context.Context, chatID int64, symbol string, limit int) ([]SignalRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return t.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM signal_history
		WHERE chat_id = $1 AND symbol = $2 ORDER BY created_at DESC LIMIT $3
	`, chatID, symbol, limit)
}

// ByTimeframe returns a user's signals for one timeframe.
func (t *Tracker) ByTimeframe(ctx context.Context, chatID int64, timeframe string, limit int) ([]SignalRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return t.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM signal_history
		WHERE chat_id = $1 AND timeframe = $2 ORDER BY created_at DESC LIMIT $3
	`, chatID, timeframe, limit)
}

// UserStats aggregates one user's accuracy. Win rate counts breakeven in the
// denominator.
func (t *Tracker) UserStats(ctx context.Context, chatID int64) (*Stats, error) {
	return t.stats(ctx, `WHERE chat_id = $1`, chatID)
}

// GlobalStats aggregates accuracy across all users.
func (t *Tracker) GlobalStats(ctx context.Context) (*Stats, error) {
	return t.stats(ctx, ``)
}

func (t *Tracker) stats(ctx context.Context, where string, args ...any) (*Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE outcome = 'pending'),
			COUNT(*) FILTER (WHERE outcome = 'won'),
			COUNT(*) FILTER (WHERE outcome = 'lost'),
			COUNT(*) FILTER (WHERE outcome = 'breakeven'),
			COALESCE(AVG(actual_outcome) FILTER (WHERE actual_outcome IS NOT NULL), 0)
		FROM signal_history ` + where

	s := &Stats{}
	err := t.db.Pool.QueryRow(ctx, query, args...).Scan(
		&s.Total, &s.Pending, &s.Won, &s.Lost, &s.Breakeven, &s.AvgReturn)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}

	resolved := s.Won + s.Lost + s.Breakeven
	if resolved > 0 {
		s.WinRate = float64(s.Won) / float64(resolved) * 100
	}
	return s, nil
}
