package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Preference keys the orchestrator reads on the hot path.
const (
	PrefDefaultExchange = "default_exchange"
	PrefMarketType      = "market_type"
)

// Repository bundles all store operations over one pool.
type Repository struct {
	db     *DB
	logger zerolog.Logger
}

// NewRepository creates the repository.
func NewRepository(db *DB, logger zerolog.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// UpsertUser creates a user row or refreshes the username.
func (r *Repository) UpsertUser(ctx context.Context, chatID int64, username string) (*User, error) {
	query := `
		INSERT INTO users (chat_id, username)
		VALUES ($1, $2)
		ON CONFLICT (chat_id) DO UPDATE SET username = EXCLUDED.username, updated_at = NOW()
		RETURNING chat_id, COALESCE(username, ''), tier, enabled, tier_expires_at, created_at
	`

	user := &User{}
	err := r.db.Pool.QueryRow(ctx, query, chatID, username).Scan(
		&user.ChatID, &user.Username, &user.Tier, &user.Enabled,
		&user.TierExpiresAt, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, nil
}

// GetUser retrieves a user by chat id, nil when absent.
func (r *Repository) GetUser(ctx context.Context, chatID int64) (*User, error) {
	query := `
		SELECT chat_id, COALESCE(username, ''), tier, enabled, tier_expires_at, created_at
		FROM users WHERE chat_id = $1
	`

	user := &User{}
	err := r.db.Pool.QueryRow(ctx, query, chatID).Scan(
		&user.ChatID, &user.Username, &user.Tier, &user.Enabled,
		&user.TierExpiresAt, &user.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListEnabledUsers returns every user eligible for outbound traffic.
func (r *Repository) ListEnabledUsers(ctx context.Context) ([]User, error) {
	query := `
		SELECT chat_id, COALESCE(username, ''), tier, enabled, tier_expires_at, created_at
		FROM users WHERE enabled = true ORDER BY chat_id
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ChatID, &u.Username, &u.Tier, &u.Enabled, &u.TierExpiresAt, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetUserEnabled flips a user's outbound traffic switch.
func (r *Repository) SetUserEnabled(ctx context.Context, chatID int64, enabled bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET enabled = $2, updated_at = NOW() WHERE chat_id = $1`, chatID, enabled)
	if err != nil {
		return fmt.Errorf("failed to set user enabled: %w", err)
	}
	return nil
}

// SetUserTier updates a user's tier and optional expiry.
func (r *Repository) SetUserTier(ctx context.Context, chatID int64, tier Tier, expiresAt *time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET tier = $2, tier_expires_at = $3, updated_at = NOW() WHERE chat_id = $1`,
		chatID, tier, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to set user tier: %w", err)
	}
	r.logger.Info().Int64("chat_id", chatID).Str("tier", string(tier)).Msg("user tier updated")
	return nil
}

// GetPreference reads one preference value, empty when unset.
func (r *Repository) GetPreference(ctx context.Context, chatID int64, key string) (string, error) {
	var value string
	err := r.db.Pool.QueryRow(ctx,
		`SELECT value FROM user_preferences WHERE chat_id = $1 AND key = $2`, chatID, key).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get preference: %w", err)
	}
	return value, nil
}

// SetPreference upserts one preference value.
func (r *Repository) SetPreference(ctx context.Context, chatID int64, key, value string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO user_preferences (chat_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, chatID, key, value)
	if err != nil {
		return fmt.Errorf("failed to set preference: %w", err)
	}
	return nil
}

// GetPreferences returns the whole preference map for a user.
func (r *Repository) GetPreferences(ctx context.Context, chatID int64) (map[string]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT key, value FROM user_preferences WHERE chat_id = $1`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs[k] = v
	}
	return prefs, rows.Err()
}

// HasFeature reports whether a feature flag is enabled for a user. Admins
// pass every gate.
func (r *Repository) HasFeature(ctx context.Context, chatID int64, feature string) (bool, error) {
	user, err := r.GetUser(ctx, chatID)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, nil
	}
	if user.EffectiveTier(time.Now()) == TierAdmin {
		return true, nil
	}

	var enabled bool
	err = r.db.Pool.QueryRow(ctx,
		`SELECT enabled FROM user_features WHERE chat_id = $1 AND feature = $2`,
		chatID, feature).Scan(&enabled)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check feature: %w", err)
	}
	return enabled, nil
}

// RequireFeature returns ErrNotAllowed unless the feature is enabled.
func (r *Repository) RequireFeature(ctx context.Context, chatID int64, feature string) error {
	ok, err := r.HasFeature(ctx, chatID, feature)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAllowed, feature)
	}
	return nil
}

// GrantFeature enables a feature flag for a user.
func (r *Repository) GrantFeature(ctx context.Context, chatID int64, feature string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO user_features (chat_id, feature, enabled)
		VALUES ($1, $2, true)
		ON CONFLICT (chat_id, feature) DO UPDATE SET enabled = true
	`, chatID, feature)
	if err != nil {
		return fmt.Errorf("failed to grant feature: %w", err)
	}
	return nil
}

// RevokeFeature disables a feature flag for a user.
func (r *Repository) RevokeFeature(ctx context.Context, chatID int64, feature string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO user_features (chat_id, feature, enabled)
		VALUES ($1, $2, false)
		ON CONFLICT (chat_id, feature) DO UPDATE SET enabled = false
	`, chatID, feature)
	if err != nil {
		return fmt.Errorf("failed to revoke feature: %w", err)
	}
	return nil
}
