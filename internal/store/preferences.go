package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/nudger/internal/nudge"
)

// GetPreferences returns stored preferences or nudge.ErrNotFound.
func (s *Store) GetPreferences(ctx context.Context, userID string) (*nudge.Preferences, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, agent_enabled, proactive_enabled, quiet_hours_start, quiet_hours_end,
		       channels, daily_limit, timezone, updated_at
		FROM nudge_preferences
		WHERE user_id = ?`,
		userID,
	)

	var (
		p         nudge.Preferences
		agent     int
		proactive int
		channels  string
		updatedAt int64
	)
	err := row.Scan(&p.UserID, &agent, &proactive, &p.QuietHoursStart, &p.QuietHoursEnd,
		&channels, &p.DailyLimit, &p.Timezone, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("preferences for %s: %w", userID, nudge.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(channels), &p.Channels); err != nil {
		return nil, fmt.Errorf("decode channels: %w", err)
	}
	p.AgentEnabled = agent != 0
	p.ProactiveEnabled = proactive != 0
	p.UpdatedAt = fromMillis(updatedAt)

	return &p, nil
}

// SavePreferences inserts or replaces the user's preferences, stamping UpdatedAt with now.
func (s *Store) SavePreferences(ctx context.Context, p *nudge.Preferences, now time.Time) error {
	if p == nil {
		return errors.New("nil preferences")
	}
	channels, err := json.Marshal(p.Channels)
	if err != nil {
		return fmt.Errorf("encode channels: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nudge_preferences (
			user_id, agent_enabled, proactive_enabled, quiet_hours_start, quiet_hours_end,
			channels, daily_limit, timezone, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			agent_enabled     = excluded.agent_enabled,
			proactive_enabled = excluded.proactive_enabled,
			quiet_hours_start = excluded.quiet_hours_start,
			quiet_hours_end   = excluded.quiet_hours_end,
			channels          = excluded.channels,
			daily_limit       = excluded.daily_limit,
			timezone          = excluded.timezone,
			updated_at        = excluded.updated_at`,
		p.UserID, boolToInt(p.AgentEnabled), boolToInt(p.ProactiveEnabled),
		p.QuietHoursStart, p.QuietHoursEnd, string(channels), p.DailyLimit, p.Timezone,
		toMillis(now),
	)
	if err != nil {
		return err
	}
	p.UpdatedAt = fromMillis(toMillis(now))
	return nil
}

// InsertPreferencesIfMissing stores p unless the user already has preferences,
// and returns whatever is stored afterwards. Concurrent first accesses agree on one row.
func (s *Store) InsertPreferencesIfMissing(ctx context.Context, p *nudge.Preferences, now time.Time) (*nudge.Preferences, error) {
	channels, err := json.Marshal(p.Channels)
	if err != nil {
		return nil, fmt.Errorf("encode channels: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nudge_preferences (
			user_id, agent_enabled, proactive_enabled, quiet_hours_start, quiet_hours_end,
			channels, daily_limit, timezone, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		p.UserID, boolToInt(p.AgentEnabled), boolToInt(p.ProactiveEnabled),
		p.QuietHoursStart, p.QuietHoursEnd, string(channels), p.DailyLimit, p.Timezone,
		toMillis(now),
	)
	if err != nil {
		return nil, err
	}
	return s.GetPreferences(ctx, p.UserID)
}
