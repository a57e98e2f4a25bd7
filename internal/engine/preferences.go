package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/nudger/internal/logger"
	"github.com/spigell/nudger/internal/nudge"
)

// GetUserPreferences returns the user's preferences, creating and storing defaults on first access.
func (e *Engine) GetUserPreferences(ctx context.Context, userID string) (*nudge.Preferences, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}

	p, err := e.store.GetPreferences(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, nudge.ErrNotFound) {
		return nil, fmt.Errorf("loading preferences: %w", err)
	}

	defaults := nudge.DefaultPreferences(userID, e.defaults)
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("default preferences: %w", err)
	}

	p, err = e.store.InsertPreferencesIfMissing(ctx, defaults, e.now())
	if err != nil {
		return nil, fmt.Errorf("storing default preferences: %w", err)
	}

	logger.WithUser(e.logger, userID).Debug("created default preferences",
		zap.Int("daily_limit", p.DailyLimit),
		zap.String("timezone", p.Timezone),
	)
	return p, nil
}

// SetUserPreferences applies a partial update. Values may be loosely typed,
// e.g. {"daily_limit": "5", "channels": {"email": true}}.
func (e *Engine) SetUserPreferences(ctx context.Context, userID string, partial map[string]any) (*nudge.Preferences, error) {
	patch, err := nudge.DecodePatch(partial)
	if err != nil {
		return nil, err
	}

	current, err := e.GetUserPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	next := current.Apply(patch)
	if err := next.Validate(); err != nil {
		return nil, err
	}

	if err := e.store.SavePreferences(ctx, next, e.now()); err != nil {
		return nil, fmt.Errorf("saving preferences: %w", err)
	}

	logger.WithUser(e.logger, userID).Info("preferences updated",
		zap.Bool("agent_enabled", next.AgentEnabled),
		zap.Bool("proactive_enabled", next.ProactiveEnabled),
		zap.Int("daily_limit", next.DailyLimit),
		zap.Int("quiet_hours_start", next.QuietHoursStart),
		zap.Int("quiet_hours_end", next.QuietHoursEnd),
		zap.String("timezone", next.Timezone),
	)
	return next, nil
}
