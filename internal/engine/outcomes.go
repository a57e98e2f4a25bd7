package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/nudger/internal/logger"
	"github.com/spigell/nudger/internal/nudge"
	"github.com/spigell/nudger/internal/stats"
)

// AcceptNudge marks the nudge accepted. Repeating it on a resolved nudge returns the nudge unchanged.
func (e *Engine) AcceptNudge(ctx context.Context, userID, nudgeID string) (*nudge.Nudge, error) {
	return e.applyOutcome(ctx, userID, nudgeID, nudge.ActionAccept, nil)
}

// DismissNudge marks the nudge dismissed. Repeating it on a resolved nudge returns the nudge unchanged.
func (e *Engine) DismissNudge(ctx context.Context, userID, nudgeID string) (*nudge.Nudge, error) {
	return e.applyOutcome(ctx, userID, nudgeID, nudge.ActionDismiss, nil)
}

// SnoozeNudge hides the nudge until the deadline. The rule's cooldown is not touched.
func (e *Engine) SnoozeNudge(ctx context.Context, userID, nudgeID string, until time.Time) (*nudge.Nudge, error) {
	return e.applyOutcome(ctx, userID, nudgeID, nudge.ActionSnooze, &until)
}

func (e *Engine) applyOutcome(ctx context.Context, userID, nudgeID string, action nudge.Action, until *time.Time) (*nudge.Nudge, error) {
	n, err := e.store.GetNudge(ctx, nudgeID)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, fmt.Errorf("nudge %s: %w", nudgeID, nudge.ErrForbidden)
	}

	now := e.now()
	status, snoozeUntil, changed, err := nudge.Transition(n, action, until, now)
	if err != nil {
		return nil, err
	}

	log := logger.WithUser(e.logger, userID).With(
		zap.String(logger.FieldNudgeID, nudgeID),
		zap.String("action", string(action)),
	)
	if !changed {
		log.Debug("nudge already resolved", zap.String("status", string(n.Status)))
		return n, nil
	}

	updated, err := e.store.UpdateNudgeStatus(ctx, nudgeID, status, snoozeUntil, now)
	if err != nil {
		return nil, fmt.Errorf("updating nudge %s: %w", nudgeID, err)
	}
	if !updated {
		// resolved concurrently, report whatever won
		log.Debug("nudge resolved concurrently")
		return e.store.GetNudge(ctx, nudgeID)
	}

	n.Status = status
	n.SnoozeUntil = snoozeUntil
	log.Info("nudge outcome recorded", zap.String("status", string(status)))

	return n, nil
}

// ActiveNudges returns what should be shown now: pending nudges plus snoozed ones
// whose deadline passed, resurfaced as they were created.
func (e *Engine) ActiveNudges(ctx context.Context, userID string) ([]*nudge.Nudge, error) {
	return e.store.ListActive(ctx, userID, e.now())
}

// GetNudgeStats summarizes outcomes in the user's timezone.
func (e *Engine) GetNudgeStats(ctx context.Context, userID string) (*stats.Stats, error) {
	prefs, err := e.GetUserPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	loc, err := prefs.Location()
	if err != nil {
		return nil, err
	}

	now := e.now()
	recent, err := e.store.ListNudgesSince(ctx, userID, nudge.Week(now, loc).Start)
	if err != nil {
		return nil, fmt.Errorf("listing nudges: %w", err)
	}
	total, err := e.store.CountNudges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("counting nudges: %w", err)
	}

	s := stats.Summarize(recent, total, now, loc, prefs.DailyLimit)
	return &s, nil
}
