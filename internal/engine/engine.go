// Package engine orchestrates one evaluation pass per user and the outcome mutations on emitted nudges.
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/nudger/internal/lock"
	"github.com/spigell/nudger/internal/nudge"
	"github.com/spigell/nudger/internal/rules"
	"github.com/spigell/nudger/internal/store"
)

const defaultSnapshotTimeout = 5 * time.Second

// SnapshotProvider builds the read-only facts for one pass. now and loc are stamped on the result.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, userID string, now time.Time, loc *time.Location) (*nudge.Snapshot, error)
}

// Store is the persistence the engine needs. *store.Store implements it.
type Store interface {
	GetPreferences(ctx context.Context, userID string) (*nudge.Preferences, error)
	SavePreferences(ctx context.Context, p *nudge.Preferences, now time.Time) error
	InsertPreferencesIfMissing(ctx context.Context, p *nudge.Preferences, now time.Time) (*nudge.Preferences, error)
	LastFired(ctx context.Context, userID string, rt nudge.RuleType) (*time.Time, error)
	CommitEvaluation(ctx context.Context, userID string, day nudge.Window, pick func(store.CommitState) ([]*nudge.Nudge, error)) ([]*nudge.Nudge, error)
	GetNudge(ctx context.Context, id string) (*nudge.Nudge, error)
	UpdateNudgeStatus(ctx context.Context, id string, status nudge.Status, snoozeUntil *time.Time, now time.Time) (bool, error)
	ListActive(ctx context.Context, userID string, now time.Time) ([]*nudge.Nudge, error)
	ListNudgesSince(ctx context.Context, userID string, since time.Time) ([]*nudge.Nudge, error)
	CountNudges(ctx context.Context, userID string) (int, error)
}

// Enrollment answers whether a user takes part in proactive nudging at all.
// Rollout logic lives outside the engine.
type Enrollment interface {
	Enrolled(ctx context.Context, userID string) (bool, error)
}

// EnrollmentFunc adapts a function to Enrollment.
type EnrollmentFunc func(ctx context.Context, userID string) (bool, error)

func (f EnrollmentFunc) Enrolled(ctx context.Context, userID string) (bool, error) {
	return f(ctx, userID)
}

// EnrollAll enrolls every user.
func EnrollAll() Enrollment {
	return EnrollmentFunc(func(context.Context, string) (bool, error) { return true, nil })
}

// EnrollOnly enrolls the listed users.
func EnrollOnly(userIDs ...string) Enrollment {
	allowed := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		allowed[id] = true
	}
	return EnrollmentFunc(func(_ context.Context, userID string) (bool, error) {
		return allowed[userID], nil
	})
}

// Deps aggregates the engine collaborators.
type Deps struct {
	Provider   SnapshotProvider
	Store      Store
	Registry   *rules.Registry
	Enrollment Enrollment
	// Locker serializes passes of one user. Defaults to an in-process lock.
	Locker lock.Locker
	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger *zap.Logger
	// Defaults are applied when a user has no stored preferences.
	Defaults        nudge.Defaults
	SnapshotTimeout time.Duration
}

type Engine struct {
	provider        SnapshotProvider
	store           Store
	registry        *rules.Registry
	enrollment      Enrollment
	locker          lock.Locker
	clock           func() time.Time
	logger          *zap.Logger
	defaults        nudge.Defaults
	snapshotTimeout time.Duration
}

func New(deps Deps) (*Engine, error) {
	if deps.Provider == nil {
		return nil, errors.New("snapshot provider is required")
	}
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("rule registry is required")
	}

	e := &Engine{
		provider:        deps.Provider,
		store:           deps.Store,
		registry:        deps.Registry,
		enrollment:      deps.Enrollment,
		locker:          deps.Locker,
		clock:           deps.Clock,
		logger:          deps.Logger,
		defaults:        deps.Defaults,
		snapshotTimeout: deps.SnapshotTimeout,
	}
	if e.enrollment == nil {
		e.enrollment = EnrollAll()
	}
	if e.locker == nil {
		e.locker = lock.NewKeyed()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.snapshotTimeout <= 0 {
		e.snapshotTimeout = defaultSnapshotTimeout
	}

	return e, nil
}

// now is truncated to the precision the store keeps.
func (e *Engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Millisecond)
}
