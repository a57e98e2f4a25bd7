package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/nudger/internal/logger"
)

const defaultWorkers = 4

// SweepResult is the outcome of one user in a sweep.
type SweepResult struct {
	UserID     string
	Evaluation *Evaluation
	Err        error
}

// SweepSummary aggregates a sweep.
type SweepSummary struct {
	Results  []SweepResult
	Emitted  int
	Failed   int
	Duration time.Duration
}

// Sweep evaluates users concurrently with at most workers passes in flight.
// A failing user is recorded in its result and never stops the others.
// Results keep the order of userIDs.
func (e *Engine) Sweep(ctx context.Context, userIDs []string, workers int) *SweepSummary {
	if workers <= 0 {
		workers = defaultWorkers
	}
	started := time.Now()

	results := make([]SweepResult, len(userIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, userID := range userIDs {
		g.Go(func() error {
			ev, err := e.EvaluateNudgesForUser(gctx, userID)
			results[i] = SweepResult{UserID: userID, Evaluation: ev, Err: err}
			if err != nil {
				e.logger.Warn("user evaluation failed", zap.String(logger.FieldUserID, userID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := &SweepSummary{Results: results, Duration: time.Since(started)}
	for _, r := range results {
		if r.Err != nil {
			summary.Failed++
			continue
		}
		if r.Evaluation != nil {
			summary.Emitted += len(r.Evaluation.Nudges)
		}
	}

	e.logger.Info("sweep finished",
		zap.Int("users", len(userIDs)),
		zap.Int("emitted", summary.Emitted),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
	)
	return summary
}
