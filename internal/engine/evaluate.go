package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/nudger/internal/gate"
	"github.com/spigell/nudger/internal/logger"
	"github.com/spigell/nudger/internal/nudge"
	"github.com/spigell/nudger/internal/rules"
	"github.com/spigell/nudger/internal/scoring"
	"github.com/spigell/nudger/internal/store"
	"github.com/spigell/nudger/internal/utils"
)

const maxReasonLogLength = 120

// State is a step of one evaluation pass.
type State string

const (
	StateGated      State = "GATED"
	StateQuiet      State = "QUIET"
	StateEvaluating State = "EVALUATING"
	StateRanking    State = "RANKING"
	StatePersisting State = "PERSISTING"
	StateDone       State = "DONE"
)

// Outcome is how a pass ended.
type Outcome string

const (
	// OutcomeGated means the user is not enrolled or switched nudges off.
	OutcomeGated Outcome = "gated"
	// OutcomeQuiet means the pass ran inside the user's quiet hours.
	OutcomeQuiet Outcome = "quiet"
	// OutcomeEvaluated means rules ran. Nudges may still be empty.
	OutcomeEvaluated Outcome = "evaluated"
	// OutcomeNotEvaluated means the snapshot could not be read. Nothing was emitted.
	OutcomeNotEvaluated Outcome = "not_evaluated"
)

// Evaluation is the result of EvaluateNudgesForUser.
type Evaluation struct {
	UserID  string  `json:"user_id"`
	Outcome Outcome `json:"outcome"`
	// Reason explains gated, quiet and not evaluated outcomes.
	Reason string `json:"reason,omitempty"`
	// Nudges are the nudges created by this pass, best first.
	Nudges []*nudge.Nudge `json:"nudges"`
	// Candidates are every triggered rule result, ranked, before cooldown re-checks and the cap.
	Candidates []nudge.Candidate `json:"candidates,omitempty"`
	Failures   []*nudge.RuleError `json:"-"`
	FiredToday int                `json:"fired_today"`
	Remaining  int                `json:"remaining"`
	At         time.Time          `json:"at"`
}

// Evaluated reports whether rules actually ran.
func (ev *Evaluation) Evaluated() bool {
	return ev.Outcome == OutcomeEvaluated
}

type pass struct {
	e      *Engine
	userID string
	now    time.Time
	logger *zap.Logger
}

func (p *pass) enter(s State, fields ...zap.Field) {
	p.logger.Debug("evaluation state", append([]zap.Field{zap.String(logger.FieldState, string(s))}, fields...)...)
}

// EvaluateNudgesForUser runs one pass: gates first, then rules over a fresh snapshot,
// then ranking and an atomic persist of what fits under the daily cap.
// A snapshot failure yields OutcomeNotEvaluated together with an error wrapping
// nudge.ErrSnapshotUnavailable.
func (e *Engine) EvaluateNudgesForUser(ctx context.Context, userID string) (*Evaluation, error) {
	p := &pass{e: e, userID: userID, now: e.now(), logger: logger.WithUser(e.logger, userID)}
	ev := &Evaluation{UserID: userID, At: p.now, Nudges: []*nudge.Nudge{}}

	p.enter(StateGated)
	prefs, reason, err := e.checkGates(ctx, userID)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		ev.Outcome = OutcomeGated
		ev.Reason = reason
		p.logger.Debug("evaluation gated", zap.String("reason", reason))
		return ev, nil
	}

	loc, err := prefs.Location()
	if err != nil {
		return nil, err
	}

	p.enter(StateQuiet)
	if gate.IsQuietNow(prefs, p.now.In(loc)) {
		ev.Outcome = OutcomeQuiet
		ev.Reason = fmt.Sprintf("quiet hours %02d:00-%02d:00 %s", prefs.QuietHoursStart, prefs.QuietHoursEnd, prefs.Timezone)
		p.logger.Debug("evaluation skipped", zap.String("reason", ev.Reason))
		return ev, nil
	}

	unlock, err := e.locker.Lock(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("locking user %s: %w", userID, err)
	}
	defer unlock()

	p.enter(StateEvaluating)
	eligible, err := e.eligibleRules(ctx, userID, p.now)
	if err != nil {
		return nil, err
	}

	snap, err := e.snapshot(ctx, userID, p.now, loc)
	if err != nil {
		ev.Outcome = OutcomeNotEvaluated
		ev.Reason = err.Error()
		p.logger.Error("snapshot unavailable. Nothing is emitted.", zap.Error(err))
		return ev, fmt.Errorf("%w: %v", nudge.ErrSnapshotUnavailable, err)
	}

	candidates, failures := e.registry.Run(snap, func(r rules.Rule) bool { return eligible[r.Type()] })
	ev.Failures = failures

	p.enter(StateRanking, zap.Int("candidates", len(candidates)), zap.Int("failures", len(failures)))
	ranked := scoring.Triggered(candidates)
	scoring.Sort(ranked)
	ev.Candidates = ranked

	p.enter(StatePersisting)
	created, err := e.store.CommitEvaluation(ctx, userID, nudge.Day(p.now, loc), func(st store.CommitState) ([]*nudge.Nudge, error) {
		ev.FiredToday = st.FiredToday
		return p.pick(ranked, st, prefs.DailyLimit), nil
	})
	if err != nil {
		return nil, fmt.Errorf("persisting evaluation: %w", err)
	}

	ev.Nudges = append(ev.Nudges, created...)
	ev.Outcome = OutcomeEvaluated
	ev.FiredToday += len(created)
	ev.Remaining = gate.Remaining(prefs.DailyLimit, ev.FiredToday)

	for _, n := range created {
		p.logger.Info("nudge emitted",
			zap.String(logger.FieldNudgeID, n.ID),
			zap.String(logger.FieldRuleType, string(n.RuleType)),
			zap.Float64("score", n.Score),
			zap.String("reason", utils.TruncateForLog(n.Reason, maxReasonLogLength)),
		)
	}
	p.enter(StateDone, zap.Int("emitted", len(created)), zap.Int("remaining", ev.Remaining))

	return ev, nil
}

// pick re-checks cooldowns against the state read inside the commit transaction,
// applies the cap and turns the survivors into pending nudges.
func (p *pass) pick(ranked []nudge.Candidate, st store.CommitState, dailyLimit int) []*nudge.Nudge {
	fresh := make([]nudge.Candidate, 0, len(ranked))
	for _, c := range ranked {
		rule, ok := p.e.registry.Get(c.RuleType)
		if !ok {
			continue
		}
		var last *time.Time
		if t, ok := st.LastFired[c.RuleType]; ok {
			last = &t
		}
		if !gate.CooldownElapsed(last, rule.Cooldown(), p.now) {
			p.logger.Debug("rule fired concurrently. Skipping.", zap.String(logger.FieldRuleType, string(c.RuleType)))
			continue
		}
		fresh = append(fresh, c)
	}

	selected := scoring.Rank(fresh, st.FiredToday, dailyLimit)
	if len(selected) < len(fresh) {
		p.logger.Debug("daily cap reached",
			zap.Int("fired_today", st.FiredToday),
			zap.Int("daily_limit", dailyLimit),
			zap.Int("dropped", len(fresh)-len(selected)),
		)
	}

	res := make([]*nudge.Nudge, 0, len(selected))
	for _, c := range selected {
		res = append(res, nudge.New(p.userID, c, p.now))
	}
	return res
}

// checkGates returns a non-empty reason when the user must not be evaluated.
func (e *Engine) checkGates(ctx context.Context, userID string) (*nudge.Preferences, string, error) {
	enrolled, err := e.enrollment.Enrolled(ctx, userID)
	if err != nil {
		return nil, "", fmt.Errorf("checking enrollment: %w", err)
	}
	if !enrolled {
		return nil, "user is not enrolled", nil
	}

	prefs, err := e.GetUserPreferences(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if !gate.IsEnabled(prefs) {
		return prefs, "proactive nudges are disabled", nil
	}
	return prefs, "", nil
}

// eligibleRules marks rules whose cooldown has elapsed.
func (e *Engine) eligibleRules(ctx context.Context, userID string, now time.Time) (map[nudge.RuleType]bool, error) {
	res := make(map[nudge.RuleType]bool)
	for _, r := range e.registry.Rules() {
		last, err := e.store.LastFired(ctx, userID, r.Type())
		if err != nil {
			return nil, fmt.Errorf("reading cooldown of %s: %w", r.Type(), err)
		}
		res[r.Type()] = gate.CooldownElapsed(last, r.Cooldown(), now)
	}
	return res, nil
}

type snapshotResult struct {
	snap *nudge.Snapshot
	err  error
}

// snapshot reads the user's facts under the snapshot timeout. The deadline holds
// even against a provider that ignores its context.
func (e *Engine) snapshot(ctx context.Context, userID string, now time.Time, loc *time.Location) (*nudge.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, e.snapshotTimeout)
	defer cancel()

	done := make(chan snapshotResult, 1)
	go func() {
		s, err := e.provider.Snapshot(ctx, userID, now, loc)
		done <- snapshotResult{snap: s, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.snap == nil {
			return nil, errors.New("provider returned no snapshot")
		}
		r.snap.UserID = userID
		r.snap.Now = now
		r.snap.Location = loc
		return r.snap, nil
	}
}

// RuleCheck is the diagnostic result of one rule.
type RuleCheck struct {
	RuleType    nudge.RuleType   `json:"rule_type"`
	Category    nudge.Category   `json:"category"`
	Result      nudge.RuleResult `json:"evaluation"`
	OnCooldown  bool             `json:"on_cooldown"`
	AvailableAt *time.Time       `json:"available_at,omitempty"`
}

// EvaluateSingleRule runs one rule against a fresh snapshot without gates, quiet hours,
// caps or persistence. Unlike a full pass, a failing rule is returned as a *nudge.RuleError.
func (e *Engine) EvaluateSingleRule(ctx context.Context, userID string, rt nudge.RuleType) (*RuleCheck, error) {
	rule, ok := e.registry.Get(rt)
	if !ok {
		return nil, fmt.Errorf("%w: %q", nudge.ErrUnknownRule, rt)
	}

	prefs, err := e.GetUserPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	loc, err := prefs.Location()
	if err != nil {
		return nil, err
	}

	now := e.now()
	last, err := e.store.LastFired(ctx, userID, rt)
	if err != nil {
		return nil, fmt.Errorf("reading cooldown of %s: %w", rt, err)
	}
	cd := gate.CheckCooldown(last, rule.Cooldown(), now)

	snap, err := e.snapshot(ctx, userID, now, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", nudge.ErrSnapshotUnavailable, err)
	}

	c, ruleErr := rules.Evaluate(rule, snap)
	if ruleErr != nil {
		return nil, ruleErr
	}

	logger.WithRule(e.logger, userID, string(rt)).Debug("single rule evaluated",
		zap.Bool("triggered", c.Result.ShouldTrigger),
		zap.Bool("on_cooldown", cd.OnCooldown),
	)

	return &RuleCheck{
		RuleType:    rt,
		Category:    c.Category,
		Result:      c.Result,
		OnCooldown:  cd.OnCooldown,
		AvailableAt: cd.AvailableAt,
	}, nil
}
