// Package rules holds the closed catalogue of nudge rules and the runner that evaluates them.
// Rules are pure: they read a snapshot and know nothing about cooldowns, caps or each other.
package rules

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/nudger/internal/logger"
	"github.com/spigell/nudger/internal/nudge"
	"github.com/spigell/nudger/internal/utils"
)

const maxReasonLogLength = 120

// Rule is a single independent predicate and scorer over a snapshot.
type Rule interface {
	Type() nudge.RuleType
	Category() nudge.Category
	Cooldown() time.Duration
	Evaluate(s *nudge.Snapshot) (nudge.RuleResult, error)
}

// Config holds rule thresholds.
type Config struct {
	InterviewLookahead    time.Duration `mapstructure:"interview-lookahead"`
	ApplicationStaleAfter time.Duration `mapstructure:"application-stale-after"`
	GoalStallAfter        time.Duration `mapstructure:"goal-stall-after"`
	ResumeMinScore        int           `mapstructure:"resume-min-score"`
	SkillGapMinMissing    int           `mapstructure:"skill-gap-min-missing"`
	InactiveAfter         time.Duration `mapstructure:"inactive-after"`
}

// DefaultConfig returns the thresholds used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		InterviewLookahead:    48 * time.Hour,
		ApplicationStaleAfter: 14 * 24 * time.Hour,
		GoalStallAfter:        30 * 24 * time.Hour,
		ResumeMinScore:        60,
		SkillGapMinMissing:    3,
		InactiveAfter:         24 * time.Hour,
	}
}

// withDefaults fills zero thresholds from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InterviewLookahead <= 0 {
		c.InterviewLookahead = d.InterviewLookahead
	}
	if c.ApplicationStaleAfter <= 0 {
		c.ApplicationStaleAfter = d.ApplicationStaleAfter
	}
	if c.GoalStallAfter <= 0 {
		c.GoalStallAfter = d.GoalStallAfter
	}
	if c.ResumeMinScore <= 0 {
		c.ResumeMinScore = d.ResumeMinScore
	}
	if c.SkillGapMinMissing <= 0 {
		c.SkillGapMinMissing = d.SkillGapMinMissing
	}
	if c.InactiveAfter <= 0 {
		c.InactiveAfter = d.InactiveAfter
	}
	return c
}

// New constructs the rule for t. Every nudge.RuleType must have a case here.
func New(t nudge.RuleType, cfg Config) (Rule, error) {
	cfg = cfg.withDefaults()

	switch t {
	case nudge.RuleInterviewSoon:
		return &interviewSoon{lookahead: cfg.InterviewLookahead}, nil
	case nudge.RuleAppRescue:
		return &appRescue{staleAfter: cfg.ApplicationStaleAfter}, nil
	case nudge.RuleGoalStalled:
		return &goalStalled{stallAfter: cfg.GoalStallAfter}, nil
	case nudge.RuleSkillGap:
		return &skillGap{minMissing: cfg.SkillGapMinMissing}, nil
	case nudge.RuleProfileIncomplete:
		return &profileIncomplete{}, nil
	case nudge.RuleResumeWeak:
		return &resumeWeak{minScore: cfg.ResumeMinScore}, nil
	case nudge.RuleDailyCheck:
		return &dailyCheck{inactiveAfter: cfg.InactiveAfter}, nil
	default:
		return nil, fmt.Errorf("%w: %q", nudge.ErrUnknownRule, t)
	}
}

// Registry is the static rule table built once at startup.
type Registry struct {
	rules  []Rule
	byType map[nudge.RuleType]Rule
	logger *zap.Logger
}

// NewRegistry builds a registry with one rule per known rule type.
func NewRegistry(cfg Config, log *zap.Logger) (*Registry, error) {
	types := nudge.AllRuleTypes()
	rules := make([]Rule, 0, len(types))
	for _, t := range types {
		r, err := New(t, cfg)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return NewRegistryFrom(log, rules...)
}

// NewRegistryFrom builds a registry from explicit rules. Duplicate types are rejected.
func NewRegistryFrom(log *zap.Logger, rules ...Rule) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}

	byType := make(map[nudge.RuleType]Rule, len(rules))
	for _, r := range rules {
		if _, dup := byType[r.Type()]; dup {
			return nil, fmt.Errorf("duplicate rule %s", r.Type())
		}
		byType[r.Type()] = r
	}

	return &Registry{rules: rules, byType: byType, logger: log}, nil
}

// Rules returns the registered rules in evaluation order.
func (r *Registry) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// Get looks a rule up by type.
func (r *Registry) Get(t nudge.RuleType) (Rule, bool) {
	rule, ok := r.byType[t]
	return rule, ok
}

// Run evaluates every rule accepted by eligible (all rules when eligible is nil).
// A failing rule is reported and dropped; the remaining rules still run.
func (r *Registry) Run(s *nudge.Snapshot, eligible func(Rule) bool) ([]nudge.Candidate, []*nudge.RuleError) {
	candidates := make([]nudge.Candidate, 0, len(r.rules))
	var failures []*nudge.RuleError

	for _, rule := range r.rules {
		if eligible != nil && !eligible(rule) {
			r.logger.Debug("rule skipped", zap.String(logger.FieldRuleType, string(rule.Type())), zap.String("reason", "not eligible"))
			continue
		}

		c, err := Evaluate(rule, s)
		if err != nil {
			failures = append(failures, err)
			r.logger.Warn("rule evaluation failed. It is excluded from this pass.",
				zap.String(logger.FieldRuleType, string(rule.Type())),
				zap.Error(err.Err),
			)
			continue
		}

		r.logger.Debug("rule evaluated",
			zap.String(logger.FieldRuleType, string(rule.Type())),
			zap.Bool("triggered", c.Result.ShouldTrigger),
			zap.Float64("score", c.Result.Score),
			zap.String("reason", utils.TruncateForLog(c.Result.Reason, maxReasonLogLength)),
		)
		candidates = append(candidates, c)
	}

	return candidates, failures
}

// Evaluate runs a single rule, turning panics and malformed results into a RuleError.
func Evaluate(rule Rule, s *nudge.Snapshot) (c nudge.Candidate, ruleErr *nudge.RuleError) {
	defer func() {
		if p := recover(); p != nil {
			c = nudge.Candidate{}
			ruleErr = &nudge.RuleError{RuleType: rule.Type(), Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	res, err := rule.Evaluate(s)
	if err != nil {
		return nudge.Candidate{}, &nudge.RuleError{RuleType: rule.Type(), Err: err}
	}
	if err := res.Validate(); err != nil {
		return nudge.Candidate{}, &nudge.RuleError{RuleType: rule.Type(), Err: fmt.Errorf("malformed result: %w", err)}
	}

	return nudge.Candidate{RuleType: rule.Type(), Category: rule.Category(), Result: res}, nil
}
