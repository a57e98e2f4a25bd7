package nudge

import (
	"fmt"
	"math"
	"strings"
)

// RuleType is the unique key of a rule in the registry.
type RuleType string

const (
	RuleInterviewSoon     RuleType = "interviewSoon"
	RuleAppRescue         RuleType = "appRescue"
	RuleProfileIncomplete RuleType = "profileIncomplete"
	RuleGoalStalled       RuleType = "goalStalled"
	RuleResumeWeak        RuleType = "resumeWeak"
	RuleSkillGap          RuleType = "skillGap"
	RuleDailyCheck        RuleType = "dailyCheck"
)

// AllRuleTypes returns every known rule type in registry order.
func AllRuleTypes() []RuleType {
	return []RuleType{
		RuleInterviewSoon,
		RuleAppRescue,
		RuleGoalStalled,
		RuleSkillGap,
		RuleProfileIncomplete,
		RuleResumeWeak,
		RuleDailyCheck,
	}
}

// ParseRuleType matches s against the known rule types, ignoring case.
func ParseRuleType(s string) (RuleType, error) {
	s = strings.TrimSpace(s)
	for _, t := range AllRuleTypes() {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRule, s)
}

// Category groups rules for tie-breaking. Lower priority value wins.
type Category string

const (
	CategoryUrgency     Category = "urgency"
	CategoryProgress    Category = "progress"
	CategoryGrowth      Category = "growth"
	CategoryMaintenance Category = "maintenance"
	CategoryEngagement  Category = "engagement"
)

var categoryPriority = map[Category]int{
	CategoryUrgency:     0,
	CategoryProgress:    1,
	CategoryGrowth:      2,
	CategoryMaintenance: 3,
	CategoryEngagement:  4,
}

// Priority returns the tie-break rank of the category. Unknown categories sort last.
func (c Category) Priority() int {
	if p, ok := categoryPriority[c]; ok {
		return p
	}
	return len(categoryPriority)
}

const (
	MinScore = 0
	MaxScore = 100
)

// RuleResult is what a single rule produces for one snapshot.
type RuleResult struct {
	ShouldTrigger   bool           `json:"should_trigger"`
	Score           float64        `json:"score"`
	Reason          string         `json:"reason"`
	SuggestedAction string         `json:"suggested_action,omitempty"`
	ActionURL       string         `json:"action_url,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// NotTriggered is the zero-score result of a rule whose condition does not hold.
func NotTriggered(reason string) RuleResult {
	return RuleResult{Reason: reason}
}

// Validate reports malformed results. Non-triggering results are only checked for a finite score.
func (r RuleResult) Validate() error {
	if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
		return fmt.Errorf("score is not finite: %v", r.Score)
	}
	if !r.ShouldTrigger {
		return nil
	}
	if r.Score < MinScore || r.Score > MaxScore {
		return fmt.Errorf("score %v out of range [%d, %d]", r.Score, MinScore, MaxScore)
	}
	if strings.TrimSpace(r.Reason) == "" {
		return fmt.Errorf("triggered without a reason")
	}
	return nil
}

// Candidate is a triggered or evaluated rule result tagged with its rule identity.
type Candidate struct {
	RuleType RuleType
	Category Category
	Result   RuleResult
}
