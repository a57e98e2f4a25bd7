package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spigell/nudger/internal/nudge"
)

type goalStalled struct {
	stallAfter time.Duration
}

func (r *goalStalled) Type() nudge.RuleType     { return nudge.RuleGoalStalled }
func (r *goalStalled) Category() nudge.Category { return nudge.CategoryProgress }
func (r *goalStalled) Cooldown() time.Duration  { return 7 * 24 * time.Hour }

func (r *goalStalled) Evaluate(s *nudge.Snapshot) (nudge.RuleResult, error) {
	var stalled []nudge.Goal
	for _, g := range s.ActiveGoals() {
		if g.Progress > 0 || g.CreatedAt.IsZero() {
			continue
		}
		if s.Now.Sub(g.CreatedAt) > r.stallAfter {
			stalled = append(stalled, g)
		}
	}

	if len(stalled) == 0 {
		return nudge.NotTriggered("no stalled goals"), nil
	}

	sort.Slice(stalled, func(i, j int) bool {
		if !stalled[i].CreatedAt.Equal(stalled[j].CreatedAt) {
			return stalled[i].CreatedAt.Before(stalled[j].CreatedAt)
		}
		return stalled[i].ID < stalled[j].ID
	})

	oldest := stalled[0]
	days := int(s.Now.Sub(oldest.CreatedAt).Hours() / 24)
	reason := fmt.Sprintf("Your goal %q has not moved in %d days", oldest.Title, days)
	if len(stalled) > 1 {
		reason = fmt.Sprintf("%d goals have not started yet, including %q (%d days old)", len(stalled), oldest.Title, days)
	}

	ids := make([]string, 0, len(stalled))
	for _, g := range stalled {
		ids = append(ids, g.ID)
	}

	return nudge.RuleResult{
		ShouldTrigger:   true,
		Score:           float64(60 + 5*min(len(stalled)-1, 2)),
		Reason:          reason,
		SuggestedAction: "Break the goal into a first small step",
		ActionURL:       "/goals/" + oldest.ID,
		Metadata: map[string]any{
			"goal_ids":    ids,
			"oldest_days": days,
		},
	}, nil
}

type skillGap struct {
	minMissing int
}

func (r *skillGap) Type() nudge.RuleType     { return nudge.RuleSkillGap }
func (r *skillGap) Category() nudge.Category { return nudge.CategoryGrowth }
func (r *skillGap) Cooldown() time.Duration  { return 14 * 24 * time.Hour }

func (r *skillGap) Evaluate(s *nudge.Snapshot) (nudge.RuleResult, error) {
	have := make(map[string]bool, len(s.Profile.Skills))
	for _, skill := range s.Profile.Skills {
		have[normalizeSkill(skill)] = true
	}

	seen := make(map[string]bool)
	var missing []string
	for _, skill := range s.TargetSkills {
		key := normalizeSkill(skill)
		if key == "" || have[key] || seen[key] {
			continue
		}
		seen[key] = true
		missing = append(missing, strings.TrimSpace(skill))
	}
	sort.Slice(missing, func(i, j int) bool {
		return normalizeSkill(missing[i]) < normalizeSkill(missing[j])
	})

	if len(missing) < r.minMissing {
		return nudge.NotTriggered(fmt.Sprintf("%d missing skills, below threshold", len(missing))), nil
	}

	shown := missing
	if len(shown) > 3 {
		shown = shown[:3]
	}

	return nudge.RuleResult{
		ShouldTrigger:   true,
		Score:           float64(min(60, 45+2*len(missing))),
		Reason:          fmt.Sprintf("Jobs you target ask for %d skills missing from your profile: %s", len(missing), strings.Join(shown, ", ")),
		SuggestedAction: "Add the skills you have or plan to learn the rest",
		ActionURL:       "/profile/skills",
		Metadata: map[string]any{
			"missing_skills": missing,
		},
	}, nil
}

func normalizeSkill(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
