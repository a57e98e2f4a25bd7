package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/spigell/nudger/internal/nudge"
)

type profileIncomplete struct{}

func (r *profileIncomplete) Type() nudge.RuleType     { return nudge.RuleProfileIncomplete }
func (r *profileIncomplete) Category() nudge.Category { return nudge.CategoryMaintenance }
func (r *profileIncomplete) Cooldown() time.Duration  { return 7 * 24 * time.Hour }

func (r *profileIncomplete) Evaluate(s *nudge.Snapshot) (nudge.RuleResult, error) {
	missing := s.Profile.MissingFields()
	if len(missing) == 0 {
		return nudge.NotTriggered("profile is complete"), nil
	}

	return nudge.RuleResult{
		ShouldTrigger:   true,
		Score:           float64(min(65, 40+5*len(missing))),
		Reason:          fmt.Sprintf("Your profile is missing: %s", strings.Join(missing, ", ")),
		SuggestedAction: "Complete your profile",
		ActionURL:       "/profile",
		Metadata: map[string]any{
			"missing_fields": missing,
		},
	}, nil
}

type resumeWeak struct {
	minScore int
}

func (r *resumeWeak) Type() nudge.RuleType     { return nudge.RuleResumeWeak }
func (r *resumeWeak) Category() nudge.Category { return nudge.CategoryMaintenance }
func (r *resumeWeak) Cooldown() time.Duration  { return 7 * 24 * time.Hour }

func (r *resumeWeak) Evaluate(s *nudge.Snapshot) (nudge.RuleResult, error) {
	resumes := s.Resumes()
	if len(resumes) == 0 {
		return nudge.RuleResult{
			ShouldTrigger:   true,
			Score:           65,
			Reason:          "You have not uploaded a resume yet",
			SuggestedAction: "Upload or build a resume",
			ActionURL:       "/resumes/new",
		}, nil
	}

	best := resumes[0]
	for _, d := range resumes[1:] {
		if d.QualityScore > best.QualityScore || (d.QualityScore == best.QualityScore && d.ID < best.ID) {
			best = d
		}
	}

	if best.QualityScore >= r.minScore {
		return nudge.NotTriggered(fmt.Sprintf("best resume scores %d", best.QualityScore)), nil
	}

	quality := max(best.QualityScore, 0)
	gap := float64(r.minScore-quality) / float64(r.minScore)

	title := best.Title
	if title == "" {
		title = "Your resume"
	}

	return nudge.RuleResult{
		ShouldTrigger:   true,
		Score:           round1(50 + 10*gap),
		Reason:          fmt.Sprintf("%s scores %d/100, below the recommended %d", title, best.QualityScore, r.minScore),
		SuggestedAction: "Improve your resume",
		ActionURL:       "/resumes/" + best.ID,
		Metadata: map[string]any{
			"resume_id":     best.ID,
			"quality_score": best.QualityScore,
		},
	}, nil
}

type dailyCheck struct {
	inactiveAfter time.Duration
}

func (r *dailyCheck) Type() nudge.RuleType     { return nudge.RuleDailyCheck }
func (r *dailyCheck) Category() nudge.Category { return nudge.CategoryEngagement }
func (r *dailyCheck) Cooldown() time.Duration  { return 20 * time.Hour }

func (r *dailyCheck) Evaluate(s *nudge.Snapshot) (nudge.RuleResult, error) {
	open := len(s.OpenApplications())
	goals := len(s.ActiveGoals())
	if open == 0 && goals == 0 {
		return nudge.NotTriggered("nothing in progress"), nil
	}

	if s.LastActiveAt != nil && s.Now.Sub(*s.LastActiveAt) < r.inactiveAfter {
		return nudge.NotTriggered("recently active"), nil
	}

	return nudge.RuleResult{
		ShouldTrigger:   true,
		Score:           20,
		Reason:          fmt.Sprintf("Check in on your search: %d open applications and %d active goals", open, goals),
		SuggestedAction: "Review today's progress",
		ActionURL:       "/dashboard",
		Metadata: map[string]any{
			"open_applications": open,
			"active_goals":      goals,
		},
	}, nil
}
