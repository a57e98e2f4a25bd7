package rules

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spigell/nudger/internal/nudge"
)

type interviewSoon struct {
	lookahead time.Duration
}

func (r *interviewSoon) Type() nudge.RuleType     { return nudge.RuleInterviewSoon }
func (r *interviewSoon) Category() nudge.Category { return nudge.CategoryUrgency }
func (r *interviewSoon) Cooldown() time.Duration  { return 12 * time.Hour }

func (r *interviewSoon) Evaluate(s *nudge.Snapshot) (nudge.RuleResult, error) {
	var next *nudge.Interview
	for i := range s.Interviews {
		iv := &s.Interviews[i]
		status := strings.ToLower(iv.Status)
		if status == nudge.InterviewCompleted || status == nudge.InterviewCancelled {
			continue
		}
		until := iv.ScheduledAt.Sub(s.Now)
		if until <= 0 || until > r.lookahead {
			continue
		}
		if next == nil || iv.ScheduledAt.Before(next.ScheduledAt) ||
			(iv.ScheduledAt.Equal(next.ScheduledAt) && iv.ID < next.ID) {
			next = iv
		}
	}

	if next == nil {
		return nudge.NotTriggered("no upcoming interviews"), nil
	}

	hours := next.ScheduledAt.Sub(s.Now).Hours()
	// 80 at the edge of the window, 100 right before the interview
	score := 80 + 20*(1-hours/r.lookahead.Hours())

	company := next.Company
	if company == "" {
		company = "an employer"
	}

	return nudge.RuleResult{
		ShouldTrigger:   true,
		Score:           round1(score),
		Reason:          fmt.Sprintf("Your interview with %s is in %d hours", company, int(math.Ceil(hours))),
		SuggestedAction: "Prepare for the interview",
		ActionURL:       "/interviews/" + next.ID,
		Metadata: map[string]any{
			"interview_id": next.ID,
			"company":      next.Company,
			"hours_until":  round1(hours),
		},
	}, nil
}

type appRescue struct {
	staleAfter time.Duration
}

func (r *appRescue) Type() nudge.RuleType     { return nudge.RuleAppRescue }
func (r *appRescue) Category() nudge.Category { return nudge.CategoryUrgency }
func (r *appRescue) Cooldown() time.Duration  { return 72 * time.Hour }

func (r *appRescue) Evaluate(s *nudge.Snapshot) (nudge.RuleResult, error) {
	type staleApp struct {
		app     nudge.Application
		changed time.Time
	}

	var stale []staleApp
	for _, a := range s.OpenApplications() {
		changed := a.LastStatusChange
		if changed.IsZero() {
			changed = a.AppliedAt
		}
		if changed.IsZero() {
			continue
		}
		if s.Now.Sub(changed) > r.staleAfter {
			stale = append(stale, staleApp{app: a, changed: changed})
		}
	}

	if len(stale) == 0 {
		return nudge.NotTriggered("no stale applications"), nil
	}

	sort.Slice(stale, func(i, j int) bool {
		if !stale[i].changed.Equal(stale[j].changed) {
			return stale[i].changed.Before(stale[j].changed)
		}
		return stale[i].app.ID < stale[j].app.ID
	})

	oldest := stale[0]
	days := int(s.Now.Sub(oldest.changed).Hours() / 24)
	ids := make([]string, 0, len(stale))
	for _, st := range stale {
		ids = append(ids, st.app.ID)
	}

	reason := fmt.Sprintf("Your application to %s has had no update for %d days", describeApp(oldest.app), days)
	if len(stale) > 1 {
		reason = fmt.Sprintf("%d applications have had no update for over %d days, the oldest to %s (%d days)",
			len(stale), int(r.staleAfter.Hours()/24), describeApp(oldest.app), days)
	}

	return nudge.RuleResult{
		ShouldTrigger:   true,
		Score:           float64(70 + 5*min(len(stale)-1, 3)),
		Reason:          reason,
		SuggestedAction: "Send a follow-up or update the status",
		ActionURL:       "/applications/" + oldest.app.ID,
		Metadata: map[string]any{
			"application_ids": ids,
			"oldest_days":     days,
		},
	}, nil
}

func describeApp(a nudge.Application) string {
	switch {
	case a.Company != "" && a.Title != "":
		return fmt.Sprintf("%s (%s)", a.Company, a.Title)
	case a.Company != "":
		return a.Company
	case a.Title != "":
		return a.Title
	default:
		return "application " + a.ID
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
