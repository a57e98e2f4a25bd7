// Package stats summarizes nudge outcomes for reporting.
// Nothing here feeds back into ranking.
package stats

import (
	"math"
	"time"

	"github.com/spigell/nudger/internal/gate"
	"github.com/spigell/nudger/internal/nudge"
)

type Today struct {
	Count     int `json:"count"`
	Remaining int `json:"remaining"`
}

type Week struct {
	Count     int `json:"count"`
	Accepted  int `json:"accepted"`
	Dismissed int `json:"dismissed"`
	Snoozed   int `json:"snoozed"`
	Pending   int `json:"pending"`
}

type All struct {
	Total int `json:"total"`
}

// Stats is the outcome summary of one user.
// AcceptanceRate is a percentage over the week window.
type Stats struct {
	Today          Today   `json:"today"`
	Week           Week    `json:"week"`
	All            All     `json:"all"`
	AcceptanceRate float64 `json:"acceptance_rate"`
}

// Summarize builds Stats from the nudges created within the last week and the all-time total.
// Nudges outside the week window are ignored, so callers may pass a wider slice.
func Summarize(recent []*nudge.Nudge, total int, now time.Time, loc *time.Location, dailyLimit int) Stats {
	day := nudge.Day(now, loc)
	week := nudge.Week(now, loc)

	var s Stats
	for _, n := range recent {
		if n == nil || !week.Contains(n.CreatedAt) {
			continue
		}

		s.Week.Count++
		switch n.Status {
		case nudge.StatusAccepted:
			s.Week.Accepted++
		case nudge.StatusDismissed:
			s.Week.Dismissed++
		case nudge.StatusSnoozed:
			s.Week.Snoozed++
		case nudge.StatusPending:
			s.Week.Pending++
		}

		if day.Contains(n.CreatedAt) {
			s.Today.Count++
		}
	}

	s.Today.Remaining = gate.Remaining(dailyLimit, s.Today.Count)
	s.All.Total = max(total, s.Week.Count)
	s.AcceptanceRate = AcceptanceRate(s.Week.Accepted, s.Week.Dismissed)

	return s
}

// AcceptanceRate is accepted / (accepted + dismissed) as a percentage rounded to one decimal.
// Pending and snoozed nudges do not count. No resolved nudges yields 0.
func AcceptanceRate(accepted, dismissed int) float64 {
	resolved := accepted + dismissed
	if resolved == 0 {
		return 0
	}
	return math.Round(float64(accepted)/float64(resolved)*1000) / 10
}
