// Package scoring orders triggered candidates and applies the daily cap.
package scoring

import (
	"sort"

	"github.com/spigell/nudger/internal/gate"
	"github.com/spigell/nudger/internal/nudge"
)

// Triggered drops candidates whose rule did not fire.
func Triggered(candidates []nudge.Candidate) []nudge.Candidate {
	res := make([]nudge.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Result.ShouldTrigger {
			res = append(res, c)
		}
	}
	return res
}

// Sort orders candidates by score descending, then category priority, then rule type.
// The order is total, so the same input always yields the same output.
func Sort(candidates []nudge.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return Less(candidates[i], candidates[j])
	})
}

// Less reports whether a ranks before b.
func Less(a, b nudge.Candidate) bool {
	if a.Result.Score != b.Result.Score {
		return a.Result.Score > b.Result.Score
	}
	if pa, pb := a.Category.Priority(), b.Category.Priority(); pa != pb {
		return pa < pb
	}
	return a.RuleType < b.RuleType
}

// Rank keeps triggered candidates, orders them and truncates to what the daily cap still allows.
// The input slice is not modified.
func Rank(candidates []nudge.Candidate, firedToday, dailyLimit int) []nudge.Candidate {
	ranked := Triggered(candidates)
	Sort(ranked)

	keep := min(len(ranked), gate.Remaining(dailyLimit, firedToday))
	return ranked[:keep]
}
