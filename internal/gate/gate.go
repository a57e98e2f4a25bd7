// Package gate holds the pure checks that decide whether a user or rule may be nudged right now.
package gate

import (
	"time"

	"github.com/spigell/nudger/internal/nudge"
)

// Cooldown is the answer to "may this rule fire again yet?".
type Cooldown struct {
	OnCooldown  bool
	AvailableAt *time.Time
}

// CheckCooldown compares the last firing of a rule with its cooldown.
// A rule that never fired is available. The boundary now == last+cooldown is available.
func CheckCooldown(lastFired *time.Time, cooldown time.Duration, now time.Time) Cooldown {
	if lastFired == nil {
		return Cooldown{}
	}

	available := lastFired.Add(cooldown)
	if now.Before(available) {
		return Cooldown{OnCooldown: true, AvailableAt: &available}
	}
	return Cooldown{}
}

// CooldownElapsed is CheckCooldown reduced to a boolean.
func CooldownElapsed(lastFired *time.Time, cooldown time.Duration, now time.Time) bool {
	return !CheckCooldown(lastFired, cooldown, now).OnCooldown
}

// InWindow reports whether hour falls into [from, to) on a 24h clock.
// A window with from > to wraps past midnight. from == to is an empty window.
func InWindow(hour, from, to int) bool {
	if from == to {
		return false
	}
	if from < to {
		return hour >= from && hour < to
	}
	// wrap: [from..24) U [0..to)
	return hour >= from || hour < to
}

// IsQuietNow reports whether localNow falls into the user's quiet hours.
// localNow must already be in the user's timezone.
func IsQuietNow(p *nudge.Preferences, localNow time.Time) bool {
	if p == nil {
		return false
	}
	return InWindow(localNow.Hour(), p.QuietHoursStart, p.QuietHoursEnd)
}

// IsEnabled reports whether proactive nudging is switched on for the user.
func IsEnabled(p *nudge.Preferences) bool {
	return p != nil && p.AgentEnabled && p.ProactiveEnabled
}

// Remaining is how many more nudges may be created today.
func Remaining(dailyLimit, firedToday int) int {
	return max(0, dailyLimit-firedToday)
}
