package nudge

import "time"

// Window is a half-open [Start, End) time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Day returns the user-local calendar day containing now.
func Day(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// Week returns the seven user-local calendar days ending with the day containing now.
func Week(now time.Time, loc *time.Location) Window {
	day := Day(now, loc)
	return Window{Start: day.Start.AddDate(0, 0, -6), End: day.End}
}
