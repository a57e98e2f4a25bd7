package nudge

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrSnapshotUnavailable = errors.New("snapshot unavailable")
	ErrUnknownRule         = errors.New("unknown rule type")
	ErrInvalidPreferences  = errors.New("invalid preferences")
	ErrInvalidSnooze       = errors.New("invalid snooze")
)

// RuleError is a failure of one rule during one evaluation pass.
// It never aborts the pass: the rule is dropped from the candidate set.
type RuleError struct {
	RuleType RuleType
	Err      error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.RuleType, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }
