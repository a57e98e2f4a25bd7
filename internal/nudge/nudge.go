package nudge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an emitted nudge.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusSnoozed   Status = "snoozed"
	StatusDismissed Status = "dismissed"
)

// Resolved reports whether the status is terminal.
func (s Status) Resolved() bool {
	return s == StatusAccepted || s == StatusDismissed
}

// Nudge is a persisted suggestion shown to a user. Only Status and SnoozeUntil change after creation.
type Nudge struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	RuleType        RuleType       `json:"rule_type"`
	Score           float64        `json:"score"`
	Reason          string         `json:"reason"`
	SuggestedAction string         `json:"suggested_action,omitempty"`
	ActionURL       string         `json:"action_url,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Status          Status         `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	SnoozeUntil     *time.Time     `json:"snooze_until,omitempty"`
}

// New builds a pending nudge for an emitted candidate.
func New(userID string, c Candidate, now time.Time) *Nudge {
	return &Nudge{
		ID:              uuid.NewString(),
		UserID:          userID,
		RuleType:        c.RuleType,
		Score:           c.Result.Score,
		Reason:          c.Result.Reason,
		SuggestedAction: c.Result.SuggestedAction,
		ActionURL:       c.Result.ActionURL,
		Metadata:        c.Result.Metadata,
		Status:          StatusPending,
		CreatedAt:       now,
	}
}

// Active reports whether the nudge should be shown at now:
// pending ones always, snoozed ones once the snooze has elapsed.
func (n *Nudge) Active(now time.Time) bool {
	switch n.Status {
	case StatusPending:
		return true
	case StatusSnoozed:
		return n.SnoozeUntil == nil || !now.Before(*n.SnoozeUntil)
	default:
		return false
	}
}

// Action is a user outcome applied to a nudge.
type Action string

const (
	ActionAccept  Action = "accept"
	ActionSnooze  Action = "snooze"
	ActionDismiss Action = "dismiss"
)

// Transition returns the status and snooze deadline after applying action.
// Resolved nudges are left unchanged, which makes repeated accept/dismiss calls no-ops.
// changed is false when nothing has to be written.
func Transition(n *Nudge, action Action, until *time.Time, now time.Time) (status Status, snoozeUntil *time.Time, changed bool, err error) {
	if n.Status.Resolved() {
		return n.Status, n.SnoozeUntil, false, nil
	}

	switch action {
	case ActionAccept:
		return StatusAccepted, n.SnoozeUntil, true, nil
	case ActionDismiss:
		return StatusDismissed, n.SnoozeUntil, true, nil
	case ActionSnooze:
		if until == nil {
			return n.Status, n.SnoozeUntil, false, fmt.Errorf("%w: snooze deadline is required", ErrInvalidSnooze)
		}
		if !until.After(now) {
			return n.Status, n.SnoozeUntil, false, fmt.Errorf("%w: deadline %s is not in the future", ErrInvalidSnooze, until.Format(time.RFC3339))
		}
		u := until.UTC()
		return StatusSnoozed, &u, true, nil
	default:
		return n.Status, n.SnoozeUntil, false, fmt.Errorf("unknown action %q", action)
	}
}
