package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/nudger/internal/nudge"
)

const nudgeColumns = `id, user_id, rule_type, score, reason, suggested_action, action_url,
	metadata, status, created_at, snooze_until`

type scanner interface {
	Scan(dest ...any) error
}

func scanNudge(row scanner) (*nudge.Nudge, error) {
	var (
		n         nudge.Nudge
		ruleType  string
		status    string
		metadata  sql.NullString
		createdAt int64
		snooze    sql.NullInt64
	)
	if err := row.Scan(&n.ID, &n.UserID, &ruleType, &n.Score, &n.Reason, &n.SuggestedAction,
		&n.ActionURL, &metadata, &status, &createdAt, &snooze); err != nil {
		return nil, err
	}

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &n.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", n.ID, err)
		}
	}
	n.RuleType = nudge.RuleType(ruleType)
	n.Status = nudge.Status(status)
	n.CreatedAt = fromMillis(createdAt)
	n.SnoozeUntil = fromNullMillis(snooze)

	return &n, nil
}

func collectNudges(rows *sql.Rows) ([]*nudge.Nudge, error) {
	defer rows.Close()

	var res []*nudge.Nudge
	for rows.Next() {
		n, err := scanNudge(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// GetNudge returns a nudge by id or nudge.ErrNotFound.
func (s *Store) GetNudge(ctx context.Context, id string) (*nudge.Nudge, error) {
	n, err := scanNudge(s.db.QueryRowContext(ctx, `SELECT `+nudgeColumns+` FROM nudges WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("nudge %s: %w", id, nudge.ErrNotFound)
	}
	return n, err
}

// UpdateNudgeStatus moves an unresolved nudge to status. It reports false when the nudge
// was already resolved by someone else, in which case nothing is written.
func (s *Store) UpdateNudgeStatus(ctx context.Context, id string, status nudge.Status, snoozeUntil *time.Time, now time.Time) (bool, error) {
	var resolvedAt sql.NullInt64
	if status.Resolved() {
		resolvedAt = sql.NullInt64{Int64: toMillis(now), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE nudges
		SET status = ?, snooze_until = ?, resolved_at = ?
		WHERE id = ? AND status IN ('pending', 'snoozed')`,
		string(status), toNullMillis(snoozeUntil), resolvedAt, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListActive returns pending nudges and snoozed ones whose snooze has elapsed,
// best score first.
func (s *Store) ListActive(ctx context.Context, userID string, now time.Time) ([]*nudge.Nudge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nudgeColumns+`
		FROM nudges
		WHERE user_id = ?
		  AND (status = 'pending'
		       OR (status = 'snoozed' AND (snooze_until IS NULL OR snooze_until <= ?)))
		ORDER BY score DESC, created_at ASC, id ASC`,
		userID, toMillis(now),
	)
	if err != nil {
		return nil, err
	}
	return collectNudges(rows)
}

// ListNudgesSince returns every nudge of the user created at or after since, newest first.
func (s *Store) ListNudgesSince(ctx context.Context, userID string, since time.Time) ([]*nudge.Nudge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nudgeColumns+`
		FROM nudges
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id ASC`,
		userID, toMillis(since),
	)
	if err != nil {
		return nil, err
	}
	return collectNudges(rows)
}

// CountNudges returns the all-time number of nudges created for the user.
func (s *Store) CountNudges(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nudges WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// LastFired returns when the rule last fired for the user, or nil.
func (s *Store) LastFired(ctx context.Context, userID string, rt nudge.RuleType) (*time.Time, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_fired_at FROM rule_cooldowns WHERE user_id = ? AND rule_type = ?`,
		userID, string(rt),
	).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := fromMillis(ms)
	return &t, nil
}

// CommitState is what the selection callback of CommitEvaluation sees,
// read inside the same transaction that persists the selection.
type CommitState struct {
	FiredToday int
	LastFired  map[nudge.RuleType]time.Time
}

// CommitEvaluation reads today's count and the cooldowns, lets pick choose nudges
// from that state, then inserts them and advances their cooldowns, all in one
// IMMEDIATE transaction. Two concurrent commits for one user therefore never
// exceed the daily cap or double fire a rule.
func (s *Store) CommitEvaluation(ctx context.Context, userID string, day nudge.Window, pick func(CommitState) ([]*nudge.Nudge, error)) ([]*nudge.Nudge, error) {
	var picked []*nudge.Nudge

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		state := CommitState{LastFired: make(map[nudge.RuleType]time.Time)}

		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM nudges
			WHERE user_id = ? AND created_at >= ? AND created_at < ?`,
			userID, toMillis(day.Start), toMillis(day.End),
		).Scan(&state.FiredToday); err != nil {
			return fmt.Errorf("count today: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT rule_type, last_fired_at FROM rule_cooldowns WHERE user_id = ?`, userID)
		if err != nil {
			return fmt.Errorf("read cooldowns: %w", err)
		}
		for rows.Next() {
			var (
				rt string
				ms int64
			)
			if err := rows.Scan(&rt, &ms); err != nil {
				rows.Close()
				return err
			}
			state.LastFired[nudge.RuleType(rt)] = fromMillis(ms)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		picked, err = pick(state)
		if err != nil {
			return err
		}

		for _, n := range picked {
			if err := insertNudge(ctx, tx, n); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO rule_cooldowns (user_id, rule_type, last_fired_at)
				VALUES (?, ?, ?)
				ON CONFLICT(user_id, rule_type) DO UPDATE SET
					last_fired_at = MAX(last_fired_at, excluded.last_fired_at)`,
				n.UserID, string(n.RuleType), toMillis(n.CreatedAt),
			); err != nil {
				return fmt.Errorf("record cooldown: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return picked, nil
}

func insertNudge(ctx context.Context, tx *sql.Tx, n *nudge.Nudge) error {
	var metadata sql.NullString
	if len(n.Metadata) > 0 {
		raw, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO nudges (`+nudgeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, string(n.RuleType), n.Score, n.Reason, n.SuggestedAction, n.ActionURL,
		metadata, string(n.Status), toMillis(n.CreatedAt), toNullMillis(n.SnoozeUntil),
	)
	if err != nil {
		return fmt.Errorf("insert nudge %s: %w", n.ID, err)
	}
	return nil
}
