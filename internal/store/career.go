package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spigell/nudger/internal/nudge"
)

// UserState is one user's career data as accepted by ImportState.
type UserState struct {
	ID           string              `json:"id"`
	Profile      nudge.Profile       `json:"profile"`
	TargetSkills []string            `json:"target_skills"`
	LastActiveAt *time.Time          `json:"last_active_at,omitempty"`
	Applications []nudge.Application `json:"applications"`
	Interviews   []nudge.Interview   `json:"interviews"`
	Goals        []nudge.Goal        `json:"goals"`
	Documents    []nudge.Document    `json:"documents"`
}

// StateFile is the import document: {"users": [...]}.
type StateFile struct {
	Users []UserState `json:"users"`
}

// ImportState replaces the career data of every user in the document.
// Users not mentioned are left alone. The whole import is one transaction.
func (s *Store) ImportState(ctx context.Context, r io.Reader) (int, error) {
	var doc StateFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return 0, fmt.Errorf("decode state: %w", err)
	}

	for i, u := range doc.Users {
		if strings.TrimSpace(u.ID) == "" {
			return 0, fmt.Errorf("user #%d has no id", i)
		}
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, u := range doc.Users {
			if err := replaceUser(ctx, tx, u); err != nil {
				return fmt.Errorf("user %s: %w", u.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(doc.Users), nil
}

func replaceUser(ctx context.Context, tx *sql.Tx, u UserState) error {
	// cascades to every career table
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, u.ID); err != nil {
		return err
	}

	p := u.Profile
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, headline, summary, location, phone, linkedin_url, last_active_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, p.Headline, p.Summary, p.Location, p.Phone, p.LinkedInURL, toNullMillis(u.LastActiveAt),
	); err != nil {
		return err
	}

	for _, skill := range p.Skills {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO user_skills (user_id, skill) VALUES (?, ?)`, u.ID, skill); err != nil {
			return err
		}
	}
	for _, skill := range u.TargetSkills {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO target_skills (user_id, skill) VALUES (?, ?)`, u.ID, skill); err != nil {
			return err
		}
	}

	for _, a := range u.Applications {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO applications (id, user_id, company, title, status, applied_at, last_status_change)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, u.ID, a.Company, a.Title, a.Status, zeroableMillis(a.AppliedAt), zeroableMillis(a.LastStatusChange),
		); err != nil {
			return fmt.Errorf("application %s: %w", a.ID, err)
		}
	}

	for _, iv := range u.Interviews {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO interviews (id, user_id, application_id, company, scheduled_at, status)
			VALUES (?, ?, ?, ?, ?, ?)`,
			iv.ID, u.ID, iv.ApplicationID, iv.Company, toMillis(iv.ScheduledAt), iv.Status,
		); err != nil {
			return fmt.Errorf("interview %s: %w", iv.ID, err)
		}
	}

	for _, g := range u.Goals {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO goals (id, user_id, title, progress, completed, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			g.ID, u.ID, g.Title, g.Progress, boolToInt(g.Completed), zeroableMillis(g.CreatedAt),
		); err != nil {
			return fmt.Errorf("goal %s: %w", g.ID, err)
		}
	}

	for _, d := range u.Documents {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (id, user_id, kind, title, quality_score, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			d.ID, u.ID, d.Kind, d.Title, d.QualityScore, zeroableMillis(d.UpdatedAt),
		); err != nil {
			return fmt.Errorf("document %s: %w", d.ID, err)
		}
	}

	return nil
}

// Snapshot reads the user's career data. A user without any rows gets an empty
// snapshot: absent data is not an error.
func (s *Store) Snapshot(ctx context.Context, userID string, now time.Time, loc *time.Location) (*nudge.Snapshot, error) {
	snap := &nudge.Snapshot{UserID: userID, Now: now, Location: loc}

	var lastActive sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT headline, summary, location, phone, linkedin_url, last_active_at
		FROM users WHERE id = ?`, userID,
	).Scan(&snap.Profile.Headline, &snap.Profile.Summary, &snap.Profile.Location,
		&snap.Profile.Phone, &snap.Profile.LinkedInURL, &lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	snap.LastActiveAt = fromNullMillis(lastActive)

	if snap.Profile.Skills, err = s.queryStrings(ctx, `SELECT skill FROM user_skills WHERE user_id = ? ORDER BY skill`, userID); err != nil {
		return nil, fmt.Errorf("read skills: %w", err)
	}
	if snap.TargetSkills, err = s.queryStrings(ctx, `SELECT skill FROM target_skills WHERE user_id = ? ORDER BY skill`, userID); err != nil {
		return nil, fmt.Errorf("read target skills: %w", err)
	}
	if snap.Applications, err = s.applications(ctx, userID); err != nil {
		return nil, fmt.Errorf("read applications: %w", err)
	}
	if snap.Interviews, err = s.interviews(ctx, userID); err != nil {
		return nil, fmt.Errorf("read interviews: %w", err)
	}
	if snap.Goals, err = s.goals(ctx, userID); err != nil {
		return nil, fmt.Errorf("read goals: %w", err)
	}
	if snap.Documents, err = s.documents(ctx, userID); err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}

	return snap, nil
}

// ListUserIDs returns every user known to the store, either through career data or preferences.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `
		SELECT id FROM users
		UNION
		SELECT user_id FROM nudge_preferences
		ORDER BY 1`)
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (s *Store) applications(ctx context.Context, userID string) ([]nudge.Application, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company, title, status, applied_at, last_status_change
		FROM applications WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []nudge.Application
	for rows.Next() {
		var (
			a               nudge.Application
			applied, change sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.Company, &a.Title, &a.Status, &applied, &change); err != nil {
			return nil, err
		}
		a.AppliedAt = timeOrZero(applied)
		a.LastStatusChange = timeOrZero(change)
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *Store) interviews(ctx context.Context, userID string) ([]nudge.Interview, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, application_id, company, scheduled_at, status
		FROM interviews WHERE user_id = ? ORDER BY scheduled_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []nudge.Interview
	for rows.Next() {
		var (
			iv        nudge.Interview
			scheduled int64
		)
		if err := rows.Scan(&iv.ID, &iv.ApplicationID, &iv.Company, &scheduled, &iv.Status); err != nil {
			return nil, err
		}
		iv.ScheduledAt = fromMillis(scheduled)
		res = append(res, iv)
	}
	return res, rows.Err()
}

func (s *Store) goals(ctx context.Context, userID string) ([]nudge.Goal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, progress, completed, created_at
		FROM goals WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []nudge.Goal
	for rows.Next() {
		var (
			g         nudge.Goal
			completed int
			created   sql.NullInt64
		)
		if err := rows.Scan(&g.ID, &g.Title, &g.Progress, &completed, &created); err != nil {
			return nil, err
		}
		g.Completed = completed != 0
		g.CreatedAt = timeOrZero(created)
		res = append(res, g)
	}
	return res, rows.Err()
}

func (s *Store) documents(ctx context.Context, userID string) ([]nudge.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, title, quality_score, updated_at
		FROM documents WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []nudge.Document
	for rows.Next() {
		var (
			d       nudge.Document
			updated sql.NullInt64
		)
		if err := rows.Scan(&d.ID, &d.Kind, &d.Title, &d.QualityScore, &updated); err != nil {
			return nil, err
		}
		d.UpdatedAt = timeOrZero(updated)
		res = append(res, d)
	}
	return res, rows.Err()
}
