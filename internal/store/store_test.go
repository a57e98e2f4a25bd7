package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spigell/nudger/internal/nudge"
)

var testNow = time.Date(2025, time.May, 20, 14, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nudger.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func pendingNudge(userID string, rt nudge.RuleType, score float64, at time.Time) *nudge.Nudge {
	return nudge.New(userID, nudge.Candidate{
		RuleType: rt,
		Category: nudge.CategoryUrgency,
		Result: nudge.RuleResult{
			ShouldTrigger: true,
			Score:         score,
			Reason:        "because " + string(rt),
			Metadata:      map[string]any{"k": "v"},
		},
	}, at)
}

func commitAll(t *testing.T, s *Store, userID string, nudges ...*nudge.Nudge) {
	t.Helper()
	_, err := s.CommitEvaluation(context.Background(), userID, nudge.Day(testNow, time.UTC),
		func(CommitState) ([]*nudge.Nudge, error) { return nudges, nil })
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "nudger.db")
	for range 2 {
		s, err := Open(context.Background(), path)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		_ = s.Close()
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetPreferences(ctx, "u1"); !errors.Is(err, nudge.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	p := nudge.DefaultPreferences("u1", nudge.StandardDefaults())
	p.Timezone = "Europe/Berlin"
	p.Channels[nudge.ChannelEmail] = true
	if err := s.SavePreferences(ctx, p, testNow); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetPreferences(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Timezone != "Europe/Berlin" || !got.ChannelEnabled(nudge.ChannelEmail) || got.DailyLimit != 3 {
		t.Fatalf("unexpected preferences: %+v", got)
	}
	if !got.UpdatedAt.Equal(testNow) {
		t.Fatalf("unexpected updated_at %v", got.UpdatedAt)
	}

	other := p.Clone()
	other.DailyLimit = 9
	kept, err := s.InsertPreferencesIfMissing(ctx, other, testNow)
	if err != nil {
		t.Fatalf("insert if missing: %v", err)
	}
	if kept.DailyLimit != 3 {
		t.Fatalf("existing preferences must win, got limit %d", kept.DailyLimit)
	}
}

func TestCommitEvaluationRecordsNudgesAndCooldowns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := pendingNudge("u1", nudge.RuleAppRescue, 80, testNow.Add(-time.Hour))
	commitAll(t, s, "u1", first)

	var seen CommitState
	_, err := s.CommitEvaluation(ctx, "u1", nudge.Day(testNow, time.UTC), func(st CommitState) ([]*nudge.Nudge, error) {
		seen = st
		return nil, nil
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if seen.FiredToday != 1 {
		t.Fatalf("expected one nudge today, got %d", seen.FiredToday)
	}
	if last := seen.LastFired[nudge.RuleAppRescue]; !last.Equal(first.CreatedAt) {
		t.Fatalf("unexpected cooldown %v", last)
	}

	got, err := s.GetNudge(ctx, first.ID)
	if err != nil {
		t.Fatalf("get nudge: %v", err)
	}
	if got.Status != nudge.StatusPending || got.Metadata["k"] != "v" || got.RuleType != nudge.RuleAppRescue {
		t.Fatalf("unexpected nudge: %+v", got)
	}

	last, err := s.LastFired(ctx, "u1", nudge.RuleAppRescue)
	if err != nil || last == nil || !last.Equal(first.CreatedAt) {
		t.Fatalf("LastFired = %v, %v", last, err)
	}
	if last, err := s.LastFired(ctx, "u1", nudge.RuleSkillGap); err != nil || last != nil {
		t.Fatalf("expected no cooldown, got %v, %v", last, err)
	}
}

func TestCooldownNeverMovesBackwards(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	commitAll(t, s, "u1", pendingNudge("u1", nudge.RuleGoalStalled, 60, testNow))
	commitAll(t, s, "u1", pendingNudge("u1", nudge.RuleGoalStalled, 60, testNow.Add(-5*time.Hour)))

	last, err := s.LastFired(ctx, "u1", nudge.RuleGoalStalled)
	if err != nil {
		t.Fatalf("last fired: %v", err)
	}
	if !last.Equal(testNow) {
		t.Fatalf("cooldown moved backwards to %v", last)
	}
}

func TestCommitEvaluationRollsBackOnPickError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := s.CommitEvaluation(ctx, "u1", nudge.Day(testNow, time.UTC), func(CommitState) ([]*nudge.Nudge, error) {
		return []*nudge.Nudge{pendingNudge("u1", nudge.RuleDailyCheck, 20, testNow)}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected pick error, got %v", err)
	}
	if n, _ := s.CountNudges(ctx, "u1"); n != 0 {
		t.Fatalf("expected nothing persisted, got %d", n)
	}
}

func TestConcurrentCommitsRespectCap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	const limit = 2

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CommitEvaluation(ctx, "u1", nudge.Day(testNow, time.UTC), func(st CommitState) ([]*nudge.Nudge, error) {
				if st.FiredToday >= limit {
					return nil, nil
				}
				return []*nudge.Nudge{pendingNudge("u1", nudge.RuleDailyCheck, float64(i), testNow)}, nil
			})
			if err != nil {
				t.Errorf("commit: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if n, _ := s.CountNudges(ctx, "u1"); n != limit {
		t.Fatalf("expected %d nudges, got %d", limit, n)
	}
}

func TestUpdateNudgeStatusIsConditional(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n := pendingNudge("u1", nudge.RuleResumeWeak, 55, testNow)
	commitAll(t, s, "u1", n)

	until := testNow.Add(3 * time.Hour)
	changed, err := s.UpdateNudgeStatus(ctx, n.ID, nudge.StatusSnoozed, &until, testNow)
	if err != nil || !changed {
		t.Fatalf("snooze: changed=%v err=%v", changed, err)
	}

	active, err := s.ListActive(ctx, "u1", testNow)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("snoozed nudge must be hidden until its deadline")
	}

	active, _ = s.ListActive(ctx, "u1", until)
	if len(active) != 1 || active[0].ID != n.ID || active[0].Status != nudge.StatusSnoozed {
		t.Fatalf("expected snoozed nudge to resurface unchanged, got %+v", active)
	}

	if changed, _ := s.UpdateNudgeStatus(ctx, n.ID, nudge.StatusAccepted, nil, testNow); !changed {
		t.Fatalf("expected accept to apply")
	}
	if changed, _ := s.UpdateNudgeStatus(ctx, n.ID, nudge.StatusDismissed, nil, testNow); changed {
		t.Fatalf("resolved nudge must not change")
	}

	got, _ := s.GetNudge(ctx, n.ID)
	if got.Status != nudge.StatusAccepted {
		t.Fatalf("unexpected status %s", got.Status)
	}

	if _, err := s.GetNudge(ctx, "missing"); !errors.Is(err, nudge.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListNudgesSince(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := pendingNudge("u1", nudge.RuleSkillGap, 50, testNow.AddDate(0, 0, -10))
	recent := pendingNudge("u1", nudge.RuleProfileIncomplete, 45, testNow.Add(-time.Hour))
	foreign := pendingNudge("u2", nudge.RuleProfileIncomplete, 45, testNow)
	commitAll(t, s, "u1", old, recent)
	commitAll(t, s, "u2", foreign)

	got, err := s.ListNudgesSince(ctx, "u1", testNow.AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != recent.ID {
		t.Fatalf("unexpected nudges: %+v", got)
	}
	if n, _ := s.CountNudges(ctx, "u1"); n != 2 {
		t.Fatalf("expected total 2, got %d", n)
	}
}

const stateDoc = `{
  "users": [
    {
      "id": "u1",
      "profile": {"headline": "Backend engineer", "skills": ["Go", "SQL"]},
      "target_skills": ["Kubernetes"],
      "last_active_at": "2025-05-19T08:00:00Z",
      "applications": [
        {"id": "a1", "company": "Acme", "title": "SRE", "status": "applied",
         "applied_at": "2025-04-01T10:00:00Z", "last_status_change": "2025-04-02T10:00:00Z"}
      ],
      "interviews": [
        {"id": "i1", "application_id": "a1", "company": "Acme",
         "scheduled_at": "2025-05-21T09:00:00Z", "status": "scheduled"}
      ],
      "goals": [{"id": "g1", "title": "Ship side project", "progress": 0, "created_at": "2025-03-01T00:00:00Z"}],
      "documents": [{"id": "d1", "kind": "resume", "title": "CV", "quality_score": 42}]
    }
  ]
}`

func TestImportAndSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.ImportState(ctx, strings.NewReader(stateDoc))
	if err != nil || n != 1 {
		t.Fatalf("import: n=%d err=%v", n, err)
	}
	// re-import replaces instead of duplicating
	if _, err := s.ImportState(ctx, strings.NewReader(stateDoc)); err != nil {
		t.Fatalf("re-import: %v", err)
	}

	snap, err := s.Snapshot(ctx, "u1", testNow, time.UTC)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Profile.Headline != "Backend engineer" || len(snap.Profile.Skills) != 2 {
		t.Fatalf("unexpected profile: %+v", snap.Profile)
	}
	if len(snap.Applications) != 1 || snap.Applications[0].LastStatusChange.IsZero() {
		t.Fatalf("unexpected applications: %+v", snap.Applications)
	}
	if len(snap.Interviews) != 1 || snap.Interviews[0].ApplicationID != "a1" {
		t.Fatalf("unexpected interviews: %+v", snap.Interviews)
	}
	if len(snap.Goals) != 1 || len(snap.Documents) != 1 || snap.Documents[0].QualityScore != 42 {
		t.Fatalf("unexpected goals or documents: %+v %+v", snap.Goals, snap.Documents)
	}
	if snap.LastActiveAt == nil || snap.LastActiveAt.Hour() != 8 {
		t.Fatalf("unexpected last active: %v", snap.LastActiveAt)
	}
	if len(snap.TargetSkills) != 1 || snap.TargetSkills[0] != "Kubernetes" {
		t.Fatalf("unexpected target skills: %v", snap.TargetSkills)
	}

	empty, err := s.Snapshot(ctx, "nobody", testNow, time.UTC)
	if err != nil {
		t.Fatalf("snapshot of unknown user: %v", err)
	}
	if len(empty.Applications) != 0 || empty.UserID != "nobody" {
		t.Fatalf("expected empty snapshot, got %+v", empty)
	}
}

func TestImportRejectsBadDocuments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.ImportState(ctx, strings.NewReader(`{"users":[{"profile":{}}]}`)); err == nil {
		t.Fatalf("expected error for user without id")
	}
	if _, err := s.ImportState(ctx, strings.NewReader(`{"people":[]}`)); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestListUserIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.ImportState(ctx, strings.NewReader(stateDoc)); err != nil {
		t.Fatalf("import: %v", err)
	}
	if err := s.SavePreferences(ctx, nudge.DefaultPreferences("u0", nudge.StandardDefaults()), testNow); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SavePreferences(ctx, nudge.DefaultPreferences("u1", nudge.StandardDefaults()), testNow); err != nil {
		t.Fatalf("save: %v", err)
	}

	ids, err := s.ListUserIDs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Join(ids, ",") != "u0,u1" {
		t.Fatalf("unexpected ids %v", ids)
	}
}
