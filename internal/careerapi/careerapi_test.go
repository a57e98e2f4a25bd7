package careerapi

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spigell/nudger/internal/nudge"
)

var testNow = time.Date(2025, time.May, 20, 14, 0, 0, 0, time.UTC)

func TestSnapshot(t *testing.T) {
	state := CareerState{
		Profile:      nudge.Profile{Headline: "SRE", Skills: []string{"Go"}},
		TargetSkills: []string{"Terraform"},
		Applications: []nudge.Application{{ID: "a1", Company: "Acme", Status: "applied"}},
		Interviews:   []nudge.Interview{{ID: "i1", ScheduledAt: testNow.Add(time.Hour), Status: "scheduled"}},
		Goals:        []nudge.Goal{{ID: "g1", Title: "Learn Rust"}},
		Documents:    []nudge.Document{{ID: "d1", Kind: "resume", QualityScore: 70}},
	}

	var gotAuth, gotAgent, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		gotPath = r.URL.EscapedPath()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		_ = json.NewEncoder(gz).Encode(state)
	}))
	defer srv.Close()

	c, err := New(nil, srv.URL+"/", "secret")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	snap, err := c.Snapshot(context.Background(), "user 1", testNow, time.UTC)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotAgent != userAgent {
		t.Fatalf("unexpected user agent %q", gotAgent)
	}
	if gotPath != "/users/user%201/career-state" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if snap.UserID != "user 1" || !snap.Now.Equal(testNow) || snap.Location != time.UTC {
		t.Fatalf("snapshot not stamped: %+v", snap)
	}
	if snap.Profile.Headline != "SRE" || len(snap.Applications) != 1 || len(snap.Interviews) != 1 ||
		len(snap.Goals) != 1 || len(snap.Documents) != 1 || snap.TargetSkills[0] != "Terraform" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestSnapshotNotFoundIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c, _ := New(nil, srv.URL, "")
	snap, err := c.Snapshot(context.Background(), "u1", testNow, time.UTC)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Applications) != 0 || snap.UserID != "u1" {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestSnapshotErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "broken json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"profile":`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c, _ := New(nil, srv.URL, "token")
			if _, err := c.Snapshot(context.Background(), "u1", testNow, time.UTC); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestSnapshotHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _ := New(nil, srv.URL, "token")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.Snapshot(ctx, "u1", testNow, time.UTC); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(nil, "  ", "token"); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
