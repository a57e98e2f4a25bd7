package cmd

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/nudger/internal/engine"
	"github.com/spigell/nudger/internal/store"
)

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"daily_limit=5", "channels.email=true", "channels.push = false", "timezone=Europe/Berlin"})
	if err != nil {
		t.Fatalf("parseAssignments: %v", err)
	}

	want := map[string]any{
		"daily_limit": "5",
		"timezone":    "Europe/Berlin",
		"channels": map[string]any{
			"email": "true",
			"push":  "false",
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected map: %#v", got)
	}
}

func TestParseAssignmentsErrors(t *testing.T) {
	cases := [][]string{
		{"daily_limit"},
		{"=5"},
		{"channels=x", "channels.email=true"},
	}
	for _, args := range cases {
		if _, err := parseAssignments(args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func withDatabase(t *testing.T) {
	t.Helper()
	viper.Set("database", filepath.Join(t.TempDir(), "nudger.db"))
	t.Cleanup(func() {
		viper.Set("database", nil)
		viper.Set("snapshot.source", nil)
		viper.Set("enrollment.all", nil)
		viper.Set("enrollment.users", nil)
	})
}

func TestDefaultsDecode(t *testing.T) {
	config, err := getConfig()
	if err != nil {
		t.Fatalf("getConfig: %v", err)
	}

	if config.Snapshot == nil || config.Snapshot.Timeout != 5*time.Second {
		t.Fatalf("unexpected snapshot config: %+v", config.Snapshot)
	}
	if config.Defaults.DailyLimit != 3 || config.Defaults.QuietHoursStart != 22 || config.Defaults.QuietHoursEnd != 7 {
		t.Fatalf("unexpected defaults: %+v", config.Defaults)
	}
	if !config.Defaults.Channels["in_app"] {
		t.Fatalf("in_app channel should be enabled by default: %+v", config.Defaults.Channels)
	}
	if config.Rules.InterviewLookahead != 48*time.Hour {
		t.Fatalf("unexpected rules config: %+v", config.Rules)
	}
}

func TestNewServices(t *testing.T) {
	withDatabase(t)
	ctx := context.Background()

	s, err := newServices(ctx, zap.NewNop())
	if err != nil {
		t.Fatalf("newServices: %v", err)
	}
	defer s.Close()

	p, err := s.engine.GetUserPreferences(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserPreferences: %v", err)
	}
	if p.DailyLimit != 3 || p.Timezone != "UTC" {
		t.Fatalf("unexpected preferences: %+v", p)
	}

	ev, err := s.engine.EvaluateNudgesForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("EvaluateNudgesForUser: %v", err)
	}
	if ev.UserID != "u1" {
		t.Fatalf("unexpected evaluation: %+v", ev)
	}
}

func TestNewServicesEnrollment(t *testing.T) {
	withDatabase(t)
	viper.Set("enrollment.all", false)
	viper.Set("enrollment.users", []string{"u2"})
	ctx := context.Background()

	s, err := newServices(ctx, zap.NewNop())
	if err != nil {
		t.Fatalf("newServices: %v", err)
	}
	defer s.Close()

	ev, err := s.engine.EvaluateNudgesForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("EvaluateNudgesForUser: %v", err)
	}
	if ev.Outcome != engine.OutcomeGated {
		t.Fatalf("expected gated outcome for a user outside enrollment, got %s", ev.Outcome)
	}
}

func TestNewServicesBadSource(t *testing.T) {
	for _, source := range []string{"api", "carrier-pigeon"} {
		t.Run(source, func(t *testing.T) {
			withDatabase(t)
			viper.Set("snapshot.source", source)

			if _, err := newServices(context.Background(), zap.NewNop()); err == nil {
				t.Fatalf("expected error for source %q", source)
			}
		})
	}
}

var (
	_ engine.Store            = (*store.Store)(nil)
	_ engine.SnapshotProvider = (*store.Store)(nil)
)
