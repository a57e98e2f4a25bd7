package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{
			name:   "returns empty when limit non-positive",
			input:  "interview tomorrow",
			limit:  0,
			expect: "",
		},
		{
			name:   "shorter than limit",
			input:  "hello",
			limit:  10,
			expect: "hello",
		},
		{
			name:   "truncates and adds ellipsis",
			input:  "interview tomorrow",
			limit:  9,
			expect: "interview...",
		},
		{
			name:   "counts runes not bytes",
			input:  "résumé",
			limit:  3,
			expect: "rés...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tt.input, tt.limit); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestWaitForCompletes(t *testing.T) {
	original := timer
	timer = func(time.Duration) (<-chan time.Time, func() bool) {
		c := make(chan time.Time, 1)
		c <- time.Now()
		return c, func() bool { return false }
	}
	defer func() { timer = original }()

	if err := WaitFor(context.Background(), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitForCancelled(t *testing.T) {
	original := timer
	stopped := false
	timer = func(time.Duration) (<-chan time.Time, func() bool) {
		return make(chan time.Time), func() bool { stopped = true; return true }
	}
	defer func() { timer = original }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitFor(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !stopped {
		t.Fatalf("expected the timer to be stopped")
	}
}

func TestWaitForNonPositive(t *testing.T) {
	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := WaitFor(ctx, -time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaitForRealTimer(t *testing.T) {
	start := time.Now()
	if err := WaitFor(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("returned before the timer fired")
	}
}
