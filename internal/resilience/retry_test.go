package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tripcue/tripcue/internal/agent"
	"github.com/tripcue/tripcue/pkg/types"
)

func TestWrapRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	cap := agent.Func(types.RoleMusic, func(ctx context.Context, pt types.Point) (*types.ContentCandidate, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return &types.ContentCandidate{Role: types.RoleMusic, Title: "ok"}, nil
	})

	wrapped := Wrap(cap, Policy{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond})

	c, err := wrapped.Search(context.Background(), types.Point{Name: "pass"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if c.Title != "ok" {
		t.Errorf("candidate = %q, want %q", c.Title, "ok")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWrapExhaustsRetries(t *testing.T) {
	attempts := 0
	cap := agent.Func(types.RoleText, func(ctx context.Context, pt types.Point) (*types.ContentCandidate, error) {
		attempts++
		return nil, errors.New("permanent")
	})

	wrapped := Wrap(cap, Policy{MaxRetries: 2, InitialBackoff: time.Millisecond})

	if _, err := wrapped.Search(context.Background(), types.Point{}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWrapStopsOnCancelledContext(t *testing.T) {
	cap := agent.Func(types.RoleVideo, func(ctx context.Context, pt types.Point) (*types.ContentCandidate, error) {
		return nil, errors.New("transient")
	})

	wrapped := Wrap(cap, Policy{MaxRetries: 10, InitialBackoff: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := wrapped.Search(ctx, types.Point{})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("cancelled search kept retrying")
	}
}

func TestWrapPreservesRole(t *testing.T) {
	cap := agent.Func(types.RoleVideo, func(ctx context.Context, pt types.Point) (*types.ContentCandidate, error) {
		return nil, nil
	})
	if got := Wrap(cap, DefaultPolicy()).Role(); got != types.RoleVideo {
		t.Errorf("Role = %s, want %s", got, types.RoleVideo)
	}
}
