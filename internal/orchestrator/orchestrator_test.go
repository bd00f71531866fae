package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tripcue/tripcue/internal/agent"
	"github.com/tripcue/tripcue/internal/judge"
	"github.com/tripcue/tripcue/internal/tripstore"
	"github.com/tripcue/tripcue/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testCfg() Config {
	return Config{
		SoftTimeout: 100 * time.Millisecond,
		HardTimeout: 500 * time.Millisecond,
		SoftMinimum: 2,
		HardMinimum: 1,
	}
}

func okAgent(role types.AgentRole, score float64) agent.Capability {
	return agent.Func(role, func(ctx context.Context, pt types.Point) (*types.ContentCandidate, error) {
		return &types.ContentCandidate{
			Role:   role,
			Title:  fmt.Sprintf("%s for %s", role, pt.Name),
			Score:  score,
			Source: "test",
		}, nil
	})
}

func failAgent(role types.AgentRole) agent.Capability {
	return agent.Func(role, func(ctx context.Context, pt types.Point) (*types.ContentCandidate, error) {
		return nil, errors.New("upstream unavailable")
	})
}

func panicAgent(role types.AgentRole) agent.Capability {
	return agent.Func(role, func(ctx context.Context, pt types.Point) (*types.ContentCandidate, error) {
		panic("index out of range")
	})
}

func slowAgent(role types.AgentRole, delay time.Duration) agent.Capability {
	return agent.Func(role, func(ctx context.Context, pt types.Point) (*types.ContentCandidate, error) {
		select {
		case <-time.After(delay):
			return &types.ContentCandidate{Role: role, Title: "late", Score: 0.5}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func newTestTrip(t *testing.T, store tripstore.TripStore, route *types.Route) string {
	t.Helper()
	id, err := store.CreateTrip(context.Background(), "test trip", route)
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}
	return id
}

func routeOf(n int) *types.Route {
	r := &types.Route{Name: "coastal"}
	for i := 0; i < n; i++ {
		r.Points = append(r.Points, types.Point{
			Index: i,
			ID:    fmt.Sprintf("pt-%d", i),
			Name:  fmt.Sprintf("stop %d", i),
		})
	}
	return r
}

func TestNewRejectsEmptyAgents(t *testing.T) {
	_, err := New(nil, judge.NewScoreJudge(), tripstore.NewMemoryStore(nil), testCfg(), testLogger())
	if err == nil {
		t.Fatal("expected error for empty agent set")
	}
}

func TestNewRejectsBadTiers(t *testing.T) {
	cfg := testCfg()
	cfg.SoftMinimum = 0
	agents := []agent.Capability{okAgent(types.RoleVideo, 1), okAgent(types.RoleMusic, 1)}
	_, err := New(agents, judge.NewScoreJudge(), tripstore.NewMemoryStore(nil), cfg, testLogger())
	if err == nil {
		t.Fatal("expected tier validation error at construction")
	}
}

func TestProcessPointAllSucceed(t *testing.T) {
	store := tripstore.NewMemoryStore(nil)
	agents := []agent.Capability{
		okAgent(types.RoleVideo, 0.9),
		okAgent(types.RoleMusic, 0.4),
		okAgent(types.RoleText, 0.7),
	}
	cfg := testCfg()
	cfg.SoftMinimum = 2
	cfg.HardMinimum = 1
	o, err := New(agents, judge.NewScoreJudge(), store, cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	route := routeOf(1)
	tripID := newTestTrip(t, store, route)

	d, err := o.ProcessPoint(context.Background(), tripID, route.Points[0])
	if err != nil {
		t.Fatalf("ProcessPoint: %v", err)
	}
	if d.Status != types.PointStatusComplete {
		t.Fatalf("status = %s, want complete", d.Status)
	}
	if len(d.Candidates) != 3 {
		t.Fatalf("candidates = %d, want 3", len(d.Candidates))
	}
	if d.Chosen == nil || d.Chosen.Role != types.RoleVideo {
		t.Fatalf("chosen = %+v, want highest-scoring video candidate", d.Chosen)
	}

	state, err := store.GetPointState(context.Background(), tripID, "pt-0")
	if err != nil {
		t.Fatalf("GetPointState: %v", err)
	}
	if state.Status != types.PointStatusComplete {
		t.Fatalf("persisted status = %s, want complete", state.Status)
	}
	if state.ResolvedAt == nil {
		t.Fatal("persisted state missing ResolvedAt")
	}
}

func TestProcessPointPartialFailureDegrades(t *testing.T) {
	store := tripstore.NewMemoryStore(nil)
	agents := []agent.Capability{
		okAgent(types.RoleVideo, 0.9),
		okAgent(types.RoleMusic, 0.4),
		failAgent(types.RoleText),
	}
	o, err := New(agents, judge.NewScoreJudge(), store, testCfg(), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	route := routeOf(1)
	tripID := newTestTrip(t, store, route)

	d, err := o.ProcessPoint(context.Background(), tripID, route.Points[0])
	if err != nil {
		t.Fatalf("ProcessPoint: %v", err)
	}
	// All three reported, two succeeded: soft quorum met, resolved
	// without waiting for any deadline.
	if d.Status != types.PointStatusSoftDegraded {
		t.Fatalf("status = %s, want soft_degraded", d.Status)
	}
	if len(d.Candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(d.Candidates))
	}
	if d.Chosen == nil {
		t.Fatal("degraded point still has candidates; expected a chosen one")
	}
}

func TestProcessPointPanicIsContained(t *testing.T) {
	store := tripstore.NewMemoryStore(nil)
	agents := []agent.Capability{
		okAgent(types.RoleVideo, 0.9),
		panicAgent(types.RoleMusic),
		panicAgent(types.RoleText),
	}
	cfg := testCfg()
	cfg.SoftMinimum = 2
	cfg.HardMinimum = 1
	o, err := New(agents, judge.NewScoreJudge(), store, cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	route := routeOf(1)
	tripID := newTestTrip(t, store, route)

	d, err := o.ProcessPoint(context.Background(), tripID, route.Points[0])
	if err != nil {
		t.Fatalf("ProcessPoint: %v", err)
	}
	// Two panics become failure outcomes; all three reported so the
	// point resolves immediately at the hard tier.
	if d.Status != types.PointStatusHardDegraded {
		t.Fatalf("status = %s, want hard_degraded", d.Status)
	}
	if len(d.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(d.Candidates))
	}
	if len(d.Report.Unresolved) != 2 {
		t.Fatalf("unresolved = %v, want the two panicking roles", d.Report.Unresolved)
	}
}

func TestProcessPointAllFail(t *testing.T) {
	store := tripstore.NewMemoryStore(nil)
	agents := []agent.Capability{
		failAgent(types.RoleVideo),
		failAgent(types.RoleMusic),
	}
	cfg := testCfg()
	cfg.SoftMinimum = 1
	cfg.HardMinimum = 1
	o, err := New(agents, judge.NewScoreJudge(), store, cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	route := routeOf(1)
	tripID := newTestTrip(t, store, route)

	d, err := o.ProcessPoint(context.Background(), tripID, route.Points[0])
	if err != nil {
		t.Fatalf("ProcessPoint: %v", err)
	}
	if d.Status != types.PointStatusFailed {
		t.Fatalf("status = %s, want failed", d.Status)
	}
	if d.Chosen != nil {
		t.Fatalf("failed point must not choose content, got %+v", d.Chosen)
	}
	if d.Note == "" {
		t.Fatal("failed decision should explain itself")
	}
}

func TestProcessPointSlowAgentMissesSoftDeadline(t *testing.T) {
	store := tripstore.NewMemoryStore(nil)
	agents := []agent.Capability{
		okAgent(types.RoleVideo, 0.9),
		okAgent(types.RoleMusic, 0.4),
		slowAgent(types.RoleText, 2*time.Second),
	}
	o, err := New(agents, judge.NewScoreJudge(), store, testCfg(), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	route := routeOf(1)
	tripID := newTestTrip(t, store, route)

	start := time.Now()
	d, err := o.ProcessPoint(context.Background(), tripID, route.Points[0])
	if err != nil {
		t.Fatalf("ProcessPoint: %v", err)
	}
	elapsed := time.Since(start)

	if d.Status != types.PointStatusSoftDegraded {
		t.Fatalf("status = %s, want soft_degraded", d.Status)
	}
	if elapsed < 90*time.Millisecond || elapsed > 400*time.Millisecond {
		t.Fatalf("resolved after %v, expected around the soft deadline", elapsed)
	}
	if len(d.Report.Unresolved) != 1 || d.Report.Unresolved[0] != types.RoleText {
		t.Fatalf("unresolved = %v, want [text]", d.Report.Unresolved)
	}
}

func TestProcessRouteRestoresOrder(t *testing.T) {
	store := tripstore.NewMemoryStore(nil)
	// Per-point latency depends on the point, so completion order is
	// scrambled relative to route order.
	agents := []agent.Capability{
		agent.Func(types.RoleVideo, func(ctx context.Context, pt types.Point) (*types.ContentCandidate, error) {
			time.Sleep(time.Duration((3-pt.Index)*10) * time.Millisecond)
			return &types.ContentCandidate{Role: types.RoleVideo, Title: pt.Name, Score: 1}, nil
		}),
		okAgent(types.RoleMusic, 0.5),
	}
	cfg := testCfg()
	cfg.SoftMinimum = 1
	cfg.HardMinimum = 1
	o, err := New(agents, judge.NewScoreJudge(), store, cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	route := routeOf(4)
	tripID := newTestTrip(t, store, route)

	decisions, err := o.ProcessRoute(context.Background(), tripID, route)
	if err != nil {
		t.Fatalf("ProcessRoute: %v", err)
	}
	if len(decisions) != 4 {
		t.Fatalf("decisions = %d, want 4", len(decisions))
	}
	for i, d := range decisions {
		if d.PointIndex != i {
			t.Fatalf("decisions[%d].PointIndex = %d, route order not restored", i, d.PointIndex)
		}
	}

	meta, err := store.GetTripMeta(context.Background(), tripID)
	if err != nil {
		t.Fatalf("GetTripMeta: %v", err)
	}
	if meta.Status != types.TripStatusSucceeded {
		t.Fatalf("trip status = %s, want succeeded", meta.Status)
	}

	stored, err := store.GetDecisions(context.Background(), tripID)
	if err != nil {
		t.Fatalf("GetDecisions: %v", err)
	}
	if len(stored) != 4 {
		t.Fatalf("stored decisions = %d, want 4", len(stored))
	}
}

func TestProcessRouteRespectsConcurrencyCap(t *testing.T) {
	store := tripstore.NewMemoryStore(nil)

	var inFlight, peak int64
	tracking := agent.Func(types.RoleVideo, func(ctx context.Context, pt types.Point) (*types.ContentCandidate, error) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return &types.ContentCandidate{Role: types.RoleVideo, Title: pt.Name, Score: 1}, nil
	})

	cfg := testCfg()
	cfg.SoftMinimum = 1
	cfg.HardMinimum = 1
	cfg.MaxConcurrentPoints = 2
	o, err := New([]agent.Capability{tracking}, judge.NewScoreJudge(), store, cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	route := routeOf(6)
	tripID := newTestTrip(t, store, route)

	if _, err := o.ProcessRoute(context.Background(), tripID, route); err != nil {
		t.Fatalf("ProcessRoute: %v", err)
	}
	if p := atomic.LoadInt64(&peak); p > 2 {
		t.Fatalf("peak concurrent points = %d, cap is 2", p)
	}
}

func TestProcessRouteAllPointsFail(t *testing.T) {
	store := tripstore.NewMemoryStore(nil)
	cfg := testCfg()
	cfg.SoftMinimum = 1
	cfg.HardMinimum = 1
	o, err := New([]agent.Capability{failAgent(types.RoleVideo)}, judge.NewScoreJudge(), store, cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	route := routeOf(2)
	tripID := newTestTrip(t, store, route)

	decisions, err := o.ProcessRoute(context.Background(), tripID, route)
	if err != nil {
		t.Fatalf("ProcessRoute: %v", err)
	}
	for _, d := range decisions {
		if d.Status != types.PointStatusFailed {
			t.Fatalf("point %s status = %s, want failed", d.PointID, d.Status)
		}
	}

	meta, err := store.GetTripMeta(context.Background(), tripID)
	if err != nil {
		t.Fatalf("GetTripMeta: %v", err)
	}
	if meta.Status != types.TripStatusFailed {
		t.Fatalf("trip status = %s, want failed", meta.Status)
	}
}

func TestProcessRouteCancelStopsAdmission(t *testing.T) {
	store := tripstore.NewMemoryStore(nil)

	var started int64
	slow := agent.Func(types.RoleVideo, func(ctx context.Context, pt types.Point) (*types.ContentCandidate, error) {
		atomic.AddInt64(&started, 1)
		time.Sleep(30 * time.Millisecond)
		return &types.ContentCandidate{Role: types.RoleVideo, Title: pt.Name, Score: 1}, nil
	})

	cfg := testCfg()
	cfg.SoftMinimum = 1
	cfg.HardMinimum = 1
	cfg.MaxConcurrentPoints = 1
	o, err := New([]agent.Capability{slow}, judge.NewScoreJudge(), store, cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	route := routeOf(5)
	tripID := newTestTrip(t, store, route)

	// Cancel after the first point has had time to start.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		if err := store.CancelTrip(context.Background(), tripID); err != nil {
			t.Errorf("CancelTrip: %v", err)
		}
	}()

	decisions, err := o.ProcessRoute(context.Background(), tripID, route)
	wg.Wait()
	if err != nil {
		t.Fatalf("ProcessRoute: %v", err)
	}
	if len(decisions) != 5 {
		t.Fatalf("decisions = %d, want one per point regardless of cancellation", len(decisions))
	}
	if atomic.LoadInt64(&started) >= 5 {
		t.Fatal("cancellation did not stop point admission")
	}

	meta, err := store.GetTripMeta(context.Background(), tripID)
	if err != nil {
		t.Fatalf("GetTripMeta: %v", err)
	}
	if meta.Status != types.TripStatusCancelled {
		t.Fatalf("trip status = %s, want cancelled", meta.Status)
	}
}

func TestProcessRouteEmitsEvents(t *testing.T) {
	store := tripstore.NewMemoryStore(nil)
	cfg := testCfg()
	cfg.SoftMinimum = 1
	cfg.HardMinimum = 1
	o, err := New([]agent.Capability{okAgent(types.RoleVideo, 1)}, judge.NewScoreJudge(), store, cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	route := routeOf(2)
	tripID := newTestTrip(t, store, route)

	if _, err := o.ProcessRoute(context.Background(), tripID, route); err != nil {
		t.Fatalf("ProcessRoute: %v", err)
	}

	events, err := store.GetEventsSince(context.Background(), tripID, "")
	if err != nil {
		t.Fatalf("GetEventsSince: %v", err)
	}

	counts := map[types.EventType]int{}
	for _, ev := range events {
		counts[ev.Type]++
	}
	if counts[types.EventTypeTripStatus] != 2 {
		t.Fatalf("trip_status events = %d, want 2 (running and terminal)", counts[types.EventTypeTripStatus])
	}
	if counts[types.EventTypePointDecision] != 2 {
		t.Fatalf("point_decision events = %d, want 2", counts[types.EventTypePointDecision])
	}
	if counts[types.EventTypePointStatus] != 2 {
		t.Fatalf("point_status events = %d, want 2", counts[types.EventTypePointStatus])
	}
}
