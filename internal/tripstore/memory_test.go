package tripstore

import (
	"context"
	"testing"
	"time"

	"github.com/tripcue/tripcue/pkg/types"
)

func testRoute() *types.Route {
	return &types.Route{
		Name: "coast",
		Points: []types.Point{
			{Index: 0, ID: "pt-0", Name: "Santa Cruz"},
			{Index: 1, ID: "pt-1", Name: "Monterey"},
			{Index: 2, ID: "pt-2", Name: "Big Sur"},
		},
	}
}

func TestMemoryStore_TripLifecycle(t *testing.T) {
	store := NewMemoryStore(nil)
	defer store.Close()
	ctx := context.Background()

	tripID, err := store.CreateTrip(ctx, "coast trip", testRoute())
	if err != nil {
		t.Fatalf("CreateTrip failed: %v", err)
	}
	if tripID == "" {
		t.Fatal("expected trip ID to be generated")
	}

	meta, err := store.GetTripMeta(ctx, tripID)
	if err != nil {
		t.Fatalf("GetTripMeta failed: %v", err)
	}
	if meta.Status != types.TripStatusQueued {
		t.Errorf("status = %s, want queued", meta.Status)
	}
	if meta.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	now := time.Now().UTC()
	if err := store.UpdateTripStatus(ctx, tripID, types.TripStatusRunning, &now, nil); err != nil {
		t.Fatalf("UpdateTripStatus failed: %v", err)
	}

	trip, err := store.GetTrip(ctx, tripID)
	if err != nil {
		t.Fatalf("GetTrip failed: %v", err)
	}
	if trip.Status != types.TripStatusRunning {
		t.Errorf("status = %s, want running", trip.Status)
	}
	if trip.Route == nil || len(trip.Route.Points) != 3 {
		t.Error("route not preserved")
	}
	if trip.StartedAt == nil {
		t.Error("StartedAt should be set")
	}

	ids, err := store.ListTrips(ctx)
	if err != nil {
		t.Fatalf("ListTrips failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != tripID {
		t.Errorf("ListTrips = %v, want [%s]", ids, tripID)
	}

	if _, err := store.GetTripMeta(ctx, "missing"); err != ErrTripNotFound {
		t.Errorf("expected ErrTripNotFound, got %v", err)
	}
}

func TestMemoryStore_PointStates(t *testing.T) {
	store := NewMemoryStore(nil)
	defer store.Close()
	ctx := context.Background()

	tripID, err := store.CreateTrip(ctx, "trip", testRoute())
	if err != nil {
		t.Fatalf("CreateTrip failed: %v", err)
	}

	// Points start waiting
	state, err := store.GetPointState(ctx, tripID, "pt-1")
	if err != nil {
		t.Fatalf("GetPointState failed: %v", err)
	}
	if state.Status != types.PointStatusWaiting {
		t.Errorf("status = %s, want waiting", state.Status)
	}

	resolved := time.Now().UTC()
	if err := store.UpdatePointState(ctx, tripID, &types.PointState{
		PointID:    "pt-1",
		Index:      1,
		Status:     types.PointStatusSoftDegraded,
		ResolvedAt: &resolved,
	}); err != nil {
		t.Fatalf("UpdatePointState failed: %v", err)
	}

	state, err = store.GetPointState(ctx, tripID, "pt-1")
	if err != nil {
		t.Fatalf("GetPointState failed: %v", err)
	}
	if state.Status != types.PointStatusSoftDegraded {
		t.Errorf("status = %s, want soft_degraded", state.Status)
	}

	if _, err := store.GetPointState(ctx, tripID, "nope"); err == nil {
		t.Error("expected error for unknown point")
	}
}

func TestMemoryStore_DecisionsOrderedByIndex(t *testing.T) {
	store := NewMemoryStore(nil)
	defer store.Close()
	ctx := context.Background()

	tripID, err := store.CreateTrip(ctx, "trip", testRoute())
	if err != nil {
		t.Fatalf("CreateTrip failed: %v", err)
	}

	// Record out of order; reads must restore route order.
	for _, idx := range []int{2, 0, 1} {
		if err := store.SetDecision(ctx, tripID, &types.PointDecision{
			PointIndex: idx,
			PointID:    "pt-" + string(rune('0'+idx)),
			Status:     types.PointStatusComplete,
		}); err != nil {
			t.Fatalf("SetDecision failed: %v", err)
		}
	}

	decisions, err := store.GetDecisions(ctx, tripID)
	if err != nil {
		t.Fatalf("GetDecisions failed: %v", err)
	}
	if len(decisions) != 3 {
		t.Fatalf("decisions = %d, want 3", len(decisions))
	}
	for i, d := range decisions {
		if d.PointIndex != i {
			t.Errorf("decisions[%d].PointIndex = %d, want %d", i, d.PointIndex, i)
		}
	}
}

func TestMemoryStore_EventsAndSubscribe(t *testing.T) {
	store := NewMemoryStore(nil)
	defer store.Close()
	ctx := context.Background()

	tripID, err := store.CreateTrip(ctx, "trip", testRoute())
	if err != nil {
		t.Fatalf("CreateTrip failed: %v", err)
	}

	ch, cleanup, err := store.Subscribe(ctx, tripID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cleanup()

	evt, err := store.AppendEvent(ctx, tripID, &types.EventInput{
		Type:    types.EventTypePointStatus,
		PointID: "pt-0",
		Data:    types.PointStatusEvent{Index: 0, Status: types.PointStatusComplete},
	})
	if err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	if evt.ID != "1" {
		t.Errorf("event ID = %s, want 1", evt.ID)
	}

	select {
	case got := <-ch:
		if got.Type != types.EventTypePointStatus || got.PointID != "pt-0" {
			t.Errorf("unexpected event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	// Second event, then resume from the first
	if _, err := store.AppendEvent(ctx, tripID, &types.EventInput{Type: types.EventTypeTripStatus}); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	events, err := store.GetEventsSince(ctx, tripID, "1")
	if err != nil {
		t.Fatalf("GetEventsSince failed: %v", err)
	}
	if len(events) != 1 || events[0].ID != "2" {
		t.Errorf("GetEventsSince = %v, want single event 2", events)
	}

	all, err := store.GetEventsSince(ctx, tripID, "")
	if err != nil {
		t.Fatalf("GetEventsSince failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all events = %d, want 2", len(all))
	}
}

func TestMemoryStore_TerminalStatusEndsSubscriptions(t *testing.T) {
	store := NewMemoryStore(nil)
	defer store.Close()
	ctx := context.Background()

	tripID, err := store.CreateTrip(ctx, "trip", testRoute())
	if err != nil {
		t.Fatalf("CreateTrip failed: %v", err)
	}

	ch, cleanup, err := store.Subscribe(ctx, tripID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cleanup()

	now := time.Now().UTC()
	if err := store.UpdateTripStatus(ctx, tripID, types.TripStatusSucceeded, nil, &now); err != nil {
		t.Fatalf("UpdateTripStatus failed: %v", err)
	}
	if _, err := store.AppendEvent(ctx, tripID, &types.EventInput{
		Type: types.EventTypeTripStatus,
		Data: types.TripStatusEvent{Status: types.TripStatusSucceeded},
	}); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	// The terminal event is delivered, then the channel is closed.
	select {
	case got := <-ch:
		if got.Type != types.EventTypeTripStatus {
			t.Errorf("event type = %s, want trip_status", got.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive terminal event")
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to be closed after terminal status")
		}
	case <-time.After(time.Second):
		t.Fatal("channel was not closed after terminal status")
	}
}

func TestMemoryStore_EventRingBuffer(t *testing.T) {
	store := NewMemoryStore(&Config{EventMaxLen: 3})
	defer store.Close()
	ctx := context.Background()

	tripID, _ := store.CreateTrip(ctx, "trip", testRoute())
	for i := 0; i < 5; i++ {
		if _, err := store.AppendEvent(ctx, tripID, &types.EventInput{Type: types.EventTypeLog}); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	events, err := store.GetEventsSince(ctx, tripID, "")
	if err != nil {
		t.Fatalf("GetEventsSince failed: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("events = %d, want 3 after ring buffer trim", len(events))
	}
	if events[0].ID != "3" {
		t.Errorf("oldest retained event = %s, want 3", events[0].ID)
	}
}

func TestMemoryStore_Cancel(t *testing.T) {
	store := NewMemoryStore(nil)
	defer store.Close()
	ctx := context.Background()

	tripID, _ := store.CreateTrip(ctx, "trip", testRoute())

	cancelled, err := store.IsCancelled(ctx, tripID)
	if err != nil || cancelled {
		t.Fatalf("IsCancelled = %v, %v; want false, nil", cancelled, err)
	}

	if err := store.CancelTrip(ctx, tripID); err != nil {
		t.Fatalf("CancelTrip failed: %v", err)
	}

	cancelled, err = store.IsCancelled(ctx, tripID)
	if err != nil || !cancelled {
		t.Fatalf("IsCancelled = %v, %v; want true, nil", cancelled, err)
	}

	meta, _ := store.GetTripMeta(ctx, tripID)
	if meta.Status != types.TripStatusCancelled {
		t.Errorf("status = %s, want cancelled", meta.Status)
	}
	if meta.FinishedAt == nil {
		t.Error("FinishedAt should be set on cancel")
	}
}
