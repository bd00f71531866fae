package tripstore

import (
	"context"
	"time"

	"github.com/tripcue/tripcue/internal/metrics"
	"github.com/tripcue/tripcue/pkg/types"
)

// Instrumented wraps a TripStore and counts every operation in the
// tripstore_operations_total metric, labelled by operation and result.
type Instrumented struct {
	inner TripStore
}

// Instrument wraps store with operation counting.
func Instrument(store TripStore) *Instrumented {
	return &Instrumented{inner: store}
}

func record(op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.TripStoreOperations.WithLabelValues(op, result).Inc()
}

func (s *Instrumented) CreateTrip(ctx context.Context, name string, route *types.Route) (string, error) {
	id, err := s.inner.CreateTrip(ctx, name, route)
	record("create_trip", err)
	return id, err
}

func (s *Instrumented) GetTripMeta(ctx context.Context, tripID string) (*types.TripMeta, error) {
	meta, err := s.inner.GetTripMeta(ctx, tripID)
	record("get_trip_meta", err)
	return meta, err
}

func (s *Instrumented) GetTrip(ctx context.Context, tripID string) (*types.Trip, error) {
	trip, err := s.inner.GetTrip(ctx, tripID)
	record("get_trip", err)
	return trip, err
}

func (s *Instrumented) ListTrips(ctx context.Context) ([]string, error) {
	ids, err := s.inner.ListTrips(ctx)
	record("list_trips", err)
	return ids, err
}

func (s *Instrumented) UpdateTripStatus(ctx context.Context, tripID string, status types.TripStatus, startedAt, finishedAt *time.Time) error {
	err := s.inner.UpdateTripStatus(ctx, tripID, status, startedAt, finishedAt)
	record("update_trip_status", err)
	return err
}

func (s *Instrumented) CancelTrip(ctx context.Context, tripID string) error {
	err := s.inner.CancelTrip(ctx, tripID)
	record("cancel_trip", err)
	return err
}

func (s *Instrumented) IsCancelled(ctx context.Context, tripID string) (bool, error) {
	cancelled, err := s.inner.IsCancelled(ctx, tripID)
	record("is_cancelled", err)
	return cancelled, err
}

func (s *Instrumented) UpdatePointState(ctx context.Context, tripID string, state *types.PointState) error {
	err := s.inner.UpdatePointState(ctx, tripID, state)
	record("update_point_state", err)
	return err
}

func (s *Instrumented) GetPointState(ctx context.Context, tripID, pointID string) (*types.PointState, error) {
	state, err := s.inner.GetPointState(ctx, tripID, pointID)
	record("get_point_state", err)
	return state, err
}

func (s *Instrumented) SetDecision(ctx context.Context, tripID string, decision *types.PointDecision) error {
	err := s.inner.SetDecision(ctx, tripID, decision)
	record("set_decision", err)
	return err
}

func (s *Instrumented) GetDecisions(ctx context.Context, tripID string) ([]*types.PointDecision, error) {
	decisions, err := s.inner.GetDecisions(ctx, tripID)
	record("get_decisions", err)
	return decisions, err
}

func (s *Instrumented) AppendEvent(ctx context.Context, tripID string, input *types.EventInput) (*types.Event, error) {
	event, err := s.inner.AppendEvent(ctx, tripID, input)
	record("append_event", err)
	return event, err
}

func (s *Instrumented) GetEventsSince(ctx context.Context, tripID string, lastEventID string) ([]*types.Event, error) {
	events, err := s.inner.GetEventsSince(ctx, tripID, lastEventID)
	record("get_events_since", err)
	return events, err
}

func (s *Instrumented) Subscribe(ctx context.Context, tripID string) (<-chan *types.Event, func(), error) {
	ch, cleanup, err := s.inner.Subscribe(ctx, tripID)
	record("subscribe", err)
	return ch, cleanup, err
}

func (s *Instrumented) AdapterInfo(ctx context.Context) (map[string]interface{}, error) {
	return s.inner.AdapterInfo(ctx)
}

func (s *Instrumented) Close() error {
	return s.inner.Close()
}

var _ TripStore = (*Instrumented)(nil)
