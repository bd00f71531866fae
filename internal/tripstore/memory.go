package tripstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tripcue/tripcue/pkg/types"
)

// memoryTrip holds all state for a single trip in memory.
type memoryTrip struct {
	mu          sync.RWMutex
	id          string
	name        string
	route       *types.Route
	status      types.TripStatus
	startedAt   *time.Time
	finishedAt  *time.Time
	err         string
	points      map[string]*types.PointState
	decisions   map[int]*types.PointDecision
	events      []*types.Event
	nextSeq     int64
	maxEvents   int64
	cancelled   bool
	subscribers map[chan *types.Event]struct{}
	createdAt   time.Time
	updatedAt   time.Time
}

// MemoryStore is an in-memory implementation of TripStore.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	trips  map[string]*memoryTrip
	config *Config
}

// NewMemoryStore creates a new in-memory TripStore.
func NewMemoryStore(cfg *Config) *MemoryStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &MemoryStore{
		trips:  make(map[string]*memoryTrip),
		config: cfg,
	}
}

func (s *MemoryStore) CreateTrip(ctx context.Context, name string, route *types.Route) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tripID := uuid.NewString()
	now := time.Now().UTC()

	// Initialize point states from the route
	points := make(map[string]*types.PointState)
	if route != nil {
		for _, pt := range route.Points {
			points[pt.ID] = &types.PointState{
				PointID: pt.ID,
				Index:   pt.Index,
				Status:  types.PointStatusWaiting,
			}
		}
	}

	s.trips[tripID] = &memoryTrip{
		id:          tripID,
		name:        name,
		route:       route,
		status:      types.TripStatusQueued,
		points:      points,
		decisions:   make(map[int]*types.PointDecision),
		events:      make([]*types.Event, 0),
		nextSeq:     1,
		maxEvents:   s.config.EventMaxLen,
		subscribers: make(map[chan *types.Event]struct{}),
		createdAt:   now,
		updatedAt:   now,
	}

	return tripID, nil
}

func (s *MemoryStore) get(tripID string) (*memoryTrip, bool) {
	s.mu.RLock()
	trip, ok := s.trips[tripID]
	s.mu.RUnlock()
	return trip, ok
}

func (s *MemoryStore) GetTripMeta(ctx context.Context, tripID string) (*types.TripMeta, error) {
	trip, ok := s.get(tripID)
	if !ok {
		return nil, ErrTripNotFound
	}

	trip.mu.RLock()
	defer trip.mu.RUnlock()

	return &types.TripMeta{
		ID:         trip.id,
		Name:       trip.name,
		Status:     trip.status,
		StartedAt:  trip.startedAt,
		FinishedAt: trip.finishedAt,
		Error:      trip.err,
		CreatedAt:  trip.createdAt,
		UpdatedAt:  trip.updatedAt,
	}, nil
}

func (s *MemoryStore) GetTrip(ctx context.Context, tripID string) (*types.Trip, error) {
	trip, ok := s.get(tripID)
	if !ok {
		return nil, ErrTripNotFound
	}

	trip.mu.RLock()
	defer trip.mu.RUnlock()

	return &types.Trip{
		ID:         trip.id,
		Name:       trip.name,
		Status:     trip.status,
		Route:      trip.route,
		StartedAt:  trip.startedAt,
		FinishedAt: trip.finishedAt,
		Error:      trip.err,
		CreatedAt:  trip.createdAt,
		UpdatedAt:  trip.updatedAt,
	}, nil
}

func (s *MemoryStore) ListTrips(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.trips))
	for id := range s.trips {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryStore) UpdateTripStatus(ctx context.Context, tripID string, status types.TripStatus, startedAt, finishedAt *time.Time) error {
	trip, ok := s.get(tripID)
	if !ok {
		return ErrTripNotFound
	}

	trip.mu.Lock()
	defer trip.mu.Unlock()

	trip.status = status
	trip.updatedAt = time.Now().UTC()
	if startedAt != nil {
		trip.startedAt = startedAt
	}
	if finishedAt != nil {
		trip.finishedAt = finishedAt
	}

	return nil
}

func (s *MemoryStore) CancelTrip(ctx context.Context, tripID string) error {
	trip, ok := s.get(tripID)
	if !ok {
		return ErrTripNotFound
	}

	trip.mu.Lock()
	trip.cancelled = true
	trip.status = types.TripStatusCancelled
	now := time.Now().UTC()
	trip.updatedAt = now
	trip.finishedAt = &now

	// Close subscriber channels so SSE streams end promptly.
	for ch := range trip.subscribers {
		close(ch)
	}
	trip.subscribers = make(map[chan *types.Event]struct{})
	trip.mu.Unlock()

	return nil
}

func (s *MemoryStore) IsCancelled(ctx context.Context, tripID string) (bool, error) {
	trip, ok := s.get(tripID)
	if !ok {
		return false, ErrTripNotFound
	}

	trip.mu.RLock()
	defer trip.mu.RUnlock()
	return trip.cancelled, nil
}

func (s *MemoryStore) UpdatePointState(ctx context.Context, tripID string, state *types.PointState) error {
	trip, ok := s.get(tripID)
	if !ok {
		return ErrTripNotFound
	}

	trip.mu.Lock()
	defer trip.mu.Unlock()

	trip.points[state.PointID] = state
	trip.updatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetPointState(ctx context.Context, tripID, pointID string) (*types.PointState, error) {
	trip, ok := s.get(tripID)
	if !ok {
		return nil, ErrTripNotFound
	}

	trip.mu.RLock()
	defer trip.mu.RUnlock()

	state, ok := trip.points[pointID]
	if !ok {
		return nil, fmt.Errorf("%w: %s in trip %s", ErrPointNotFound, pointID, tripID)
	}
	return state, nil
}

func (s *MemoryStore) SetDecision(ctx context.Context, tripID string, decision *types.PointDecision) error {
	trip, ok := s.get(tripID)
	if !ok {
		return ErrTripNotFound
	}

	trip.mu.Lock()
	defer trip.mu.Unlock()

	trip.decisions[decision.PointIndex] = decision
	trip.updatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetDecisions(ctx context.Context, tripID string) ([]*types.PointDecision, error) {
	trip, ok := s.get(tripID)
	if !ok {
		return nil, ErrTripNotFound
	}

	trip.mu.RLock()
	defer trip.mu.RUnlock()

	indices := make([]int, 0, len(trip.decisions))
	for idx := range trip.decisions {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	decisions := make([]*types.PointDecision, 0, len(indices))
	for _, idx := range indices {
		decisions = append(decisions, trip.decisions[idx])
	}
	return decisions, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, tripID string, input *types.EventInput) (*types.Event, error) {
	trip, ok := s.get(tripID)
	if !ok {
		return nil, ErrTripNotFound
	}

	trip.mu.Lock()

	eventID := fmt.Sprintf("%d", trip.nextSeq)
	trip.nextSeq++

	dataJSON, err := json.Marshal(input.Data)
	if err != nil {
		trip.mu.Unlock()
		return nil, fmt.Errorf("marshal event data: %w", err)
	}

	event := &types.Event{
		ID:        eventID,
		TripID:    tripID,
		Type:      input.Type,
		PointID:   input.PointID,
		Timestamp: time.Now().UTC(),
		Data:      dataJSON,
	}

	// Ring buffer: drop the oldest event once full.
	if int64(len(trip.events)) >= trip.maxEvents {
		trip.events = trip.events[1:]
	}
	trip.events = append(trip.events, event)
	trip.updatedAt = time.Now().UTC()

	// Notify subscribers without blocking. Holding the lock here keeps
	// sends ordered against channel closure below and in CancelTrip.
	for ch := range trip.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber too slow, skip
		}
	}

	// Once the terminal trip status has been delivered there is nothing
	// left to stream, so end all subscriptions.
	if input.Type == types.EventTypeTripStatus && trip.status.Terminal() {
		for ch := range trip.subscribers {
			close(ch)
		}
		trip.subscribers = make(map[chan *types.Event]struct{})
	}
	trip.mu.Unlock()

	return event, nil
}

func (s *MemoryStore) GetEventsSince(ctx context.Context, tripID string, lastEventID string) ([]*types.Event, error) {
	trip, ok := s.get(tripID)
	if !ok {
		return nil, ErrTripNotFound
	}

	trip.mu.RLock()
	defer trip.mu.RUnlock()

	if lastEventID == "" {
		result := make([]*types.Event, len(trip.events))
		copy(result, trip.events)
		return result, nil
	}

	var result []*types.Event
	found := false
	for _, evt := range trip.events {
		if found {
			result = append(result, evt)
		}
		if evt.ID == lastEventID {
			found = true
		}
	}
	return result, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, tripID string) (<-chan *types.Event, func(), error) {
	trip, ok := s.get(tripID)
	if !ok {
		return nil, nil, ErrTripNotFound
	}

	ch := make(chan *types.Event, 100)

	trip.mu.Lock()
	trip.subscribers[ch] = struct{}{}
	trip.mu.Unlock()

	cleanup := func() {
		trip.mu.Lock()
		delete(trip.subscribers, ch)
		trip.mu.Unlock()
		// The sender owns channel closure.
	}

	return ch, cleanup, nil
}

func (s *MemoryStore) AdapterInfo(ctx context.Context) (map[string]interface{}, error) {
	s.mu.RLock()
	tripCount := len(s.trips)
	s.mu.RUnlock()

	return map[string]interface{}{
		"adapter":    "memory",
		"trip_count": tripCount,
		"max_events": s.config.EventMaxLen,
	}, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, trip := range s.trips {
		trip.mu.Lock()
		for ch := range trip.subscribers {
			close(ch)
		}
		trip.subscribers = nil
		trip.mu.Unlock()
	}
	return nil
}

// Verify interface compliance
var _ TripStore = (*MemoryStore)(nil)
