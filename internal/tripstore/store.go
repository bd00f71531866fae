// Package tripstore provides trip state persistence and event streaming.
package tripstore

import (
	"context"
	"errors"
	"time"

	"github.com/tripcue/tripcue/pkg/types"
)

// Common errors returned by TripStore implementations.
var (
	ErrTripNotFound  = errors.New("trip not found")
	ErrPointNotFound = errors.New("point not found")
)

// TripStore defines the interface for trip state persistence and event
// streaming. Implementations must be safe for concurrent use.
type TripStore interface {
	// Trip lifecycle
	CreateTrip(ctx context.Context, name string, route *types.Route) (string, error)
	GetTripMeta(ctx context.Context, tripID string) (*types.TripMeta, error)
	GetTrip(ctx context.Context, tripID string) (*types.Trip, error)
	ListTrips(ctx context.Context) ([]string, error)
	UpdateTripStatus(ctx context.Context, tripID string, status types.TripStatus, startedAt, finishedAt *time.Time) error
	CancelTrip(ctx context.Context, tripID string) error

	// IsCancelled checks if a trip has been cancelled.
	IsCancelled(ctx context.Context, tripID string) (bool, error)

	// Point state tracking
	UpdatePointState(ctx context.Context, tripID string, state *types.PointState) error
	GetPointState(ctx context.Context, tripID, pointID string) (*types.PointState, error)

	// Decisions, one per point, keyed by point index.
	SetDecision(ctx context.Context, tripID string, decision *types.PointDecision) error
	// GetDecisions returns recorded decisions in route order.
	GetDecisions(ctx context.Context, tripID string) ([]*types.PointDecision, error)

	// Event streaming
	// AppendEvent adds an event to the trip's event stream and returns the created event.
	AppendEvent(ctx context.Context, tripID string, input *types.EventInput) (*types.Event, error)

	// GetEventsSince returns events after the given event ID (exclusive).
	// If lastEventID is empty, returns all events from the beginning.
	GetEventsSince(ctx context.Context, tripID string, lastEventID string) ([]*types.Event, error)

	// Subscribe returns a channel that receives new events for the trip.
	// The cleanup function must be called when done to release resources.
	Subscribe(ctx context.Context, tripID string) (<-chan *types.Event, func(), error)

	// Diagnostics
	AdapterInfo(ctx context.Context) (map[string]interface{}, error)

	// Cleanup
	Close() error
}

// Config holds configuration for TripStore implementations.
type Config struct {
	// Maximum number of events to keep per trip (ring buffer)
	EventMaxLen int64

	// TTL for trips (0 = no expiry)
	TTL time.Duration
}

// DefaultConfig returns sensible defaults for TripStore configuration.
func DefaultConfig() *Config {
	return &Config{
		EventMaxLen: 5000,
		TTL:         7 * 24 * time.Hour,
	}
}
