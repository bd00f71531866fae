package tripstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tripcue/tripcue/pkg/types"
)

// RedisStore implements TripStore backed by Redis.
// Uses Redis Streams for event streaming, hashes for trip metadata,
// point states and decisions.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.Mutex
	closed bool

	// done stops subscriber stream readers when the store closes.
	done chan struct{}
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (redis://host:port/db)
	URL string

	// Password for Redis authentication
	Password string

	// DB is the database number
	DB int

	// Prefix for all keys (default: "trips")
	Prefix string

	// TTL for trip data (default: 7 days)
	TTL time.Duration

	// Connection pool settings
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		URL:          "redis://localhost:6379/0",
		Prefix:       "trips",
		TTL:          7 * 24 * time.Hour,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewRedisStore creates a new Redis-backed TripStore.
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}

	opts := &redis.Options{
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Password:     cfg.Password,
		DB:           cfg.DB,
	}

	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts.Addr = parsed.Addr
		if parsed.Password != "" && cfg.Password == "" {
			opts.Password = parsed.Password
		}
		if parsed.DB != 0 && cfg.DB == 0 {
			opts.DB = parsed.DB
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "trips"
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
		done:   make(chan struct{}),
	}, nil
}

// Key helpers
func (s *RedisStore) keyMeta(tripID string) string      { return fmt.Sprintf("%s:%s:meta", s.prefix, tripID) }
func (s *RedisStore) keyPoints(tripID string) string    { return fmt.Sprintf("%s:%s:points", s.prefix, tripID) }
func (s *RedisStore) keyDecisions(tripID string) string { return fmt.Sprintf("%s:%s:decisions", s.prefix, tripID) }
func (s *RedisStore) keyEvents(tripID string) string    { return fmt.Sprintf("%s:%s:events", s.prefix, tripID) }
func (s *RedisStore) keySeq(tripID string) string       { return fmt.Sprintf("%s:%s:seq", s.prefix, tripID) }
func (s *RedisStore) keyRoute(tripID string) string     { return fmt.Sprintf("%s:%s:route", s.prefix, tripID) }

// setTTL refreshes TTL on all keys for a trip.
func (s *RedisStore) setTTL(ctx context.Context, tripID string) error {
	if s.ttl <= 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	pipe.Expire(ctx, s.keyMeta(tripID), s.ttl)
	pipe.Expire(ctx, s.keyPoints(tripID), s.ttl)
	pipe.Expire(ctx, s.keyDecisions(tripID), s.ttl)
	pipe.Expire(ctx, s.keyEvents(tripID), s.ttl)
	pipe.Expire(ctx, s.keySeq(tripID), s.ttl)
	pipe.Expire(ctx, s.keyRoute(tripID), s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// CreateTrip creates a new trip record.
func (s *RedisStore) CreateTrip(ctx context.Context, name string, route *types.Route) (string, error) {
	tripID := uuid.NewString()
	now := time.Now().UTC()

	pipe := s.client.Pipeline()

	pipe.HSet(ctx, s.keyMeta(tripID), map[string]interface{}{
		"tripId":     tripID,
		"name":       name,
		"status":     string(types.TripStatusQueued),
		"startedAt":  "",
		"finishedAt": "",
		"createdAt":  now.Format(time.RFC3339),
		"updatedAt":  now.Format(time.RFC3339),
		"cancelled":  "false",
	})

	// Initial point states, one hash field per point
	if route != nil {
		fields := make(map[string]interface{}, len(route.Points))
		for _, pt := range route.Points {
			stateJSON, _ := json.Marshal(&types.PointState{
				PointID: pt.ID,
				Index:   pt.Index,
				Status:  types.PointStatusWaiting,
			})
			fields[pt.ID] = string(stateJSON)
		}
		if len(fields) > 0 {
			pipe.HSet(ctx, s.keyPoints(tripID), fields)
		}

		routeJSON, _ := json.Marshal(route)
		pipe.Set(ctx, s.keyRoute(tripID), string(routeJSON), 0)
	}

	pipe.Set(ctx, s.keySeq(tripID), "0", 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("create trip: %w", err)
	}

	if err := s.setTTL(ctx, tripID); err != nil {
		slog.Warn("failed to set TTL for trip", slog.String("trip_id", tripID), slog.Any("error", err))
	}

	return tripID, nil
}

func (s *RedisStore) tripMetaFromHash(tripID string, meta map[string]string) *types.TripMeta {
	result := &types.TripMeta{
		ID:     tripID,
		Name:   meta["name"],
		Status: types.TripStatus(meta["status"]),
		Error:  meta["error"],
	}
	if t, err := time.Parse(time.RFC3339, meta["startedAt"]); err == nil {
		result.StartedAt = &t
	}
	if t, err := time.Parse(time.RFC3339, meta["finishedAt"]); err == nil {
		result.FinishedAt = &t
	}
	if t, err := time.Parse(time.RFC3339, meta["createdAt"]); err == nil {
		result.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, meta["updatedAt"]); err == nil {
		result.UpdatedAt = t
	}
	return result
}

// GetTripMeta returns lightweight trip metadata.
func (s *RedisStore) GetTripMeta(ctx context.Context, tripID string) (*types.TripMeta, error) {
	meta, err := s.client.HGetAll(ctx, s.keyMeta(tripID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get trip meta: %w", err)
	}
	if len(meta) == 0 {
		return nil, ErrTripNotFound
	}
	return s.tripMetaFromHash(tripID, meta), nil
}

// GetTrip returns the full trip including its route.
func (s *RedisStore) GetTrip(ctx context.Context, tripID string) (*types.Trip, error) {
	pipe := s.client.Pipeline()
	metaCmd := pipe.HGetAll(ctx, s.keyMeta(tripID))
	routeCmd := pipe.Get(ctx, s.keyRoute(tripID))
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get trip: %w", err)
	}

	meta, err := metaCmd.Result()
	if err != nil || len(meta) == 0 {
		return nil, ErrTripNotFound
	}

	m := s.tripMetaFromHash(tripID, meta)
	trip := &types.Trip{
		ID:         m.ID,
		Name:       m.Name,
		Status:     m.Status,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
		Error:      m.Error,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}

	if routeJSON, err := routeCmd.Result(); err == nil && routeJSON != "" {
		var route types.Route
		if json.Unmarshal([]byte(routeJSON), &route) == nil {
			trip.Route = &route
		}
	}

	return trip, nil
}

// ListTrips returns all trip IDs.
func (s *RedisStore) ListTrips(ctx context.Context) ([]string, error) {
	pattern := fmt.Sprintf("%s:*:meta", s.prefix)
	var tripIDs []string
	var cursor uint64

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan trips: %w", err)
		}

		for _, key := range keys {
			// Key pattern: prefix:tripID:meta
			parts := strings.Split(key, ":")
			if len(parts) >= 3 {
				tripIDs = append(tripIDs, parts[1])
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return tripIDs, nil
}

// UpdateTripStatus updates the trip's status and optional timestamps.
func (s *RedisStore) UpdateTripStatus(ctx context.Context, tripID string, status types.TripStatus, startedAt, finishedAt *time.Time) error {
	fields := map[string]interface{}{
		"status":    string(status),
		"updatedAt": time.Now().UTC().Format(time.RFC3339),
	}
	if startedAt != nil {
		fields["startedAt"] = startedAt.UTC().Format(time.RFC3339)
	}
	if finishedAt != nil {
		fields["finishedAt"] = finishedAt.UTC().Format(time.RFC3339)
	}

	if err := s.client.HSet(ctx, s.keyMeta(tripID), fields).Err(); err != nil {
		return fmt.Errorf("update trip status: %w", err)
	}

	s.setTTL(ctx, tripID)
	return nil
}

// CancelTrip marks the trip as cancelled.
func (s *RedisStore) CancelTrip(ctx context.Context, tripID string) error {
	exists, err := s.client.Exists(ctx, s.keyMeta(tripID)).Result()
	if err != nil {
		return fmt.Errorf("check trip exists: %w", err)
	}
	if exists == 0 {
		return ErrTripNotFound
	}

	now := time.Now().UTC()
	fields := map[string]interface{}{
		"status":     string(types.TripStatusCancelled),
		"cancelled":  "true",
		"finishedAt": now.Format(time.RFC3339),
		"updatedAt":  now.Format(time.RFC3339),
	}

	if err := s.client.HSet(ctx, s.keyMeta(tripID), fields).Err(); err != nil {
		return fmt.Errorf("cancel trip: %w", err)
	}

	return nil
}

// IsCancelled checks if the trip has been cancelled.
func (s *RedisStore) IsCancelled(ctx context.Context, tripID string) (bool, error) {
	val, err := s.client.HGet(ctx, s.keyMeta(tripID), "cancelled").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("get cancelled: %w", err)
	}
	return val == "true", nil
}

// UpdatePointState updates a point's state.
func (s *RedisStore) UpdatePointState(ctx context.Context, tripID string, state *types.PointState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal point state: %w", err)
	}

	if err := s.client.HSet(ctx, s.keyPoints(tripID), state.PointID, string(stateJSON)).Err(); err != nil {
		return fmt.Errorf("update point state: %w", err)
	}

	s.setTTL(ctx, tripID)
	return nil
}

// GetPointState retrieves a point's state.
func (s *RedisStore) GetPointState(ctx context.Context, tripID, pointID string) (*types.PointState, error) {
	stateJSON, err := s.client.HGet(ctx, s.keyPoints(tripID), pointID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s in trip %s", ErrPointNotFound, pointID, tripID)
		}
		return nil, fmt.Errorf("get point state: %w", err)
	}

	var state types.PointState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("unmarshal point state: %w", err)
	}
	return &state, nil
}

// SetDecision records a point's decision keyed by index.
func (s *RedisStore) SetDecision(ctx context.Context, tripID string, decision *types.PointDecision) error {
	decisionJSON, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	field := strconv.Itoa(decision.PointIndex)
	if err := s.client.HSet(ctx, s.keyDecisions(tripID), field, string(decisionJSON)).Err(); err != nil {
		return fmt.Errorf("set decision: %w", err)
	}

	s.setTTL(ctx, tripID)
	return nil
}

// GetDecisions returns recorded decisions in route order.
func (s *RedisStore) GetDecisions(ctx context.Context, tripID string) ([]*types.PointDecision, error) {
	fields, err := s.client.HGetAll(ctx, s.keyDecisions(tripID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get decisions: %w", err)
	}

	indices := make([]int, 0, len(fields))
	byIndex := make(map[int]*types.PointDecision, len(fields))
	for field, decisionJSON := range fields {
		idx, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		var d types.PointDecision
		if err := json.Unmarshal([]byte(decisionJSON), &d); err != nil {
			continue
		}
		indices = append(indices, idx)
		byIndex[idx] = &d
	}
	sort.Ints(indices)

	decisions := make([]*types.PointDecision, 0, len(indices))
	for _, idx := range indices {
		decisions = append(decisions, byIndex[idx])
	}
	return decisions, nil
}

// AppendEvent adds an event to the trip's stream.
func (s *RedisStore) AppendEvent(ctx context.Context, tripID string, input *types.EventInput) (*types.Event, error) {
	// Increment sequence atomically
	seq, err := s.client.Incr(ctx, s.keySeq(tripID)).Result()
	if err != nil {
		return nil, fmt.Errorf("incr seq: %w", err)
	}

	now := time.Now().UTC()
	eventID := strconv.FormatInt(seq, 10)

	dataBytes, _ := json.Marshal(input.Data)

	event := &types.Event{
		ID:        eventID,
		TripID:    tripID,
		Type:      input.Type,
		PointID:   input.PointID,
		Timestamp: now,
		Data:      dataBytes,
	}

	streamFields := map[string]interface{}{
		"seq":     eventID,
		"ts":      now.Format(time.RFC3339),
		"type":    string(input.Type),
		"data":    string(dataBytes),
		"pointId": input.PointID,
	}

	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.keyEvents(tripID),
		MaxLen: 5000,
		Approx: true,
		Values: streamFields,
	}).Err(); err != nil {
		return nil, fmt.Errorf("xadd: %w", err)
	}

	s.setTTL(ctx, tripID)

	return event, nil
}

func eventFromStreamValues(tripID string, values map[string]interface{}) *types.Event {
	seqStr, _ := values["seq"].(string)
	ts, _ := values["ts"].(string)
	timestamp, _ := time.Parse(time.RFC3339, ts)
	eventType, _ := values["type"].(string)
	data, _ := values["data"].(string)
	pointID, _ := values["pointId"].(string)

	return &types.Event{
		ID:        seqStr,
		TripID:    tripID,
		Type:      types.EventType(eventType),
		PointID:   pointID,
		Timestamp: timestamp,
		Data:      json.RawMessage(data),
	}
}

// GetEventsSince returns events after the given event ID.
func (s *RedisStore) GetEventsSince(ctx context.Context, tripID string, lastEventID string) ([]*types.Event, error) {
	entries, err := s.client.XRange(ctx, s.keyEvents(tripID), "-", "+").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*types.Event{}, nil
		}
		return nil, fmt.Errorf("xrange: %w", err)
	}

	var lastSeq int64
	if lastEventID != "" {
		lastSeq, _ = strconv.ParseInt(lastEventID, 10, 64)
	}

	var events []*types.Event
	for _, entry := range entries {
		evt := eventFromStreamValues(tripID, entry.Values)
		seq, _ := strconv.ParseInt(evt.ID, 10, 64)
		if lastSeq > 0 && seq <= lastSeq {
			continue
		}
		events = append(events, evt)
	}

	return events, nil
}

// Subscribe returns a channel that receives new events.
func (s *RedisStore) Subscribe(ctx context.Context, tripID string) (<-chan *types.Event, func(), error) {
	exists, err := s.client.Exists(ctx, s.keyMeta(tripID)).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("check trip exists: %w", err)
	}
	if exists == 0 {
		return nil, nil, ErrTripNotFound
	}

	ch := make(chan *types.Event, 100)

	// Each subscriber gets its own stream reader. The reader owns the
	// channel and closes it when it exits, so cleanup only cancels.
	readerCtx, cancel := context.WithCancel(ctx)
	go s.streamReader(readerCtx, tripID, ch)

	return ch, cancel, nil
}

// streamReader tails the trip's Redis Stream and pushes entries to ch.
// It closes ch when the trip reaches a terminal status, the context is
// cancelled, or the store shuts down.
func (s *RedisStore) streamReader(ctx context.Context, tripID string, ch chan *types.Event) {
	defer close(ch)

	lastID := "$" // Start from latest

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}

		streams, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.keyEvents(tripID), lastID},
			Count:   10,
			Block:   time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				lastID = entry.ID
				event := eventFromStreamValues(tripID, entry.Values)

				select {
				case ch <- event:
				case <-ctx.Done():
					return
				default:
					// Channel full, skip event
				}

				if event.Type == types.EventTypeTripStatus && terminalStatusEvent(event.Data) {
					return
				}
			}
		}
	}
}

// terminalStatusEvent reports whether a trip_status payload carries a
// terminal status.
func terminalStatusEvent(data json.RawMessage) bool {
	var payload struct {
		Status types.TripStatus `json:"status"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return false
	}
	return payload.Status.Terminal()
}

// AdapterInfo returns diagnostic information.
func (s *RedisStore) AdapterInfo(ctx context.Context) (map[string]interface{}, error) {
	pingStart := time.Now()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return map[string]interface{}{
			"adapter": "redis",
			"healthy": false,
			"error":   err.Error(),
		}, nil
	}
	pingLatency := time.Since(pingStart)

	poolStats := s.client.PoolStats()

	return map[string]interface{}{
		"adapter": "redis",
		"healthy": true,
		"details": map[string]interface{}{
			"prefix":       s.prefix,
			"ttl_hours":    s.ttl.Hours(),
			"ping_latency": pingLatency.String(),
			"pool": map[string]interface{}{
				"hits":       poolStats.Hits,
				"misses":     poolStats.Misses,
				"timeouts":   poolStats.Timeouts,
				"total_conn": poolStats.TotalConns,
				"idle_conn":  poolStats.IdleConns,
				"stale_conn": poolStats.StaleConns,
			},
		},
	}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	return s.client.Close()
}

// Ensure RedisStore implements TripStore
var _ TripStore = (*RedisStore)(nil)
