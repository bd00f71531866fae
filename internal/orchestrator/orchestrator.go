// Package orchestrator drives the per-point fan-out/fan-in across a route.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tripcue/tripcue/internal/agent"
	"github.com/tripcue/tripcue/internal/collector"
	"github.com/tripcue/tripcue/internal/judge"
	"github.com/tripcue/tripcue/internal/metrics"
	"github.com/tripcue/tripcue/internal/tripstore"
	"github.com/tripcue/tripcue/pkg/types"
)

// Config holds orchestrator configuration. All knobs are externally
// supplied; the per-point fan-out width just follows the number of
// registered agents.
type Config struct {
	// Quorum/deadline tiers applied to every point's collector.
	SoftTimeout time.Duration
	HardTimeout time.Duration
	SoftMinimum int
	HardMinimum int

	// MaxConcurrentPoints caps how many points are reconciled at once
	// across a route (0 = unlimited). Total worker usage is bounded by
	// len(agents) x MaxConcurrentPoints.
	MaxConcurrentPoints int
}

// Orchestrator fans each route point out to the registered agents,
// waits for the point's collector to resolve, and hands the reconciled
// candidates to the Judge. It owns the set of in-flight collectors;
// nothing else ever sees one.
type Orchestrator struct {
	agents []agent.Capability
	roles  []types.AgentRole
	judge  judge.Judge
	store  tripstore.TripStore
	cfg    Config
	sem    chan struct{} // cross-point concurrency limiter
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates an orchestrator. Configuration errors (bad quorum or
// deadline tiers, duplicate agent roles) surface here, not when the
// first point runs.
func New(agents []agent.Capability, j judge.Judge, store tripstore.TripStore, cfg Config, logger *slog.Logger) (*Orchestrator, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("orchestrator: no agents registered")
	}
	if logger == nil {
		logger = slog.Default()
	}

	roles := make([]types.AgentRole, 0, len(agents))
	for _, a := range agents {
		roles = append(roles, a.Role())
	}

	// Probe the collector config once so a bad tier setup cannot reach
	// ProcessPoint.
	probe := collector.Config{
		PointID:     "probe",
		Roles:       roles,
		SoftTimeout: cfg.SoftTimeout,
		HardTimeout: cfg.HardTimeout,
		SoftMinimum: cfg.SoftMinimum,
		HardMinimum: cfg.HardMinimum,
	}
	if err := probe.Validate(); err != nil {
		return nil, err
	}

	var sem chan struct{}
	if cfg.MaxConcurrentPoints > 0 {
		sem = make(chan struct{}, cfg.MaxConcurrentPoints)
	}

	return &Orchestrator{
		agents: agents,
		roles:  roles,
		judge:  j,
		store:  store,
		cfg:    cfg,
		sem:    sem,
		logger: logger,
		tracer: otel.Tracer("tripcue/orchestrator"),
	}, nil
}

// Roles returns the registered agent roles in registration order.
func (o *Orchestrator) Roles() []types.AgentRole {
	out := make([]types.AgentRole, len(o.roles))
	copy(out, o.roles)
	return out
}

// ProcessPoint reconciles a single point: one collector, one runner per
// agent, one decision. It blocks the caller for at most the hard
// timeout. Degraded and failed points come back as decisions, never as
// errors; only infrastructure problems (store writes) return an error.
func (o *Orchestrator) ProcessPoint(ctx context.Context, tripID string, pt types.Point) (*types.PointDecision, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.process_point",
		trace.WithAttributes(
			attribute.String("trip.id", tripID),
			attribute.String("point.id", pt.ID),
			attribute.Int("point.index", pt.Index),
		))
	defer span.End()

	coll, err := collector.New(collector.Config{
		PointID:     pt.ID,
		Roles:       o.roles,
		SoftTimeout: o.cfg.SoftTimeout,
		HardTimeout: o.cfg.HardTimeout,
		SoftMinimum: o.cfg.SoftMinimum,
		HardMinimum: o.cfg.HardMinimum,
	}, o.logger)
	if err != nil {
		return nil, err
	}

	metrics.PointsActive.Inc()
	defer metrics.PointsActive.Dec()

	started := time.Now().UTC()
	o.recordPointState(ctx, tripID, &types.PointState{
		PointID:   pt.ID,
		Index:     pt.Index,
		Status:    types.PointStatusWaiting,
		StartedAt: &started,
	})

	// Fan out. Runners own outcome delivery; no lock is held while an
	// agent searches.
	for _, a := range o.agents {
		go o.runAgent(ctx, a, pt, coll)
	}

	snap := coll.Wait(ctx)
	span.SetAttributes(attribute.String("point.status", string(snap.Report.Status)))

	metrics.PointsTotal.WithLabelValues(string(snap.Report.Status)).Inc()
	metrics.PointWaitSeconds.WithLabelValues(string(snap.Report.Status)).Observe(snap.Report.Wait.Seconds())

	decision := o.judge.Decide(pt, snap.Candidates, snap.Report)

	resolved := snap.Report.ResolvedAt.UTC()
	o.recordPointState(ctx, tripID, &types.PointState{
		PointID:    pt.ID,
		Index:      pt.Index,
		Status:     snap.Report.Status,
		StartedAt:  &started,
		ResolvedAt: &resolved,
		Error:      snap.Report.Reason,
	})

	o.emitEvent(ctx, tripID, types.EventTypePointStatus, pt.ID, types.PointStatusEvent{
		Index:  pt.Index,
		Status: snap.Report.Status,
		Error:  snap.Report.Reason,
	})

	return &decision, nil
}

// ProcessRoute reconciles all points of a route with at most
// MaxConcurrentPoints in flight. Points complete out of order; each
// decision is persisted and pushed to the event stream as soon as it is
// ready, and the returned slice restores route order. Every admitted
// point ends in a terminal decision, including failed ones.
func (o *Orchestrator) ProcessRoute(ctx context.Context, tripID string, route *types.Route) ([]*types.PointDecision, error) {
	if route == nil || len(route.Points) == 0 {
		return nil, fmt.Errorf("orchestrator: empty route for trip %s", tripID)
	}

	metrics.TripsActive.Inc()
	defer metrics.TripsActive.Dec()

	started := time.Now().UTC()
	if err := o.store.UpdateTripStatus(ctx, tripID, types.TripStatusRunning, &started, nil); err != nil {
		return nil, fmt.Errorf("mark trip running: %w", err)
	}
	o.emitEvent(ctx, tripID, types.EventTypeTripStatus, "", types.TripStatusEvent{Status: types.TripStatusRunning})

	decisions := make([]*types.PointDecision, len(route.Points))
	var wg sync.WaitGroup

	for i := range route.Points {
		pt := route.Points[i]

		// Acquire a concurrency slot before admitting the point. This is
		// the only unbounded wait in the system; it drains as earlier
		// points resolve.
		if o.sem != nil {
			select {
			case o.sem <- struct{}{}:
			case <-ctx.Done():
				decisions[i] = o.cancelledDecision(pt)
				continue
			}
		}

		if cancelled, _ := o.store.IsCancelled(ctx, tripID); cancelled {
			if o.sem != nil {
				<-o.sem
			}
			decisions[i] = o.cancelledDecision(pt)
			continue
		}

		wg.Add(1)
		go func(idx int, pt types.Point) {
			defer wg.Done()
			if o.sem != nil {
				defer func() { <-o.sem }()
			}

			decision, err := o.ProcessPoint(ctx, tripID, pt)
			if err != nil {
				// Collector construction cannot fail here (config was
				// probed at New); this is a store write failure.
				o.logger.Error("point processing error",
					slog.String("trip_id", tripID), slog.String("point_id", pt.ID), slog.Any("error", err))
				decision = o.cancelledDecision(pt)
				decision.Note = err.Error()
			}
			decisions[idx] = decision

			if err := o.store.SetDecision(ctx, tripID, decision); err != nil {
				o.logger.Error("persist decision",
					slog.String("trip_id", tripID), slog.String("point_id", pt.ID), slog.Any("error", err))
			}
			o.emitEvent(ctx, tripID, types.EventTypePointDecision, pt.ID, decision)
		}(i, pt)
	}

	wg.Wait()

	// Fill any slots skipped due to cancellation before admission, so no
	// point is ever silently dropped from the output.
	for i := range decisions {
		if decisions[i] == nil {
			decisions[i] = o.cancelledDecision(route.Points[i])
			if err := o.store.SetDecision(ctx, tripID, decisions[i]); err != nil {
				o.logger.Error("persist decision",
					slog.String("trip_id", tripID), slog.String("point_id", decisions[i].PointID), slog.Any("error", err))
			}
		}
	}

	final := o.finalTripStatus(ctx, tripID, decisions)
	finished := time.Now().UTC()
	if err := o.store.UpdateTripStatus(ctx, tripID, final, nil, &finished); err != nil {
		o.logger.Error("mark trip finished", slog.String("trip_id", tripID), slog.Any("error", err))
	}
	metrics.TripsTotal.WithLabelValues(string(final)).Inc()
	o.emitEvent(ctx, tripID, types.EventTypeTripStatus, "", types.TripStatusEvent{Status: final})

	return decisions, nil
}

// finalTripStatus classifies the route: cancelled if the store says so,
// failed if no point produced content, succeeded otherwise.
func (o *Orchestrator) finalTripStatus(ctx context.Context, tripID string, decisions []*types.PointDecision) types.TripStatus {
	if cancelled, _ := o.store.IsCancelled(ctx, tripID); cancelled {
		return types.TripStatusCancelled
	}
	for _, d := range decisions {
		if d != nil && d.Status != types.PointStatusFailed {
			return types.TripStatusSucceeded
		}
	}
	return types.TripStatusFailed
}

func (o *Orchestrator) cancelledDecision(pt types.Point) *types.PointDecision {
	now := time.Now().UTC()
	return &types.PointDecision{
		PointIndex: pt.Index,
		PointID:    pt.ID,
		Status:     types.PointStatusFailed,
		Note:       fmt.Sprintf("no content available for %s", pt.Name),
		Report: types.PointReport{
			PointID:    pt.ID,
			Status:     types.PointStatusFailed,
			StartedAt:  now,
			ResolvedAt: now,
			Unresolved: o.roles,
			Reason:     "cancelled",
		},
	}
}

func (o *Orchestrator) recordPointState(ctx context.Context, tripID string, state *types.PointState) {
	if err := o.store.UpdatePointState(ctx, tripID, state); err != nil {
		o.logger.Error("update point state",
			slog.String("trip_id", tripID), slog.String("point_id", state.PointID), slog.Any("error", err))
	}
}

func (o *Orchestrator) emitEvent(ctx context.Context, tripID string, eventType types.EventType, pointID string, data interface{}) {
	metrics.EventsTotal.WithLabelValues(string(eventType)).Inc()
	if _, err := o.store.AppendEvent(ctx, tripID, &types.EventInput{
		Type:    eventType,
		PointID: pointID,
		Data:    data,
	}); err != nil {
		o.logger.Error("emit event",
			slog.String("trip_id", tripID), slog.String("type", string(eventType)), slog.Any("error", err))
	}
}
