package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/tripcue/tripcue/internal/agent"
	"github.com/tripcue/tripcue/internal/collector"
	"github.com/tripcue/tripcue/internal/metrics"
	"github.com/tripcue/tripcue/pkg/types"
)

// runAgent executes one agent's search for a point and delivers exactly
// one outcome to the collector. A normal return becomes a success, an
// error becomes a failure, and a panic is recovered into a failure so a
// misbehaving agent can never take the point down with it.
func (o *Orchestrator) runAgent(ctx context.Context, a agent.Capability, pt types.Point, coll *collector.Collector) {
	role := a.Role()
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("agent panicked",
				slog.String("role", string(role)),
				slog.String("point_id", pt.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			metrics.AgentOutcomesTotal.WithLabelValues(string(role), "panic").Inc()
			coll.Submit(types.FailureOutcome(role, fmt.Sprintf("panic: %v", r)))
		}
	}()

	candidate, err := a.Search(ctx, pt)
	metrics.AgentSearchSeconds.WithLabelValues(string(role)).Observe(time.Since(started).Seconds())

	if err != nil {
		o.logger.Warn("agent search failed",
			slog.String("role", string(role)),
			slog.String("point_id", pt.ID),
			slog.Any("error", err))
		metrics.AgentOutcomesTotal.WithLabelValues(string(role), "failure").Inc()
		coll.Submit(types.FailureOutcome(role, err.Error()))
		return
	}
	if candidate == nil {
		// Treat a nil candidate without an error as a producer bug, not a
		// success with no content.
		metrics.AgentOutcomesTotal.WithLabelValues(string(role), "failure").Inc()
		coll.Submit(types.FailureOutcome(role, "agent returned no candidate"))
		return
	}

	metrics.AgentOutcomesTotal.WithLabelValues(string(role), "success").Inc()
	coll.Submit(types.SuccessOutcome(role, candidate))
}
