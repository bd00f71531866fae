// Package collector implements the per-point fan-in synchronizer that
// reconciles asynchronous agent outcomes under tiered deadlines.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tripcue/tripcue/pkg/types"
)

// Config holds the quorum and deadline tiers for one collector.
// All values are externally supplied; the collector bakes in no defaults.
type Config struct {
	PointID string

	// Roles is the fixed, ordered set of producer identities expected to
	// report. Result ordering follows this slice, not arrival order.
	Roles []types.AgentRole

	// SoftTimeout is the advisory deadline: once it elapses, SoftMinimum
	// successes are enough to resolve.
	SoftTimeout time.Duration

	// HardTimeout is the binding deadline: the wait always terminates by it.
	HardTimeout time.Duration

	SoftMinimum int
	HardMinimum int
}

// Validate checks the quorum and deadline relationships. Callers that
// assemble configs ahead of time can fail fast before any point runs.
func (c *Config) Validate() error {
	n := len(c.Roles)
	if n == 0 {
		return fmt.Errorf("collector %s: no roles registered", c.PointID)
	}
	seen := make(map[types.AgentRole]bool, n)
	for _, r := range c.Roles {
		if seen[r] {
			return fmt.Errorf("collector %s: duplicate role %q", c.PointID, r)
		}
		seen[r] = true
	}
	if c.HardMinimum < 1 || c.HardMinimum > c.SoftMinimum || c.SoftMinimum > n {
		return fmt.Errorf("collector %s: quorum bounds must satisfy 1 <= hard(%d) <= soft(%d) <= %d",
			c.PointID, c.HardMinimum, c.SoftMinimum, n)
	}
	if c.SoftTimeout <= 0 || c.SoftTimeout >= c.HardTimeout {
		return fmt.Errorf("collector %s: timeouts must satisfy 0 < soft(%s) < hard(%s)",
			c.PointID, c.SoftTimeout, c.HardTimeout)
	}
	return nil
}

// Snapshot is the terminal output of a collector: the successful
// candidates in role order plus the resolution report. Immutable once
// produced.
type Snapshot struct {
	Candidates []types.ContentCandidate
	Report     types.PointReport
}

// Collector gathers at most one outcome per registered role and
// releases the single consumer once a quorum tier is satisfied or the
// hard deadline elapses. Safe for concurrent Submit calls; exactly one
// goroutine is expected to call Wait.
type Collector struct {
	cfg     Config
	logger  *slog.Logger
	created time.Time

	mu       sync.Mutex
	outcomes map[types.AgentRole]types.AgentOutcome
	status   types.PointStatus
	snapshot Snapshot
	done     chan struct{}
}

// New constructs a collector in the waiting state. Invalid quorum or
// timeout relationships fail here, never at use time.
func New(cfg Config, logger *slog.Logger) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		cfg:      cfg,
		logger:   logger,
		created:  time.Now(),
		outcomes: make(map[types.AgentRole]types.AgentOutcome, len(cfg.Roles)),
		status:   types.PointStatusWaiting,
		done:     make(chan struct{}),
	}, nil
}

// Status returns the current status. Mostly useful for diagnostics.
func (c *Collector) Status() types.PointStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Submit records the outcome for its role. It never blocks the caller
// and never returns an error: late submissions (after a deadline has
// already resolved the point), unknown roles, and duplicates are
// ignored so a misbehaving producer cannot corrupt state.
func (c *Collector) Submit(out types.AgentOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.Terminal() {
		// A slow producer may still be running after the deadline fired.
		c.logger.Debug("late submission ignored",
			slog.String("point_id", c.cfg.PointID), slog.String("role", string(out.Role)))
		return
	}
	if !c.registered(out.Role) {
		c.logger.Warn("submission for unregistered role ignored",
			slog.String("point_id", c.cfg.PointID), slog.String("role", string(out.Role)))
		return
	}
	if _, dup := c.outcomes[out.Role]; dup {
		c.logger.Warn("duplicate submission ignored",
			slog.String("point_id", c.cfg.PointID), slog.String("role", string(out.Role)))
		return
	}

	c.outcomes[out.Role] = out

	// Once every role has reported there is nothing left to wait for:
	// resolve immediately rather than letting a timer run out. This
	// bounds worst-case latency to min(hard timeout, slowest producer).
	if len(c.outcomes) == len(c.cfg.Roles) {
		c.finalizeLocked(c.classifyLocked(), "")
	}
}

// Wait blocks until the collector reaches a terminal status and returns
// the snapshot. Calling Wait again after resolution returns the same
// snapshot. Cancelling ctx resolves the point as failed with reason
// "cancelled".
func (c *Collector) Wait(ctx context.Context) Snapshot {
	select {
	case <-c.done:
		return c.snapshot
	default:
	}

	soft := time.NewTimer(time.Until(c.created.Add(c.cfg.SoftTimeout)))
	defer soft.Stop()
	hard := time.NewTimer(time.Until(c.created.Add(c.cfg.HardTimeout)))
	defer hard.Stop()

	for {
		select {
		case <-c.done:
			return c.snapshot

		case <-soft.C:
			c.mu.Lock()
			if !c.status.Terminal() && c.successesLocked() >= c.cfg.SoftMinimum {
				c.finalizeLocked(types.PointStatusSoftDegraded, "soft quorum met at soft deadline")
			}
			c.mu.Unlock()

		case <-hard.C:
			c.mu.Lock()
			if !c.status.Terminal() {
				if c.successesLocked() >= c.cfg.HardMinimum {
					c.finalizeLocked(types.PointStatusHardDegraded, "hard deadline reached")
				} else {
					c.finalizeLocked(types.PointStatusFailed, "hard quorum not met by hard deadline")
				}
			}
			c.mu.Unlock()

		case <-ctx.Done():
			c.mu.Lock()
			if !c.status.Terminal() {
				c.finalizeLocked(types.PointStatusFailed, "cancelled")
			}
			c.mu.Unlock()
		}
	}
}

func (c *Collector) registered(role types.AgentRole) bool {
	for _, r := range c.cfg.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// successesLocked counts roles that delivered a candidate. Caller holds c.mu.
func (c *Collector) successesLocked() int {
	n := 0
	for _, out := range c.outcomes {
		if out.Succeeded() {
			n++
		}
	}
	return n
}

// classifyLocked maps the current success count to a terminal status.
// Only meaningful once every role has reported. Caller holds c.mu.
func (c *Collector) classifyLocked() types.PointStatus {
	switch n := c.successesLocked(); {
	case n == len(c.cfg.Roles):
		return types.PointStatusComplete
	case n >= c.cfg.SoftMinimum:
		return types.PointStatusSoftDegraded
	case n >= c.cfg.HardMinimum:
		return types.PointStatusHardDegraded
	default:
		return types.PointStatusFailed
	}
}

// finalizeLocked assigns the terminal status exactly once, freezes the
// snapshot, and wakes the consumer. Caller holds c.mu.
func (c *Collector) finalizeLocked(status types.PointStatus, reason string) {
	if c.status.Terminal() {
		return
	}
	c.status = status

	resolved := time.Now()
	report := types.PointReport{
		PointID:    c.cfg.PointID,
		Status:     status,
		StartedAt:  c.created,
		ResolvedAt: resolved,
		Wait:       resolved.Sub(c.created),
		Reason:     reason,
	}

	var candidates []types.ContentCandidate
	for _, role := range c.cfg.Roles {
		out, reported := c.outcomes[role]
		if reported && out.Succeeded() {
			report.Succeeded = append(report.Succeeded, role)
			candidates = append(candidates, *out.Candidate)
		} else {
			report.Unresolved = append(report.Unresolved, role)
		}
	}

	c.snapshot = Snapshot{Candidates: candidates, Report: report}
	close(c.done)
}
