// Package resilience wraps agent capabilities with retry and timeout
// behavior. The collector never sees retries: a wrapped capability just
// takes longer or ultimately fails.
package resilience

import (
	"context"
	"math"
	"time"

	"github.com/tripcue/tripcue/internal/agent"
	"github.com/tripcue/tripcue/pkg/types"
)

// Policy configures retry behavior for a wrapped capability.
type Policy struct {
	// MaxRetries is the number of additional attempts after the first (0 = no retries).
	MaxRetries int

	// InitialBackoff is the delay before the first retry; subsequent
	// retries double it up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// AttemptTimeout bounds each individual attempt (0 = no per-attempt bound).
	AttemptTimeout time.Duration
}

// DefaultPolicy returns conservative settings for outbound searches.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     1,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

type retryCapability struct {
	inner  agent.Capability
	policy Policy
}

// Wrap returns a capability that retries inner per the policy.
func Wrap(inner agent.Capability, policy Policy) agent.Capability {
	return &retryCapability{inner: inner, policy: policy}
}

func (r *retryCapability) Role() types.AgentRole { return r.inner.Role() }

func (r *retryCapability) Search(ctx context.Context, pt types.Point) (*types.ContentCandidate, error) {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.backoff(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if r.policy.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.policy.AttemptTimeout)
		}
		c, err := r.inner.Search(attemptCtx, pt)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return c, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func (r *retryCapability) backoff(attempt int) time.Duration {
	d := time.Duration(float64(r.policy.InitialBackoff) * math.Pow(2, float64(attempt)))
	if r.policy.MaxBackoff > 0 && d > r.policy.MaxBackoff {
		d = r.policy.MaxBackoff
	}
	return d
}
