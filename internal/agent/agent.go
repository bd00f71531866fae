// Package agent defines the capability contract producers implement.
package agent

import (
	"context"

	"github.com/tripcue/tripcue/pkg/types"
)

// Capability is one producer's unit of work: search for a single
// content candidate for a point. Implementations may block on I/O; the
// orchestrator never holds a lock across a Search call.
type Capability interface {
	Role() types.AgentRole
	Search(ctx context.Context, pt types.Point) (*types.ContentCandidate, error)
}

// SearchFunc adapts a function to the Capability interface.
type SearchFunc func(ctx context.Context, pt types.Point) (*types.ContentCandidate, error)

type funcCapability struct {
	role types.AgentRole
	fn   SearchFunc
}

// Func wraps fn as a Capability for the given role.
func Func(role types.AgentRole, fn SearchFunc) Capability {
	return &funcCapability{role: role, fn: fn}
}

func (f *funcCapability) Role() types.AgentRole { return f.role }

func (f *funcCapability) Search(ctx context.Context, pt types.Point) (*types.ContentCandidate, error) {
	return f.fn(ctx, pt)
}
