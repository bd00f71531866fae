package agent

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/tripcue/tripcue/pkg/types"
)

// Static is a self-contained capability backed by a fixed catalog.
// It exists for local development and tests: real deployments register
// provider-backed capabilities instead.
type Static struct {
	role    types.AgentRole
	catalog []string
	latency time.Duration
	// failEvery makes every Nth point fail deterministically (0 = never fail).
	failEvery int
}

// NewStatic creates a catalog-backed capability for role.
func NewStatic(role types.AgentRole, catalog []string, latency time.Duration, failEvery int) *Static {
	return &Static{role: role, catalog: catalog, latency: latency, failEvery: failEvery}
}

func (s *Static) Role() types.AgentRole { return s.role }

// Search picks a catalog entry keyed off the point name. The artificial
// latency honors ctx so cancelled trips abandon work promptly.
func (s *Static) Search(ctx context.Context, pt types.Point) (*types.ContentCandidate, error) {
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if s.failEvery > 0 && pt.Index%s.failEvery == s.failEvery-1 {
		return nil, fmt.Errorf("static %s agent: no match for %q", s.role, pt.Name)
	}
	if len(s.catalog) == 0 {
		return nil, fmt.Errorf("static %s agent: empty catalog", s.role)
	}

	h := fnv.New32a()
	h.Write([]byte(pt.Name))
	entry := s.catalog[int(h.Sum32())%len(s.catalog)]

	return &types.ContentCandidate{
		Role:   s.role,
		Title:  fmt.Sprintf("%s near %s", entry, pt.Name),
		URI:    fmt.Sprintf("static://%s/%d", s.role, pt.Index),
		Source: "static-catalog",
		Score:  0.5 + float64(h.Sum32()%50)/100,
	}, nil
}
