package types

import (
	"time"
)

// Trip represents a single orchestration of a route.
type Trip struct {
	ID         string            `json:"id"`
	Name       string            `json:"name,omitempty"`
	Status     TripStatus        `json:"status"`
	Route      *Route            `json:"route,omitempty"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// TripMeta is a lightweight representation of a trip for listing.
type TripMeta struct {
	ID         string            `json:"id"`
	Name       string            `json:"name,omitempty"`
	Status     TripStatus        `json:"status"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// PointState tracks the runtime state of a point within a trip.
type PointState struct {
	PointID    string      `json:"point_id"`
	Index      int         `json:"index"`
	Status     PointStatus `json:"status"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// PointReport records how a point's fan-in resolved. Produced once by
// the collector and read-only afterwards.
type PointReport struct {
	PointID    string        `json:"point_id"`
	Status     PointStatus   `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	ResolvedAt time.Time     `json:"resolved_at"`
	Wait       time.Duration `json:"wait"`
	// Succeeded lists roles that delivered a candidate, in registration order.
	Succeeded []AgentRole `json:"succeeded,omitempty"`
	// Unresolved lists roles that failed or never reported, in registration order.
	Unresolved []AgentRole `json:"unresolved,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// PointDecision is the Judge's verdict for one point. A failed point
// still yields a decision so gaps are explicit in the final output.
type PointDecision struct {
	PointIndex int                `json:"point_index"`
	PointID    string             `json:"point_id"`
	Status     PointStatus        `json:"status"`
	Chosen     *ContentCandidate  `json:"chosen,omitempty"`
	Candidates []ContentCandidate `json:"candidates,omitempty"`
	Note       string             `json:"note,omitempty"`
	Report     PointReport        `json:"report"`
}
