package types

// PointStatus represents how a point's producer fan-in resolved.
// Transitions only move forward: waiting advances to exactly one
// terminal status and never changes afterwards.
type PointStatus string

const (
	// PointStatusWaiting means the collector is still accepting reports.
	PointStatusWaiting PointStatus = "waiting"
	// PointStatusComplete means every registered role succeeded.
	PointStatusComplete PointStatus = "complete"
	// PointStatusSoftDegraded means the soft quorum was met by the soft
	// deadline, but not all roles succeeded.
	PointStatusSoftDegraded PointStatus = "soft_degraded"
	// PointStatusHardDegraded means only the hard quorum was met, either
	// at the hard deadline or once every role had reported.
	PointStatusHardDegraded PointStatus = "hard_degraded"
	// PointStatusFailed means fewer than the hard quorum succeeded.
	PointStatusFailed PointStatus = "failed"
)

// Terminal reports whether the status is final.
func (s PointStatus) Terminal() bool {
	switch s {
	case PointStatusComplete, PointStatusSoftDegraded, PointStatusHardDegraded, PointStatusFailed:
		return true
	}
	return false
}

// TripStatus represents the current state of a trip.
type TripStatus string

const (
	TripStatusQueued    TripStatus = "queued"
	TripStatusRunning   TripStatus = "running"
	TripStatusSucceeded TripStatus = "succeeded"
	TripStatusFailed    TripStatus = "failed"
	TripStatusCancelled TripStatus = "cancelled"
)

// Terminal reports whether the trip has finished for good.
func (s TripStatus) Terminal() bool {
	switch s {
	case TripStatusSucceeded, TripStatusFailed, TripStatusCancelled:
		return true
	}
	return false
}
