package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType categorizes the kind of event.
type EventType string

const (
	EventTypeHello         EventType = "hello"
	EventTypeTripStatus    EventType = "trip_status"
	EventTypePointStatus   EventType = "point_status"
	EventTypePointDecision EventType = "point_decision"
	EventTypeLog           EventType = "log"
	EventTypeError         EventType = "error"
)

// LogLevel represents the severity of a log event.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// Event represents a single event in a trip's event stream.
type Event struct {
	ID        string          `json:"id"`
	TripID    string          `json:"trip_id"`
	Type      EventType       `json:"type"`
	PointID   string          `json:"point_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventInput is used when appending new events.
type EventInput struct {
	Type    EventType   `json:"type"`
	PointID string      `json:"point_id,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// TripStatusEvent is the data payload for trip status change events.
type TripStatusEvent struct {
	Status TripStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// PointStatusEvent is the data payload for point status change events.
type PointStatusEvent struct {
	Index  int         `json:"index"`
	Status PointStatus `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// ToSSE formats the event for Server-Sent Events protocol.
// Format: id: <id>\nevent: <type>\ndata: <json>\n\n
func (e *Event) ToSSE() []byte {
	data, _ := json.Marshal(e)
	return []byte(fmt.Sprintf("id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, data))
}
