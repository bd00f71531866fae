package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tripcue/tripcue/internal/metrics"
	"github.com/tripcue/tripcue/internal/tripstore"
	"github.com/tripcue/tripcue/pkg/types"
)

// StreamEvents handles GET /api/v1/trips/{id}/events
// It implements Server-Sent Events (SSE) for streaming trip events.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tripID := mux.Vars(r)["id"]
	startTime := time.Now()

	requestID := GetRequestID(ctx, r)

	metrics.SSEActiveConnections.Inc()
	defer metrics.SSEActiveConnections.Dec()

	h.logger.Info("SSE connection opened",
		slog.String("trip_id", tripID),
		slog.String("request_id", requestID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	// Check if trip exists
	meta, err := h.store.GetTripMeta(ctx, tripID)
	if err != nil {
		if errors.Is(err, tripstore.ErrTripNotFound) {
			h.respondError(w, r, http.StatusNotFound, "trip not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get trip", err)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Check for Last-Event-ID header for resumption
	lastEventID := r.Header.Get("Last-Event-ID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, r, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}
	flusher.Flush()

	// Send a hello event
	h.writeSSE(w, flusher, &types.Event{
		ID:        "0",
		TripID:    tripID,
		Type:      types.EventTypeHello,
		Timestamp: time.Now().UTC(),
	})

	// Get historical events if resuming
	if lastEventID != "" {
		events, err := h.store.GetEventsSince(ctx, tripID, lastEventID)
		if err != nil {
			h.logger.Error("failed to get historical events", "error", err, "trip_id", tripID)
		} else {
			for _, evt := range events {
				h.writeSSE(w, flusher, evt)
			}
		}
	}

	// A finished trip produces no further events, so deliver the terminal
	// status and end the stream instead of parking on heartbeats.
	if meta.Status.Terminal() {
		h.sendTripFinishedEvent(ctx, w, flusher, tripID)
		metrics.SSEConnectionDuration.Observe(time.Since(startTime).Seconds())
		h.logger.Info("SSE connection closed (trip already finished)",
			slog.String("trip_id", tripID),
			slog.String("request_id", requestID),
		)
		return
	}

	// Subscribe to new events
	eventCh, cleanup, err := h.store.Subscribe(ctx, tripID)
	if err != nil {
		h.logger.Error("failed to subscribe to events", "error", err, "trip_id", tripID)
		return
	}
	defer cleanup()

	done := r.Context().Done()

	// Heartbeat ticker to keep connection alive
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			duration := time.Since(startTime)
			metrics.SSEConnectionDuration.Observe(duration.Seconds())
			h.logger.Info("SSE connection closed (client disconnect)",
				slog.String("trip_id", tripID),
				slog.String("request_id", requestID),
				slog.Duration("duration", duration),
				slog.String("reason", "client_disconnect"),
			)
			return

		case evt, ok := <-eventCh:
			if !ok {
				// Channel closed, trip finished or was cancelled
				h.sendTripFinishedEvent(ctx, w, flusher, tripID)
				duration := time.Since(startTime)
				metrics.SSEConnectionDuration.Observe(duration.Seconds())
				h.logger.Info("SSE connection closed (trip finished)",
					slog.String("trip_id", tripID),
					slog.String("request_id", requestID),
					slog.Duration("duration", duration),
					slog.String("reason", "trip_finished"),
				)
				return
			}
			h.writeSSE(w, flusher, evt)

		case <-heartbeat.C:
			h.writeComment(w, flusher, "heartbeat")
		}
	}
}

// writeSSE writes an event in SSE format and flushes.
func (h *Handlers) writeSSE(w http.ResponseWriter, flusher http.Flusher, evt *types.Event) {
	if evt == nil {
		return
	}
	if _, err := w.Write(evt.ToSSE()); err != nil {
		h.logger.Error("failed to write SSE event", "error", err)
		return
	}
	flusher.Flush()
}

// writeComment writes an SSE comment (for heartbeats).
func (h *Handlers) writeComment(w http.ResponseWriter, flusher http.Flusher, comment string) {
	if _, err := w.Write([]byte(": " + comment + "\n\n")); err != nil {
		h.logger.Error("failed to write SSE comment", "error", err)
		return
	}
	flusher.Flush()
}

// sendTripFinishedEvent sends a final event carrying the trip's terminal status.
func (h *Handlers) sendTripFinishedEvent(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, tripID string) {
	meta, err := h.store.GetTripMeta(ctx, tripID)
	if err != nil {
		h.logger.Error("failed to get trip meta for final event", "error", err)
		return
	}

	evt := &types.Event{
		ID:        "final",
		TripID:    tripID,
		Type:      types.EventTypeTripStatus,
		Timestamp: time.Now().UTC(),
	}

	if meta != nil {
		data := map[string]interface{}{
			"status": meta.Status,
		}
		if meta.Error != "" {
			data["error"] = meta.Error
		}
		dataJSON, _ := json.Marshal(data)
		evt.Data = dataJSON
	}

	h.writeSSE(w, flusher, evt)
}
