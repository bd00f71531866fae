package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tripcue/tripcue/internal/archive"
	"github.com/tripcue/tripcue/internal/config"
	"github.com/tripcue/tripcue/internal/orchestrator"
	"github.com/tripcue/tripcue/internal/tripstore"
	"github.com/tripcue/tripcue/internal/validator"
	"github.com/tripcue/tripcue/pkg/types"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	store     tripstore.TripStore
	orch      *orchestrator.Orchestrator
	validator *validator.Validator
	archiver  *archive.Exporter
	config    *config.Config
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance. The archiver is optional;
// finished trips are exported only when one is configured.
func NewHandlers(store tripstore.TripStore, orch *orchestrator.Orchestrator, v *validator.Validator, arch *archive.Exporter, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:     store,
		orch:      orch,
		validator: v,
		archiver:  arch,
		config:    cfg,
		logger:    logger,
	}
}

// --- Health Endpoints ---

// Health handles the /health and /healthz endpoints.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Ready handles the /ready endpoint, checking dependencies.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	info, err := h.store.AdapterInfo(ctx)
	if err != nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "tripstore unhealthy", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ready",
		"tripstore": info,
	})
}

// --- Trip Management ---

// CreateTripRequest is the request body for creating a trip.
type CreateTripRequest struct {
	Name      string       `json:"name"`
	Route     *types.Route `json:"route"`
	AutoStart bool         `json:"auto_start,omitempty"` // Start processing immediately
}

// CreateTripResponse is the response body after creating a trip.
type CreateTripResponse struct {
	TripID string `json:"trip_id"`
	Status string `json:"status"`
	SSEURL string `json:"sse_url,omitempty"`
}

// CreateTrip handles POST /api/v1/trips
func (h *Handlers) CreateTrip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "failed to read request body", err)
		return
	}

	if h.validator != nil {
		result := h.validator.ValidateTripJSON(body)
		if !result.Valid {
			details := map[string]interface{}{"errors": result.Errors}
			writeErrorResponse(w, r, http.StatusBadRequest, ErrCodeValidation, "trip validation failed", details)
			return
		}
	}

	var req CreateTripRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Route == nil || len(req.Route.Points) == 0 {
		h.respondError(w, r, http.StatusBadRequest, "route with at least one point required", errors.New("empty route"))
		return
	}

	// Normalize point indexes and assign IDs where the client omitted them.
	for i := range req.Route.Points {
		req.Route.Points[i].Index = i
		if req.Route.Points[i].ID == "" {
			req.Route.Points[i].ID = uuid.NewString()
		}
	}

	tripID, err := h.store.CreateTrip(ctx, req.Name, req.Route)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to create trip", err)
		return
	}

	resp := CreateTripResponse{
		TripID: tripID,
		Status: string(types.TripStatusQueued),
	}

	if req.AutoStart {
		h.startTrip(tripID, req.Route)
		resp.Status = string(types.TripStatusRunning)
		resp.SSEURL = "/api/v1/trips/" + tripID + "/events"
	}

	h.respondJSON(w, http.StatusCreated, resp)
}

// StartTrip handles POST /api/v1/trips/{id}/start
func (h *Handlers) StartTrip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tripID := mux.Vars(r)["id"]

	trip, err := h.store.GetTrip(ctx, tripID)
	if err != nil {
		if errors.Is(err, tripstore.ErrTripNotFound) {
			h.respondError(w, r, http.StatusNotFound, "trip not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get trip", err)
		return
	}
	if trip.Status != types.TripStatusQueued {
		h.respondError(w, r, http.StatusConflict, "trip already started", errors.New("status "+string(trip.Status)))
		return
	}

	h.startTrip(tripID, trip.Route)

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"trip_id": tripID,
		"status":  string(types.TripStatusRunning),
		"sse_url": "/api/v1/trips/" + tripID + "/events",
	})
}

// startTrip launches route processing detached from the request context
// so the trip outlives the HTTP call. Export runs after a successful
// finish when an archiver is configured.
func (h *Handlers) startTrip(tripID string, route *types.Route) {
	go func() {
		ctx := context.Background()
		decisions, err := h.orch.ProcessRoute(ctx, tripID, route)
		if err != nil {
			h.logger.Error("trip processing failed",
				slog.String("trip_id", tripID), slog.Any("error", err))
			return
		}
		if h.archiver == nil {
			return
		}
		meta, err := h.store.GetTripMeta(ctx, tripID)
		if err != nil || meta.Status != types.TripStatusSucceeded {
			return
		}
		key, err := h.archiver.ExportDecisions(ctx, tripID, decisions)
		if err != nil {
			h.logger.Error("trip export failed",
				slog.String("trip_id", tripID), slog.Any("error", err))
			return
		}
		h.logger.Info("trip exported",
			slog.String("trip_id", tripID), slog.String("key", key))
	}()
}

// ListTrips handles GET /api/v1/trips
func (h *Handlers) ListTrips(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tripIDs, err := h.store.ListTrips(ctx)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to list trips", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"trips": tripIDs})
}

// GetTrip handles GET /api/v1/trips/{id}
func (h *Handlers) GetTrip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tripID := mux.Vars(r)["id"]

	trip, err := h.store.GetTrip(ctx, tripID)
	if err != nil {
		if errors.Is(err, tripstore.ErrTripNotFound) {
			h.respondError(w, r, http.StatusNotFound, "trip not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get trip", err)
		return
	}

	h.respondJSON(w, http.StatusOK, trip)
}

// GetDecisions handles GET /api/v1/trips/{id}/decisions
func (h *Handlers) GetDecisions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tripID := mux.Vars(r)["id"]

	if _, err := h.store.GetTripMeta(ctx, tripID); err != nil {
		if errors.Is(err, tripstore.ErrTripNotFound) {
			h.respondError(w, r, http.StatusNotFound, "trip not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get trip", err)
		return
	}

	decisions, err := h.store.GetDecisions(ctx, tripID)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to get decisions", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"trip_id":   tripID,
		"decisions": decisions,
	})
}

// CancelTrip handles POST /api/v1/trips/{id}/cancel
func (h *Handlers) CancelTrip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tripID := mux.Vars(r)["id"]

	if err := h.store.CancelTrip(ctx, tripID); err != nil {
		if errors.Is(err, tripstore.ErrTripNotFound) {
			h.respondError(w, r, http.StatusNotFound, "trip not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to cancel trip", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": string(types.TripStatusCancelled)})
}

// ListAgents handles GET /api/v1/agents
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	roles := h.orch.Roles()
	agents := make([]map[string]string, 0, len(roles))
	for _, role := range roles {
		agents = append(agents, map[string]string{"role": string(role)})
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

// --- TripStore Diagnostics ---

// TripStoreInfo handles GET /api/v1/tripstore/info
func (h *Handlers) TripStoreInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	info, err := h.store.AdapterInfo(ctx)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to get tripstore info", err)
		return
	}

	h.respondJSON(w, http.StatusOK, info)
}

// TripStoreSelfCheck handles GET /api/v1/tripstore/selfcheck
func (h *Handlers) TripStoreSelfCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Create a trip, append an event, read it back, cancel it.
	start := time.Now()

	tripID, err := h.store.CreateTrip(ctx, "_selfcheck", nil)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "selfcheck failed: create", err)
		return
	}

	_, err = h.store.AppendEvent(ctx, tripID, &types.EventInput{
		Type: types.EventTypeLog,
		Data: map[string]string{"message": "selfcheck"},
	})
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "selfcheck failed: append", err)
		return
	}

	events, err := h.store.GetEventsSince(ctx, tripID, "")
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "selfcheck failed: read", err)
		return
	}

	if err := h.store.CancelTrip(ctx, tripID); err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "selfcheck failed: cleanup", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"latency_ms":  time.Since(start).Milliseconds(),
		"event_count": len(events),
	})
}

// --- Helper Methods ---

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	h.logger.Error(message, "error", err, "status", status)
	var details map[string]interface{}
	if err != nil {
		details = map[string]interface{}{"cause": err.Error()}
	}
	writeErrorResponse(w, r, status, HTTPStatusToErrorCode(status), message, details)
}
