package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tripcue/tripcue/internal/agent"
	"github.com/tripcue/tripcue/internal/config"
	"github.com/tripcue/tripcue/internal/judge"
	"github.com/tripcue/tripcue/internal/orchestrator"
	"github.com/tripcue/tripcue/internal/tripstore"
	"github.com/tripcue/tripcue/internal/validator"
	"github.com/tripcue/tripcue/pkg/types"
)

func testServer(t *testing.T) (*Server, tripstore.TripStore) {
	t.Helper()

	store := tripstore.NewMemoryStore(nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

	agents := []agent.Capability{
		agent.Func(types.RoleVideo, func(ctx context.Context, pt types.Point) (*types.ContentCandidate, error) {
			return &types.ContentCandidate{Role: types.RoleVideo, Title: pt.Name, Score: 1}, nil
		}),
	}
	orch, err := orchestrator.New(agents, judge.NewScoreJudge(), store, orchestrator.Config{
		SoftTimeout: 100 * time.Millisecond,
		HardTimeout: 500 * time.Millisecond,
		SoftMinimum: 1,
		HardMinimum: 1,
	}, logger)
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}

	v, err := validator.New()
	if err != nil {
		t.Fatalf("validator.New: %v", err)
	}

	cfg := &config.Config{CORSOrigins: []string{"*"}}
	handlers := NewHandlers(store, orch, v, nil, cfg, logger)
	return NewServer(handlers), store
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCreateTripValidationFailure(t *testing.T) {
	s, _ := testServer(t)

	// Missing route
	rec := doRequest(t, s, http.MethodPost, "/api/v1/trips", map[string]interface{}{
		"name": "broken",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error != ErrCodeValidation {
		t.Fatalf("error code = %q, want %q", resp.Error, ErrCodeValidation)
	}
}

func TestCreateTripRejectsBadLatitude(t *testing.T) {
	s, _ := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/trips", map[string]interface{}{
		"name": "bad coords",
		"route": map[string]interface{}{
			"points": []map[string]interface{}{
				{"name": "nowhere", "lat": 123.0, "lon": 8.5},
			},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateAndGetTrip(t *testing.T) {
	s, store := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/trips", map[string]interface{}{
		"name": "coastal loop",
		"route": map[string]interface{}{
			"name": "coastal",
			"points": []map[string]interface{}{
				{"name": "harbor", "lat": 43.3, "lon": 5.4},
				{"name": "old town", "lat": 43.29, "lon": 5.37},
			},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var created CreateTripResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.TripID == "" {
		t.Fatal("missing trip_id")
	}
	if created.Status != string(types.TripStatusQueued) {
		t.Fatalf("status = %q, want queued", created.Status)
	}

	// Points got IDs and indexes assigned
	trip, err := store.GetTrip(context.Background(), created.TripID)
	if err != nil {
		t.Fatalf("GetTrip: %v", err)
	}
	for i, pt := range trip.Route.Points {
		if pt.ID == "" {
			t.Fatalf("point %d has no ID", i)
		}
		if pt.Index != i {
			t.Fatalf("point %d index = %d", i, pt.Index)
		}
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/trips/"+created.TripID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
}

func TestGetTripNotFound(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/trips/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStartTripAndFetchDecisions(t *testing.T) {
	s, store := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/trips", map[string]interface{}{
		"name": "quick trip",
		"route": map[string]interface{}{
			"points": []map[string]interface{}{
				{"name": "stop one"},
				{"name": "stop two"},
			},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created CreateTripResponse
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/trips/"+created.TripID+"/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}

	// Starting twice conflicts
	rec = doRequest(t, s, http.MethodPost, "/api/v1/trips/"+created.TripID+"/start", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", rec.Code)
	}

	// Processing runs in the background; poll the store until terminal.
	deadline := time.Now().Add(2 * time.Second)
	for {
		meta, err := store.GetTripMeta(context.Background(), created.TripID)
		if err != nil {
			t.Fatalf("GetTripMeta: %v", err)
		}
		if meta.Status == types.TripStatusSucceeded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("trip never finished, status = %s", meta.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/trips/"+created.TripID+"/decisions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("decisions status = %d", rec.Code)
	}
	var out struct {
		Decisions []*types.PointDecision `json:"decisions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode decisions: %v", err)
	}
	if len(out.Decisions) != 2 {
		t.Fatalf("decisions = %d, want 2", len(out.Decisions))
	}
}

func TestCancelTrip(t *testing.T) {
	s, store := testServer(t)

	tripID, err := store.CreateTrip(context.Background(), "to cancel", &types.Route{
		Points: []types.Point{{Index: 0, ID: "p0", Name: "somewhere"}},
	})
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}

	rec := doRequest(t, s, http.MethodPost, "/api/v1/trips/"+tripID+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}

	cancelled, err := store.IsCancelled(context.Background(), tripID)
	if err != nil {
		t.Fatalf("IsCancelled: %v", err)
	}
	if !cancelled {
		t.Fatal("trip not marked cancelled")
	}
}

func TestListAgents(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/agents", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Agents []map[string]string `json:"agents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Agents) != 1 || out.Agents[0]["role"] != string(types.RoleVideo) {
		t.Fatalf("agents = %+v, want the video role", out.Agents)
	}
}

func TestStreamEventsFinishedTrip(t *testing.T) {
	s, store := testServer(t)
	ctx := context.Background()

	route := &types.Route{Points: []types.Point{{ID: "pt-0", Index: 0, Name: "harbor"}}}
	tripID, err := store.CreateTrip(ctx, "done-trip", route)
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}
	now := time.Now().UTC()
	if err := store.UpdateTripStatus(ctx, tripID, types.TripStatusSucceeded, nil, &now); err != nil {
		t.Fatalf("UpdateTripStatus: %v", err)
	}

	// The stream must terminate on its own for a finished trip.
	rec := doRequest(t, s, http.MethodGet, "/api/v1/trips/"+tripID+"/events", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: hello") {
		t.Errorf("body missing hello event:\n%s", body)
	}
	if !strings.Contains(body, "id: final") || !strings.Contains(body, string(types.TripStatusSucceeded)) {
		t.Errorf("body missing terminal status event:\n%s", body)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	s, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trips", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("X-Request-ID = %q, want req-123", got)
	}
}
