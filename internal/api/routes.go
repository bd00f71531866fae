// Package api provides HTTP handlers and routing for the tripcue service.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP handlers and dependencies.
type Server struct {
	router   *mux.Router
	handlers *Handlers
}

// NewServer creates a new API server with the given handlers.
func NewServer(h *Handlers) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
	}
	s.setupRoutes()
	return s
}

// Router returns the configured router for use with http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("/health", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/healthz", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/ready", s.handlers.Ready).Methods("GET")

	// Prometheus metrics
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Trip management
	api.HandleFunc("/trips", s.handlers.CreateTrip).Methods("POST")
	api.HandleFunc("/trips", s.handlers.ListTrips).Methods("GET")
	api.HandleFunc("/trips/{id}", s.handlers.GetTrip).Methods("GET")
	api.HandleFunc("/trips/{id}/decisions", s.handlers.GetDecisions).Methods("GET")
	api.HandleFunc("/trips/{id}/start", s.handlers.StartTrip).Methods("POST")
	api.HandleFunc("/trips/{id}/cancel", s.handlers.CancelTrip).Methods("POST")
	api.HandleFunc("/trips/{id}/events", s.handlers.StreamEvents).Methods("GET")

	// Agent introspection
	api.HandleFunc("/agents", s.handlers.ListAgents).Methods("GET")

	// TripStore diagnostics
	api.HandleFunc("/tripstore/info", s.handlers.TripStoreInfo).Methods("GET")
	api.HandleFunc("/tripstore/selfcheck", s.handlers.TripStoreSelfCheck).Methods("GET")

	// Apply middleware
	s.router.Use(s.handlers.CORSMiddleware)
	s.router.Use(s.handlers.LoggingMiddleware)
	s.router.Use(s.handlers.RecoveryMiddleware)
}
