// Package api serves the agent's local status endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/pointbin/internal/adapters/repository"
	"github.com/okian/pointbin/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	StatsProvider

	// RecentCaptures lists the newest audited captures, newest first.
	RecentCaptures(ctx context.Context, limit int) ([]repository.CaptureRecord, error)

	// DrainAwards runs one offline award queue pass.
	DrainAwards(ctx context.Context) (model.DrainResult, error)
}

// Server wires HTTP routes for the status API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	capturesHandler *CapturesHandler
	awardsHandler   *AwardsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(deps),
		statsHandler:    NewStatsHandler(deps),
		capturesHandler: NewCapturesHandler(deps, maxCapturesLimit),
		awardsHandler:   NewAwardsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/captures", MetricsMiddleware(s.capturesHandler.HandleGetCaptures, "captures"))
	mux.HandleFunc("/awards/drain", MetricsMiddleware(s.awardsHandler.HandleDrain, "awards_drain"))
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
