package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/pointbin/internal/adapters/repository"
)

const (
	defaultCapturesLimit = 20
	maxCapturesLimit     = 200
)

// CapturesDependencies defines the interface for the capture audit log.
type CapturesDependencies interface {
	RecentCaptures(ctx context.Context, limit int) ([]repository.CaptureRecord, error)
}

// CapturesHandler handles capture history requests.
type CapturesHandler struct {
	deps     CapturesDependencies
	maxLimit int
}

// NewCapturesHandler creates a new captures handler.
func NewCapturesHandler(deps CapturesDependencies, maxLimit int) *CapturesHandler {
	return &CapturesHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetCaptures handles GET /captures?limit=N requests.
func (h *CapturesHandler) HandleGetCaptures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	n := defaultCapturesLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest))
			return
		}
		n = v
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", fmt.Errorf("%w: limit above %d", ErrBadRequest, h.maxLimit))
		return
	}
	records, err := h.deps.RecentCaptures(r.Context(), n)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", fmt.Errorf("%w: %v", ErrUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, records)
}
