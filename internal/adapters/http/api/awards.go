package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/pointbin/internal/domain/model"
)

// AwardsDependencies defines the interface for the offline award queue.
type AwardsDependencies interface {
	DrainAwards(ctx context.Context) (model.DrainResult, error)
}

// AwardsHandler handles manual offline queue flushes.
type AwardsHandler struct {
	deps AwardsDependencies
}

// NewAwardsHandler creates a new awards handler.
func NewAwardsHandler(deps AwardsDependencies) *AwardsHandler {
	return &AwardsHandler{deps: deps}
}

type drainResponse struct {
	Delivered int `json:"delivered"`
	Kept      int `json:"kept"`
	Carried   int `json:"carried"`
	Malformed int `json:"malformed"`
	Remaining int `json:"remaining"`
}

// HandleDrain handles POST /awards/drain requests.
func (h *AwardsHandler) HandleDrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	res, err := h.deps.DrainAwards(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", fmt.Errorf("%w: %v", ErrUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, drainResponse{
		Delivered: res.Delivered,
		Kept:      res.Kept,
		Carried:   res.Carried,
		Malformed: res.Malformed,
		Remaining: res.Remaining(),
	})
}
