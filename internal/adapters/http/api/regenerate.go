package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/tunechart/internal/domain/types"
)

// RegenerateDependencies defines the interface for chart regeneration.
type RegenerateDependencies interface {
	RegenerateWeek(ctx context.Context, groupID string, week time.Time, exclude []string) (types.WeekResult, error)
	RegenerateRange(ctx context.Context, groupID string, weeksBack int) (types.RangeResult, error)
}

// RegenerateHandler handles regeneration requests.
type RegenerateHandler struct {
	deps RegenerateDependencies
}

// NewRegenerateHandler creates a new regenerate handler.
func NewRegenerateHandler(deps RegenerateDependencies) *RegenerateHandler {
	return &RegenerateHandler{deps: deps}
}

// HandleRegenerateWeek handles POST /groups/{group}/regenerate.
func (h *RegenerateHandler) HandleRegenerateWeek(w http.ResponseWriter, r *http.Request) {
	const op = "api.regenerate_week"
	var req types.RegenerateRequest
	if err := decode(r, op, &req); err != nil {
		writeError(w, r, err)
		return
	}
	week, err := time.Parse(types.DateLayout, req.Week)
	if err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.RegenerateWeek(r.Context(), chi.URLParam(r, "group"), week, req.Exclude)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleRegenerateRange handles POST /groups/{group}/regenerate-range. When
// the range stops early the partial result is returned with the error status.
func (h *RegenerateHandler) HandleRegenerateRange(w http.ResponseWriter, r *http.Request) {
	const op = "api.regenerate_range"
	var req types.RangeRequest
	if err := decode(r, op, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.deps.RegenerateRange(r.Context(), chi.URLParam(r, "group"), req.WeeksBack)
	if err != nil {
		if res.FailedWeek != "" {
			status, _ := classify(err)
			writeJSON(w, status, res)
			return
		}
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
