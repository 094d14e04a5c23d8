package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/internal/domain/types"
)

// ChartDependencies defines the interface for chart reads.
type ChartDependencies interface {
	GetChartSnapshot(ctx context.Context, groupID string, week time.Time, c model.Category) (types.Chart, error)
}

// ChartsHandler handles chart requests.
type ChartsHandler struct {
	deps ChartDependencies
}

// NewChartsHandler creates a new charts handler.
func NewChartsHandler(deps ChartDependencies) *ChartsHandler {
	return &ChartsHandler{deps: deps}
}

// HandleGetChart handles GET /groups/{group}/charts/{category}?week=YYYY-MM-DD.
// Without a week the latest generated chart is returned.
func (h *ChartsHandler) HandleGetChart(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_chart"
	c, err := parseCategory(op, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var week time.Time
	if v := r.URL.Query().Get("week"); v != "" {
		week, err = time.Parse(types.DateLayout, v)
		if err != nil {
			writeError(w, r, WrapKind(op, ErrBadRequest, err))
			return
		}
	}

	chart, err := h.deps.GetChartSnapshot(r.Context(), chi.URLParam(r, "group"), week, c)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, chart)
}
