package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/tunechart/internal/domain/records"
)

// RecordsDependencies defines the interface for records reads.
type RecordsDependencies interface {
	GetRecords(ctx context.Context, groupID string) (*records.Snapshot, error)
}

// RecordsHandler handles records requests.
type RecordsHandler struct {
	deps RecordsDependencies
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(deps RecordsDependencies) *RecordsHandler {
	return &RecordsHandler{deps: deps}
}

// HandleGetRecords handles GET /groups/{group}/records. A group that was
// never calculated answers with status "none".
func (h *RecordsHandler) HandleGetRecords(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.GetRecords(r.Context(), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, r, Wrap("api.get_records", err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
