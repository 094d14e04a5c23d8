package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/internal/domain/types"
)

// EntryDependencies defines the interface for entry stats reads.
type EntryDependencies interface {
	GetEntryStats(ctx context.Context, groupID string, c model.Category, key string) (types.EntryStats, error)
}

// EntriesHandler handles entry stats requests.
type EntriesHandler struct {
	deps EntryDependencies
}

// NewEntriesHandler creates a new entries handler.
func NewEntriesHandler(deps EntryDependencies) *EntriesHandler {
	return &EntriesHandler{deps: deps}
}

// HandleGetEntry handles GET /groups/{group}/entries/{category}/{key}.
// The key is path-escaped; track and album keys contain a "|".
func (h *EntriesHandler) HandleGetEntry(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_entry"
	c, err := parseCategory(op, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		writeError(w, r, NewKind(op, ErrBadRequest))
		return
	}

	st, err := h.deps.GetEntryStats(r.Context(), chi.URLParam(r, "group"), c, key)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
