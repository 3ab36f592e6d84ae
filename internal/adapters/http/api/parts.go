package api

import (
	"fmt"
	"net/http"
)

// PartsHandler triggers part catalog resyncs.
type PartsHandler struct {
	deps Dependencies
}

// NewPartsHandler creates a new parts handler.
func NewPartsHandler(deps Dependencies) *PartsHandler {
	return &PartsHandler{deps: deps}
}

// HandleRefresh handles POST /parts/refresh requests.
func (h *PartsHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	const op = "api.refresh_parts"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := h.deps.RefreshParts(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, "upstream", fmt.Errorf("%s: %w: %w", op, ErrRefresh, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
