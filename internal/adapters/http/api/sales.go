package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/axiesales/internal/adapters/mq/queue"
)

// SalesHandler accepts sale messages.
type SalesHandler struct {
	deps Dependencies
}

// NewSalesHandler creates a new sales handler.
func NewSalesHandler(deps Dependencies) *SalesHandler {
	return &SalesHandler{deps: deps}
}

// HandlePostSale handles POST /sales requests.
func (h *SalesHandler) HandlePostSale(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_sale"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req saleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: %w", op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: %w", op, ErrBadRequest, err))
		return
	}
	msg := req.message()

	if h.deps.SeenAndRecord(r.Context(), msg.Key()) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	if err := h.deps.Enqueue(r.Context(), msg); err != nil {
		h.deps.Unrecord(r.Context(), msg.Key())
		if errors.Is(err, queue.ErrStopped) {
			writeError(w, http.StatusServiceUnavailable, "unavailable", fmt.Errorf("%s: %w", op, ErrUnavailable))
			return
		}
		writeError(w, http.StatusTooManyRequests, "backpressure", fmt.Errorf("%s: %w", op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
