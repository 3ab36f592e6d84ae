// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/axiesales/internal/domain/dedupe"
	"github.com/okian/axiesales/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// Enqueue pushes a sale for async reconstruction.
	Enqueue(ctx context.Context, m model.SaleMessage) error

	// RefreshParts forces a part catalog resync.
	RefreshParts(ctx context.Context) error
}

// Server wires HTTP routes for the ingress API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	salesHandler  *SalesHandler
	partsHandler  *PartsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		salesHandler:  NewSalesHandler(deps),
		partsHandler:  NewPartsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/sales", MetricsMiddleware(s.salesHandler.HandlePostSale, "sales"))
	mux.HandleFunc("/parts/refresh", MetricsMiddleware(s.partsHandler.HandleRefresh, "parts_refresh"))
}

// saleRequest is the body of POST /sales.
type saleRequest struct {
	TransactionHash string `json:"transaction_hash"`
	AxieID          int64  `json:"axie_id"`
	SaleDate        int64  `json:"sale_date"`
}

func (s saleRequest) validate() error {
	switch {
	case strings.TrimSpace(s.TransactionHash) == "":
		return errors.New("missing transaction_hash")
	case s.AxieID <= 0:
		return errors.New("axie_id must be positive")
	case s.SaleDate <= 0:
		return errors.New("sale_date must be positive epoch seconds")
	}
	return nil
}

func (s saleRequest) message() model.SaleMessage {
	return model.SaleMessage{
		TransactionHash: strings.TrimSpace(s.TransactionHash),
		AxieID:          s.AxieID,
		SaleDate:        s.SaleDate,
	}
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
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
