// Package httpapi is the service's HTTP surface: starting runs, signalling
// them, reading status and reports, and streaming progress events over SSE
// and WebSocket.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mentorlabs/deepresearch/internal/config"
	"github.com/mentorlabs/deepresearch/internal/db"
	"github.com/mentorlabs/deepresearch/internal/streaming"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap"
)

// WorkflowClient is the slice of the Temporal client the API uses. Satisfied
// by client.Client; stubbed in tests.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error
	QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

// Handler serves the research API.
type Handler struct {
	tc      WorkflowClient
	store   *db.Store // nil disables report/run reads from Postgres
	streams *streaming.Manager
	cfg     *config.Config
	logger  *zap.Logger
}

// NewHandler wires the API surface.
func NewHandler(tc WorkflowClient, store *db.Store, streams *streaming.Manager, cfg *config.Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{tc: tc, store: store, streams: streams, cfg: cfg, logger: logger}
}

// Routes returns the API mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /research", h.startResearch)
	mux.HandleFunc("GET /research/{id}", h.getStatus)
	mux.HandleFunc("GET /research/{id}/report", h.getReport)
	mux.HandleFunc("POST /research/{id}/cancel", h.signalRun(signalCancel))
	mux.HandleFunc("POST /research/{id}/pause", h.signalRun(signalPause))
	mux.HandleFunc("POST /research/{id}/resume", h.signalRun(signalResume))
	mux.HandleFunc("GET /research/{id}/events", h.handleSSE)
	mux.HandleFunc("GET /research/{id}/ws", h.handleWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
