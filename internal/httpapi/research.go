package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mentorlabs/deepresearch/internal/db"
	"github.com/mentorlabs/deepresearch/internal/workflows"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

type startRequest struct {
	Query             string `json:"query"`
	Sequential        bool   `json:"sequential,omitempty"`
	MaxParallelTopics int    `json:"max_parallel_topics,omitempty"`
	MaxDepth          int    `json:"max_depth,omitempty"`
	MaxTotalTopics    int    `json:"max_total_topics,omitempty"`
}

type startResponse struct {
	RunID string `json:"run_id"`
}

func (h *Handler) startResearch(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	input := workflows.ResearchInput{
		RunID:                     "dr-" + uuid.NewString(),
		Query:                     req.Query,
		Sequential:                req.Sequential || h.cfg.Research.Sequential,
		MaxParallelTopics:         h.cfg.Research.MaxParallelTopics,
		TopicTimeout:              h.cfg.Research.TopicTimeout,
		MaxDepth:                  h.cfg.Research.MaxDepth,
		MaxTotalTopics:            h.cfg.Research.MaxTotalTopics,
		SeparatePlanningNumbering: h.cfg.Citations.SeparatePlanningNumbering,
	}
	if req.MaxParallelTopics > 0 {
		input.MaxParallelTopics = req.MaxParallelTopics
	}
	if req.MaxDepth > 0 {
		input.MaxDepth = req.MaxDepth
	}
	if req.MaxTotalTopics > 0 {
		input.MaxTotalTopics = req.MaxTotalTopics
	}

	_, err := h.tc.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        input.RunID,
		TaskQueue: h.cfg.Temporal.TaskQueue,
	}, workflows.WorkflowName, input)
	if err != nil {
		h.logger.Error("start research failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start research run")
		return
	}

	h.logger.Info("research run started",
		zap.String("run_id", input.RunID),
		zap.String("query", req.Query))
	writeJSON(w, http.StatusAccepted, startResponse{RunID: input.RunID})
}

type statusResponse struct {
	RunID string                    `json:"run_id"`
	Live  *workflows.StatusSnapshot `json:"live,omitempty"`
	Run   *db.RunRecord             `json:"run,omitempty"`
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	resp := statusResponse{RunID: runID}

	if val, err := h.tc.QueryWorkflow(r.Context(), runID, "", workflows.QueryResearchStatus); err == nil {
		var snap workflows.StatusSnapshot
		if err := val.Get(&snap); err == nil {
			resp.Live = &snap
		}
	}
	if h.store != nil {
		if rec, err := h.store.GetRun(r.Context(), runID); err == nil {
			resp.Run = &rec
		}
	}
	if resp.Live == nil && resp.Run == nil {
		writeError(w, http.StatusNotFound, "unknown run")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "report persistence disabled")
		return
	}
	runID := r.PathValue("id")
	rep, err := h.store.GetReport(r.Context(), runID)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no report for run")
		return
	}
	if err != nil {
		h.logger.Error("report fetch failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "report fetch failed")
		return
	}

	var table json.RawMessage
	if len(rep.CitationTable) > 0 {
		table = json.RawMessage(rep.CitationTable)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":         rep.RunID,
		"markdown":       rep.Markdown,
		"citation_table": table,
		"created_at":     rep.CreatedAt.Format(time.RFC3339),
	})
}

type signalKind int

const (
	signalCancel signalKind = iota
	signalPause
	signalResume
)

type signalBody struct {
	Reason      string `json:"reason,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

func (h *Handler) signalRun(kind signalKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := r.PathValue("id")
		var body signalBody
		_ = json.NewDecoder(r.Body).Decode(&body) // empty body is fine

		var name string
		var arg interface{}
		switch kind {
		case signalCancel:
			name = workflows.SignalCancel
			arg = workflows.CancelRequest{Reason: body.Reason, RequestedBy: body.RequestedBy}
		case signalPause:
			name = workflows.SignalPause
			arg = workflows.PauseRequest{Reason: body.Reason, RequestedBy: body.RequestedBy}
		case signalResume:
			name = workflows.SignalResume
			arg = workflows.ResumeRequest{Reason: body.Reason, RequestedBy: body.RequestedBy}
		}

		if err := h.tc.SignalWorkflow(r.Context(), runID, "", name, arg); err != nil {
			h.logger.Warn("signal failed",
				zap.String("run_id", runID), zap.String("signal", name), zap.Error(err))
			writeError(w, http.StatusNotFound, "could not signal run")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "signal": name})
	}
}
