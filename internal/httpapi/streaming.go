package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mentorlabs/deepresearch/internal/streaming"
	"go.uber.org/zap"
)

const subscriberBuffer = 256

// parseTypeFilter reads the optional comma-separated ?types= filter.
func parseTypeFilter(r *http.Request) map[string]struct{} {
	filter := map[string]struct{}{}
	if s := r.URL.Query().Get("types"); s != "" {
		for _, t := range strings.Split(s, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter[t] = struct{}{}
			}
		}
	}
	return filter
}

func passes(filter map[string]struct{}, evt streaming.Event) bool {
	if len(filter) == 0 {
		return true
	}
	_, ok := filter[evt.Type]
	return ok
}

// lastEventID reads the SSE Last-Event-ID header, falling back to the
// last_event_id query parameter.
func lastEventID(r *http.Request) uint64 {
	if lei := r.Header.Get("Last-Event-ID"); lei != "" {
		if n, err := strconv.ParseUint(lei, 10, 64); err == nil {
			return n
		}
	}
	if q := r.URL.Query().Get("last_event_id"); q != "" {
		if n, err := strconv.ParseUint(q, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// handleSSE streams run events as Server-Sent Events.
// GET /research/{id}/events
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	if h.streams == nil {
		writeError(w, http.StatusNotImplemented, "streaming disabled")
		return
	}
	runID := r.PathValue("id")
	filter := parseTypeFilter(r)
	since := lastEventID(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch := h.streams.Subscribe(runID, subscriberBuffer)
	defer h.streams.Unsubscribe(runID, ch)

	fmt.Fprintf(w, ": connected to run %s\n\n", runID)
	flusher.Flush()

	if since > 0 {
		for _, evt := range h.streams.ReplaySince(runID, since) {
			if passes(filter, evt) {
				writeSSE(w, evt)
			}
		}
		flusher.Flush()
	}

	hb := time.NewTicker(15 * time.Second)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("run_id", runID))
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			if passes(filter, evt) {
				writeSSE(w, evt)
				flusher.Flush()
			}
		case <-hb.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, evt streaming.Event) {
	if evt.Seq > 0 {
		fmt.Fprintf(w, "id: %d\n", evt.Seq)
	}
	if evt.Type != "" {
		fmt.Fprintf(w, "event: %s\n", evt.Type)
	}
	fmt.Fprintf(w, "data: %s\n\n", evt.Marshal())
}
