package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced at the proxy layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsReadDeadline  = 60 * time.Second
	wsPingInterval  = 20 * time.Second
	wsWriteDeadline = 10 * time.Second
)

// handleWS streams run events over a WebSocket.
// GET /research/{id}/ws
func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	if h.streams == nil {
		writeError(w, http.StatusNotImplemented, "streaming disabled")
		return
	}
	runID := r.PathValue("id")
	filter := parseTypeFilter(r)
	since := lastEventID(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := h.streams.Subscribe(runID, subscriberBuffer)
	defer h.streams.Unsubscribe(runID, ch)

	if since > 0 {
		for _, evt := range h.streams.ReplaySince(runID, since) {
			if !passes(filter, evt) {
				continue
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	})

	// Reader pump; client messages are discarded.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			if !passes(filter, evt) {
				continue
			}
			if err := conn.WriteJSON(evt); err != nil {
				h.logger.Debug("WS write failed", zap.String("run_id", runID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteDeadline)); err != nil {
				return
			}
		}
	}
}
