package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ashita-ai/kumo/internal/model"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	// Clients only send control frames; anything larger is a misbehaving peer.
	wsMaxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard is usually served from a separate dev origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket handles GET /v1/ws. Every broker event is sent as one JSON
// text frame; ?run_id narrows run-scoped events like the SSE endpoint.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "event stream not available")
		return
	}

	runFilter := r.URL.Query().Get("run_id")
	ch := h.broker.Subscribe()
	defer h.broker.Unsubscribe(ch)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("websocket upgrade failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		return
	}

	closed := make(chan struct{})
	go h.wsReadPump(conn, closed)
	h.wsWritePump(conn, ch, closed, runFilter)
}

// wsReadPump drains the connection so pongs and close frames are processed.
// It closes done when the peer goes away.
func (h *Handlers) wsReadPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

// wsWritePump forwards broker messages and pings until the subscription or
// the peer goes away.
func (h *Handlers) wsWritePump(conn *websocket.Conn, ch <-chan message, peerGone <-chan struct{}, runFilter string) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case m, ok := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				// Broker closed the subscription.
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if !m.matches(runFilter) {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, m.payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-peerGone:
			return
		}
	}
}
