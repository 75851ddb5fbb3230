package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/internal/notify"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Origins are enforced by the session token, not by the upgrade.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// SubscribeState handles GET /v1/trips/{key}/state/subscribe.
// After the upgrade every committed write to the trip is pushed as a
// Document text frame. Nothing is sent on connect; clients Load first.
func (s *Server) SubscribeState(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, err := domain.ParseTripKey(key); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.WarnContext(r.Context(), "websocket upgrade failed", "key", key, "error", err)
		return
	}

	client := notify.NewClient(key)
	if err := s.hub.Register(r.Context(), client); err != nil {
		conn.Close()
		return
	}
	s.logger.DebugContext(r.Context(), "subscriber joined", "key", key)

	go writePump(conn, client)
	readPump(conn)

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	s.hub.Unregister(ctx, client)
	s.logger.DebugContext(r.Context(), "subscriber left", "key", key)
}

// writePump forwards queued documents and keeps the connection alive with
// pings. It exits when the hub closes client.Send.
func writePump(conn *websocket.Conn, client *notify.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames; it only exists to observe pongs and the
// close handshake. Returns when the peer goes away.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
