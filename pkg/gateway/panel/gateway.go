// Package panel implements the observer WebSocket endpoint. One long-lived
// connection per session attaches with a sessionId query parameter, receives
// a SESSION_STARTED handshake event, and from then on is a pure push sink.
package panel

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/registry"
)

// ProtocolVersion1 is the only panel attach protocol version served.
const ProtocolVersion1 = "1"

type Gateway struct {
	Registry     *registry.Registry
	Logger       *slog.Logger
	PingInterval time.Duration
	WriteTimeout time.Duration
}

func (g *Gateway) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func (g *Gateway) pingInterval() time.Duration {
	if g.PingInterval > 0 {
		return g.PingInterval
	}
	return 15 * time.Second
}

// ServeHTTP validates the attach parameters before upgrading, so each
// rejection cause gets a distinct HTTP status: 405 for non-GET, 400 for a
// missing id or unsupported version, 404 for an unknown session.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if sessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}
	if v := strings.TrimSpace(r.URL.Query().Get("v")); v != "" && v != ProtocolVersion1 {
		http.Error(w, "unsupported protocol version", http.StatusBadRequest)
		return
	}
	if _, ok := g.Registry.Get(sessionID); !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
		// Compression stays off at negotiation; see the media gateway note.
		EnableCompression: false,
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn := newPanelConn(ws, g.WriteTimeout)
	prev, info, ok := g.Registry.AttachPanel(sessionID, conn)
	if !ok {
		// Session ended between the pre-upgrade check and the attach.
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown session")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	if prev != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "replaced by new attach")
		_ = prev.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = prev.Close()
	}

	if err := conn.WriteJSON(Event{
		Type:    EventSessionStarted,
		Payload: SessionStartedPayload{SessionID: info.SessionID, CallID: info.CallID},
	}); err != nil {
		g.logger().Warn("panel handshake write failed", "session_id", sessionID, "error", err)
		_ = conn.Close()
		return
	}
	g.logger().Info("panel attached", "session_id", sessionID, "call_id", info.CallID)

	g.serve(ws, conn, sessionID)
}

// serve runs the liveness loop: a ping ticker and a read pump that only
// refreshes the deadline on pongs. Two missed pongs blow the read deadline
// and force-close the socket; the session itself stays alive.
func (g *Gateway) serve(ws *websocket.Conn, conn *panelConn, sessionID string) {
	interval := g.pingInterval()
	pongWait := 2 * interval

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(interval / 2)
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// Inbound application messages are ignored; the channel is push-only.
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	}

	_ = conn.Close()
	g.logger().Info("panel detached", "session_id", sessionID)
}

// Send pushes one typed event to the session's attached panel. It never
// returns an error: no session, no socket, a replaced socket, or a write
// failure all degrade to a logged no-op so producers stay decoupled from
// panel connectivity.
func (g *Gateway) Send(sessionID, eventType string, payload any) {
	conn, ok := g.Registry.PanelConn(sessionID)
	if !ok {
		return
	}
	if err := conn.WriteJSON(Event{Type: eventType, Payload: payload}); err != nil {
		g.logger().Debug("panel send dropped", "session_id", sessionID, "event", eventType, "error", err)
	}
}
