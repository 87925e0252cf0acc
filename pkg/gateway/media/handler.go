package media

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/registry"
)

// AudioSink receives decoded audio for a session and is told when a stream
// is done. Both operations are fire-and-forget; Stop must be idempotent.
type AudioSink interface {
	PushAudio(sessionID string, audio []byte)
	Stop(sessionID string)
}

// Handler accepts media-stream connections from the telephony provider and
// runs the per-stream protocol machine: awaiting-start, streaming, stopped.
type Handler struct {
	Registry        *registry.Registry
	Audio           AudioSink
	Logger          *slog.Logger
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) pingInterval() time.Duration {
	if h.PingInterval > 0 {
		return h.PingInterval
	}
	return 15 * time.Second
}

func (h *Handler) writeTimeout() time.Duration {
	if h.WriteTimeout > 0 {
		return h.WriteTimeout
	}
	return 5 * time.Second
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// The connection-level session id gates the upgrade; the per-stream
	// session id arrives later in each start handshake.
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if sessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}
	if _, ok := h.Registry.Get(sessionID); !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
		// permessage-deflate is disabled at negotiation rather than
		// normalizing compressed frames after the fact; telephony providers
		// send small uncompressed frames anyway.
		EnableCompression: false,
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if h.MaxMessageBytes > 0 {
		ws.SetReadLimit(h.MaxMessageBytes)
	}

	c := &mediaConn{h: h, ws: ws, streams: make(map[string]string)}
	c.run()
}

type mediaConn struct {
	h  *Handler
	ws *websocket.Conn

	// streamSid -> sessionID, touched only by the read loop. An entry never
	// outlives the connection: cleanup stops every remaining stream.
	streams map[string]string

	cleanupOnce sync.Once
}

func (c *mediaConn) run() {
	interval := c.h.pingInterval()
	pongWait := 2 * interval

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(interval / 2)
				if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
					_ = c.ws.Close()
					return
				}
			}
		}
	}()

	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			break
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if messageType != websocket.TextMessage {
			continue
		}
		if !c.handleFrame(data) {
			break
		}
	}

	close(done)
	c.cleanup()
	_ = c.ws.Close()
}

// handleFrame processes one inbound frame. Returns false when the
// connection should terminate.
func (c *mediaConn) handleFrame(data []byte) bool {
	frame, derr := DecodeFrame(data)
	if derr != nil {
		// A single malformed frame is dropped, never fatal.
		c.h.logger().Debug("media frame dropped", "error", derr)
		return true
	}

	switch frame.Event {
	case EventConnected:
		return true
	case EventStart:
		return c.handleStart(frame)
	case EventMedia:
		c.handleMedia(frame)
		return true
	case EventStop:
		c.handleStop(frame)
		return false
	default:
		c.h.logger().Debug("media frame ignored", "event", frame.Event)
		return true
	}
}

func (c *mediaConn) handleStart(frame Frame) bool {
	streamSid := frame.ResolveStreamSid()
	sessionID := frame.Start.SessionID()
	if sessionID == "" {
		c.closeWith(websocket.ClosePolicyViolation, "start missing sessionId")
		return false
	}
	if _, ok := c.h.Registry.Get(sessionID); !ok {
		c.closeWith(websocket.ClosePolicyViolation, "unknown session")
		return false
	}

	c.streams[streamSid] = sessionID
	c.h.logger().Info("media stream started", "stream_sid", streamSid, "session_id", sessionID)
	return true
}

func (c *mediaConn) handleMedia(frame Frame) {
	sessionID := c.resolveSession(frame)
	if sessionID == "" {
		return
	}
	audio, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
	if err != nil {
		c.h.logger().Debug("media payload dropped", "error", err)
		return
	}
	c.h.Audio.PushAudio(sessionID, audio)
}

// resolveSession maps a frame to its session, falling back to a session id
// carried on the envelope when media races ahead of its start handshake.
func (c *mediaConn) resolveSession(frame Frame) string {
	if sessionID, ok := c.streams[frame.ResolveStreamSid()]; ok {
		return sessionID
	}
	fallback := strings.TrimSpace(frame.SessionID)
	if fallback == "" {
		return ""
	}
	if _, ok := c.h.Registry.Get(fallback); !ok {
		return ""
	}
	return fallback
}

func (c *mediaConn) handleStop(frame Frame) {
	streamSid := frame.ResolveStreamSid()
	sessionID, ok := c.streams[streamSid]
	delete(c.streams, streamSid)
	if !ok {
		sessionID = strings.TrimSpace(frame.SessionID)
	}
	if sessionID != "" {
		c.h.Audio.Stop(sessionID)
	}
	c.h.logger().Info("media stream stopped", "stream_sid", streamSid, "session_id", sessionID)
	c.closeWith(websocket.CloseNormalClosure, "stream stopped")
}

// cleanup runs the stop path for every stream still mapped on this
// connection. One-shot: an explicit stop, a heartbeat failure, and a read
// error can all race into it.
func (c *mediaConn) cleanup() {
	c.cleanupOnce.Do(func() {
		for streamSid, sessionID := range c.streams {
			c.h.Audio.Stop(sessionID)
			delete(c.streams, streamSid)
			c.h.logger().Info("media stream reaped", "stream_sid", streamSid, "session_id", sessionID)
		}
	})
}

func (c *mediaConn) closeWith(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.h.writeTimeout()))
}
