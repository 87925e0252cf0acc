package panel

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var errConnClosed = errors.New("panel connection closed")

// panelConn serializes writes to one observer socket and makes close
// idempotent so a heartbeat failure and a registry teardown cannot
// double-close. A closed conn turns every write into an error the gateway
// swallows, which is what makes Send a silent no-op on dead sockets.
type panelConn struct {
	mu           sync.Mutex
	ws           *websocket.Conn
	writeTimeout time.Duration
	closed       atomic.Bool
}

func newPanelConn(ws *websocket.Conn, writeTimeout time.Duration) *panelConn {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &panelConn{ws: ws, writeTimeout: writeTimeout}
}

func (c *panelConn) WriteJSON(v any) error {
	if c.closed.Load() {
		return errConnClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteJSON(v)
}

func (c *panelConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	if c.closed.Load() {
		return errConnClosed
	}
	return c.ws.WriteControl(messageType, data, deadline)
}

func (c *panelConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.ws.Close()
}
