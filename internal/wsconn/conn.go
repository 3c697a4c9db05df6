// Package wsconn wraps a single WebSocket transport with the tagged-variant
// classification a connection can have: Unassigned, Host, or Controller.
// Classification latches on first successful registration and never changes.
package wsconn

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Role is the latched classification of a connection.
type Role int

const (
	Unassigned Role = iota
	Host
	Controller
)

// Conn is one live transport plus whatever the registry/session/auth layers
// have attached to it. All mutable fields besides IsAlive are only ever
// written while the caller holds the registry's lock.
type Conn struct {
	WS         *websocket.Conn
	RemoteAddr string

	writeMu sync.Mutex
	closed  atomic.Bool

	// IsAlive is flipped by the heartbeat sweep (internal/relay) and by
	// pong receipt; no lock needed, it's only ever read/written by the
	// single heartbeat goroutine and the read loop for this connection.
	IsAlive atomic.Bool

	Role Role

	// Host fields.
	HostPassword string

	// Controller fields.
	SessionID          string
	ControllerPassword string
	DeviceInfo         map[string]any
}

// New wraps ws as a fresh Unassigned connection.
func New(ws *websocket.Conn, remoteAddr string) *Conn {
	c := &Conn{WS: ws, RemoteAddr: remoteAddr}
	c.IsAlive.Store(true)
	return c
}

// Send marshals v as JSON and writes it as a single text frame. Safe for
// concurrent use: writes are serialized per-connection. A Conn with no
// underlying socket (as used in tests that never dial a real transport)
// is treated as already closed.
func (c *Conn) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() || c.WS == nil {
		return websocket.ErrCloseSent
	}
	return c.WS.WriteMessage(websocket.TextMessage, b)
}

// Ping writes a ping control frame.
func (c *Conn) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() || c.WS == nil {
		return websocket.ErrCloseSent
	}
	return c.WS.WriteMessage(websocket.PingMessage, nil)
}

// Close closes the underlying socket exactly once.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.WS == nil {
		return nil
	}
	return c.WS.Close()
}

func (c *Conn) Closed() bool {
	return c.closed.Load()
}
