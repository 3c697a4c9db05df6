// Package relay implements the Relay Router and the Lifecycle & Heartbeat
// components: the WebSocket message dispatch table, the
// ping/pong liveness sweep, and presence-change broadcast. It is the one
// package that touches every other component.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"relayhub/internal/auth"
	"relayhub/internal/config"
	"relayhub/internal/logging"
	"relayhub/internal/registry"
	"relayhub/internal/session"
	"relayhub/internal/transfer"
	"relayhub/internal/wsconn"
)

// Server wires the six components together and owns the WebSocket upgrade
// path plus the heartbeat goroutine.
type Server struct {
	cfg  *config.Config
	log  *logging.Logger
	reg  *registry.Registry
	auth *auth.Module
	sess *session.Manager
	xfer *transfer.Engine

	upgrader websocket.Upgrader

	connsMu sync.Mutex
	conns   map[*wsconn.Conn]struct{}
}

// New builds a Server bound to cfg, with a fresh registry/auth/session/
// transfer state owned by the server rather than held globally.
func New(cfg *config.Config, log *logging.Logger) *Server {
	return &Server{
		cfg:  cfg,
		log:  log,
		reg:  registry.New(),
		auth: auth.New(cfg),
		sess: session.New(cfg),
		xfer: transfer.New(cfg),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		conns: make(map[*wsconn.Conn]struct{}),
	}
}

// Stats reports the counts GET /status needs.
func (s *Server) Stats() registry.Stats {
	return s.reg.Stats()
}

// SessionStats reports the aggregate session counts GET /status needs.
type SessionStats struct {
	Total       int
	UniqueUsers int
}

func (s *Server) SessionStats() SessionStats {
	s.connsMu.Lock()
	passwords := make(map[string]struct{})
	total := 0
	for c := range s.conns {
		if c.Role == wsconn.Controller {
			passwords[c.ControllerPassword] = struct{}{}
		}
	}
	s.connsMu.Unlock()
	for p := range passwords {
		total += len(s.sess.SessionsForPassword(p))
	}
	return SessionStats{Total: total, UniqueUsers: len(passwords)}
}

const maxMessageBytes = 10 * 1024 * 1024 // max inbound WS payload

// HandleWS upgrades the request to a WebSocket and runs its read loop until
// the transport closes.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed: %v", err)
		return
	}
	ws.SetReadLimit(maxMessageBytes)

	conn := wsconn.New(ws, clientIP(r))
	ws.SetPongHandler(func(string) error {
		conn.IsAlive.Store(true)
		return nil
	})

	s.addConn(conn)
	defer s.removeConn(conn)
	defer s.handleDisconnect(conn)
	defer conn.Close()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		s.dispatch(conn, raw)
	}
}

func (s *Server) addConn(c *wsconn.Conn) {
	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) removeConn(c *wsconn.Conn) {
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
}

func (s *Server) dispatch(conn *wsconn.Conn, raw []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		s.log.Warn("malformed frame from %s: %v", conn.RemoteAddr, err)
		return
	}

	if env.Type == "ping" {
		_ = conn.Send(map[string]any{"type": "pong"})
		return
	}

	switch conn.Role {
	case wsconn.Unassigned:
		s.dispatchUnassigned(conn, env.Type, raw)
	case wsconn.Host:
		s.dispatchHost(conn, env.Type, raw)
	case wsconn.Controller:
		s.dispatchController(conn, env.Type, raw)
	}
}

// handleDisconnect runs the detach path for conn, whichever role it
// had latched. Safe to call even for a connection that never registered.
func (s *Server) handleDisconnect(conn *wsconn.Conn) {
	switch conn.Role {
	case wsconn.Host:
		controllers, existed := s.reg.DetachHost(conn)
		if !existed {
			return
		}
		for _, c := range controllers {
			_ = c.Send(map[string]any{
				"type":    "computer_disconnected",
				"message": "The computer you were connected to has disconnected",
			})
		}
	case wsconn.Controller:
		rec, hostConn, siblings := s.reg.DetachController(conn)
		if rec == nil {
			return
		}
		s.sess.DestroySession(rec.SessionID, session.ReasonManual)
		s.broadcastPresenceTo(hostConn, siblings)
	}
}

// startHeartbeat runs the liveness sweep until ctx is cancelled.
func (s *Server) startHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepConns()
		}
	}
}

func (s *Server) sweepConns() {
	s.connsMu.Lock()
	snapshot := make([]*wsconn.Conn, 0, len(s.conns))
	for c := range s.conns {
		snapshot = append(snapshot, c)
	}
	s.connsMu.Unlock()

	for _, c := range snapshot {
		if !c.IsAlive.CompareAndSwap(true, false) {
			c.Close() // read loop observes the close and runs handleDisconnect
			continue
		}
		_ = c.Ping()
	}
}

// startSessionSweep runs the periodic session expiry sweep until ctx is
// cancelled.
func (s *Server) startSessionSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sess.Sweep()
		}
	}
}

// Run starts the background heartbeat and session-sweep loops. It blocks
// until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.startHeartbeat(ctx) }()
	go func() { defer wg.Done(); s.startSessionSweep(ctx) }()
	wg.Wait()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
