// Package session implements the session manager: creation,
// touch, validation, expiry, and destruction of per-controller sessions,
// plus the max-sessions-per-password eviction rule.
package session

import (
	"sort"
	"sync"
	"time"

	"relayhub/internal/auth"
	"relayhub/internal/config"
	"relayhub/internal/wsconn"
)

// Destroy reasons, mirrored onto the wire as session_expired{reason}.
const (
	ReasonExpired             = "expired"
	ReasonManual              = "manual"
	ReasonMaxSessionsExceeded = "max_sessions_exceeded"
	ReasonKicked              = "kicked"
	ReasonPasswordChanged     = "password_changed"
)

// Session is a time-bounded controller identity, the correlation key for
// directed replies.
type Session struct {
	ID           string
	Password     string
	DeviceInfo   map[string]any
	CreatedAt    time.Time
	LastActivity time.Time
	Conn         *wsconn.Conn
}

// Manager owns the session table. One coarse mutex, same as
// internal/registry and internal/auth.
type Manager struct {
	mu         sync.Mutex
	cfg        *config.Config
	sessions   map[string]*Session
	byPassword map[string][]string // session ids, insertion order == createdAt order
}

// New returns an empty Manager bound to cfg's timeout/cap tunables.
func New(cfg *config.Config) *Manager {
	return &Manager{
		cfg:        cfg,
		sessions:   make(map[string]*Session),
		byPassword: make(map[string][]string),
	}
}

// CreateSession allocates a session with a fresh 256-bit id. If password
// already holds cfg.MaxSessionsPerUser sessions, the oldest is evicted
// first and returned alongside the new session so the caller can notify it.
func (m *Manager) CreateSession(password string, deviceInfo map[string]any, conn *wsconn.Conn) (s *Session, evicted *Session) {
	m.mu.Lock()

	if ids := m.byPassword[password]; len(ids) >= m.cfg.MaxSessionsPerUser {
		oldestID := ids[0]
		evicted = m.removeLocked(oldestID)
	}

	s = &Session{
		ID:           auth.RandomToken(),
		Password:     password,
		DeviceInfo:   deviceInfo,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
		Conn:         conn,
	}
	m.sessions[s.ID] = s
	m.byPassword[password] = append(m.byPassword[password], s.ID)

	m.mu.Unlock()

	if evicted != nil {
		notify(evicted, ReasonMaxSessionsExceeded)
	}
	return s, evicted
}

// ValidateSession returns the session if it exists and is not idle-expired.
// An expired session is destroyed (with notification) as a side effect.
func (m *Manager) ValidateSession(id string) (*Session, bool) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, false
	}
	if time.Since(s.LastActivity) > m.cfg.SessionTimeout {
		m.removeLocked(id)
		m.mu.Unlock()
		notify(s, ReasonExpired)
		return nil, false
	}
	m.mu.Unlock()
	return s, true
}

// Peek returns the session for id without touching or validating it, for
// ownership checks that must not count as activity.
func (m *Manager) Peek(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// TouchSession bumps lastActivity for id, if it exists.
func (m *Manager) TouchSession(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.LastActivity = time.Now()
	}
}

// DestroySession removes id from every index and, if its transport is
// still open, sends {type:"session_expired", reason, message}.
func (m *Manager) DestroySession(id, reason string) *Session {
	m.mu.Lock()
	s := m.removeLocked(id)
	m.mu.Unlock()
	if s != nil {
		notify(s, reason)
	}
	return s
}

// removeLocked deletes id from sessions and byPassword. Caller holds mu.
func (m *Manager) removeLocked(id string) *Session {
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	ids := m.byPassword[s.Password]
	for i, sid := range ids {
		if sid == id {
			m.byPassword[s.Password] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(m.byPassword[s.Password]) == 0 {
		delete(m.byPassword, s.Password)
	}
	return s
}

// SessionsForPassword returns a snapshot ordered by creation time, oldest
// first, for get_sessions.
func (m *Manager) SessionsForPassword(password string) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byPassword[password]
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.sessions[id]; ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Sweep destroys every session idle longer than SessionTimeout and notifies
// each one. Intended to run every cfg.CleanupInterval.
func (m *Manager) Sweep() []*Session {
	m.mu.Lock()
	var expiredIDs []string
	now := time.Now()
	for id, s := range m.sessions {
		if now.Sub(s.LastActivity) > m.cfg.SessionTimeout {
			expiredIDs = append(expiredIDs, id)
		}
	}
	expired := make([]*Session, 0, len(expiredIDs))
	for _, id := range expiredIDs {
		if s := m.removeLocked(id); s != nil {
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		notify(s, ReasonExpired)
	}
	return expired
}

func notify(s *Session, reason string) {
	if s.Conn == nil || s.Conn.Closed() {
		return
	}
	_ = s.Conn.Send(map[string]any{
		"type":    "session_expired",
		"reason":  reason,
		"message": reasonMessage(reason),
	})
}

func reasonMessage(reason string) string {
	switch reason {
	case ReasonExpired:
		return "Session expired due to inactivity"
	case ReasonManual:
		return "Session ended"
	case ReasonMaxSessionsExceeded:
		return "Maximum sessions exceeded for this computer"
	case ReasonKicked:
		return "Session was kicked"
	case ReasonPasswordChanged:
		return "Password changed"
	default:
		return "Session ended"
	}
}
