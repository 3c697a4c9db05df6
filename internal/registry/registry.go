// Package registry implements the connection registry: it
// tracks every live transport, classifies it as Host, Controller, or
// Unassigned, and maps passwords to Hosts and to their attached Controllers.
//
// Every mutation is serialized under a single coarse lock over the maps,
// rather than per-map locks (internal/auth and internal/session take the
// same approach for their own state). Readers that need to send frames
// must collect recipients under the lock and send after release, handled
// by callers in internal/relay, never inside this package.
package registry

import (
	"sync"

	"relayhub/internal/wsconn"
)

// HostRecord is the one-per-password registered agent.
type HostRecord struct {
	Password    string
	Conn        *wsconn.Conn
	Info        map[string]any
	Controllers map[*wsconn.Conn]struct{}
}

// ControllerRecord is the one-per-attached-transport client.
type ControllerRecord struct {
	Conn       *wsconn.Conn
	Password   string
	SessionID  string
	DeviceInfo map[string]any
}

// Registry is the shared, lock-protected connection table.
type Registry struct {
	mu          sync.Mutex
	hosts       map[string]*HostRecord
	controllers map[*wsconn.Conn]*ControllerRecord
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		hosts:       make(map[string]*HostRecord),
		controllers: make(map[*wsconn.Conn]*ControllerRecord),
	}
}

// RegisterHost installs conn as the Host for password. If a Host already
// exists for this password it is returned so the caller can notify and
// close it (that happens outside the lock).
func (r *Registry) RegisterHost(password string, info map[string]any, conn *wsconn.Conn) (previous *wsconn.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.hosts[password]; ok {
		previous = old.Conn
	}

	conn.Role = wsconn.Host
	conn.HostPassword = password

	r.hosts[password] = &HostRecord{
		Password:    password,
		Conn:        conn,
		Info:        info,
		Controllers: make(map[*wsconn.Conn]struct{}),
	}
	return previous
}

// AttachController inserts conn as a Controller of the Host at password.
// Returns the Host's connection and false if no such Host exists.
func (r *Registry) AttachController(password string, conn *wsconn.Conn, sessionID string, deviceInfo map[string]any) (hostConn *wsconn.Conn, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	host, exists := r.hosts[password]
	if !exists {
		return nil, false
	}

	conn.Role = wsconn.Controller
	conn.SessionID = sessionID
	conn.ControllerPassword = password
	conn.DeviceInfo = deviceInfo

	host.Controllers[conn] = struct{}{}
	r.controllers[conn] = &ControllerRecord{
		Conn:       conn,
		Password:   password,
		SessionID:  sessionID,
		DeviceInfo: deviceInfo,
	}
	return host.Conn, true
}

// DetachHost removes the Host record for conn (if conn is currently a Host)
// and returns the set of Controllers that were attached to it, so the
// caller can broadcast computer_disconnected after releasing the lock.
func (r *Registry) DetachHost(conn *wsconn.Conn) (controllers []*wsconn.Conn, existed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	host, ok := r.hosts[conn.HostPassword]
	if !ok || host.Conn != conn {
		return nil, false
	}
	for c := range host.Controllers {
		controllers = append(controllers, c)
	}
	delete(r.hosts, conn.HostPassword)
	return controllers, true
}

// DetachController removes conn from its Host's set and from the
// controller index. Returns the record, the Host's connection (if any,
// for presence broadcast), and the siblings remaining attached.
func (r *Registry) DetachController(conn *wsconn.Conn) (record *ControllerRecord, hostConn *wsconn.Conn, siblings []*wsconn.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.controllers[conn]
	if !ok {
		return nil, nil, nil
	}
	delete(r.controllers, conn)

	if host, ok := r.hosts[rec.Password]; ok {
		delete(host.Controllers, conn)
		hostConn = host.Conn
		for c := range host.Controllers {
			siblings = append(siblings, c)
		}
	}
	return rec, hostConn, siblings
}

// HostConn returns the live Host connection for password, if any.
func (r *Registry) HostConn(password string) (*wsconn.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hosts[password]
	if !ok {
		return nil, false
	}
	return h.Conn, true
}

// HostExists reports whether a Host is currently registered for password.
func (r *Registry) HostExists(password string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.hosts[password]
	return ok
}

// ControllersOf returns a snapshot of the Controllers attached to hostConn.
func (r *Registry) ControllersOf(hostConn *wsconn.Conn) []*wsconn.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	host, ok := r.hosts[hostConn.HostPassword]
	if !ok || host.Conn != hostConn {
		return nil
	}
	out := make([]*wsconn.Conn, 0, len(host.Controllers))
	for c := range host.Controllers {
		out = append(out, c)
	}
	return out
}

// ControllersForPassword returns the Controllers currently attached to the
// Host registered under password, regardless of which connection is passed.
func (r *Registry) ControllersForPassword(password string) []*wsconn.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	host, ok := r.hosts[password]
	if !ok {
		return nil
	}
	out := make([]*wsconn.Conn, 0, len(host.Controllers))
	for c := range host.Controllers {
		out = append(out, c)
	}
	return out
}

// ControllerRecordFor returns the ControllerRecord for conn, if attached.
func (r *Registry) ControllerRecordFor(conn *wsconn.Conn) (*ControllerRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.controllers[conn]
	return rec, ok
}

// Stats reports the counts used by GET /status.
type Stats struct {
	Computers int
	Clients   int
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Computers: len(r.hosts), Clients: len(r.controllers)}
}
