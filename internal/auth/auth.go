// Package auth implements password format checks, the failed-attempt
// lockout window, the trusted-device registry, and the append-only
// security log. It never touches a transport directly (internal/relay
// calls into it and acts on the results).
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"sync"
	"time"

	"relayhub/internal/config"
)

// Sentinel reasons returned by ValidateTrustedDevice, mirrored onto the
// wire as auto_login_failed{reason}.
const (
	ReasonDeviceNotFound  = "Device not found"
	ReasonTrustExpired    = "Device trust expired"
	ReasonPasswordChanged = "Password changed"
)

type attemptRecord struct {
	count       int
	lastAttempt time.Time
}

// TrustedDevice is a long-lived "remember this browser" credential.
type TrustedDevice struct {
	DeviceID     string
	PasswordHash string
	Name         string
	Browser      string
	CreatedAt    time.Time
	LastUsed     time.Time
	password     string // kept only to key the per-password snapshot listing
}

// SecurityLogEntry is one row of the bounded ring buffer.
type SecurityLogEntry struct {
	Timestamp time.Time
	Event     string
	Details   string
	IP        string
}

// Module owns the failed-attempts map, the trusted-device registry, and the
// security log. One coarse mutex, same rationale as internal/registry.
type Module struct {
	mu sync.Mutex

	cfg *config.Config

	failedAttempts map[string]*attemptRecord
	trustedDevices map[string]*TrustedDevice // deviceId -> device

	// securityLog is stored oldest-first internally (append-only) and
	// reversed on snapshot; newest-first is a read-side property, not a
	// storage requirement.
	securityLog []SecurityLogEntry
}

// New returns an empty Module bound to cfg's lockout/expiry tunables.
func New(cfg *config.Config) *Module {
	return &Module{
		cfg:            cfg,
		failedAttempts: make(map[string]*attemptRecord),
		trustedDevices: make(map[string]*TrustedDevice),
	}
}

// ValidatePasswordFormat reports whether pw is a non-empty string of at
// least 4 characters. Stateless.
func ValidatePasswordFormat(pw string) bool {
	return len(pw) >= 4
}

// CheckLockout reports whether password is currently locked out and, if so,
// how many minutes remain. A stale entry (outside the lockout window) is
// cleared as a side effect.
func (m *Module) CheckLockout(password string) (locked bool, remainingMinutes int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.failedAttempts[password]
	if !ok {
		return false, 0
	}
	elapsed := time.Since(rec.lastAttempt)
	if elapsed >= m.cfg.LockoutDuration {
		delete(m.failedAttempts, password)
		return false, 0
	}
	if rec.count < m.cfg.MaxFailedAttempts {
		return false, 0
	}
	remaining := m.cfg.LockoutDuration - elapsed
	return true, int(remaining.Minutes()) + 1
}

// RecordFailedAttempt increments password's counter and stamps the time.
func (m *Module) RecordFailedAttempt(password string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.failedAttempts[password]
	if !ok {
		rec = &attemptRecord{}
		m.failedAttempts[password] = rec
	}
	rec.count++
	rec.lastAttempt = time.Now()
}

// ClearFailedAttempts removes any lockout bookkeeping for password. Call
// this only on an explicit successful connect, never preemptively.
func (m *Module) ClearFailedAttempts(password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failedAttempts, password)
}

// RegisterTrustedDevice mints a fresh deviceId and stores a hash of
// password so that a later password rotation silently invalidates trust.
func (m *Module) RegisterTrustedDevice(password string, name, browser string) (deviceID string) {
	deviceID = randomToken()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trustedDevices[deviceID] = &TrustedDevice{
		DeviceID:     deviceID,
		PasswordHash: hashPassword(password),
		Name:         name,
		Browser:      browser,
		CreatedAt:    time.Now(),
		LastUsed:     time.Now(),
		password:     password,
	}
	return deviceID
}

// ValidateTrustedDevice checks deviceId against password, returning a
// failure reason or (true, "") on success. An expired entry is deleted
// as a side effect.
func (m *Module) ValidateTrustedDevice(password, deviceID string) (valid bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, ok := m.trustedDevices[deviceID]
	if !ok {
		return false, ReasonDeviceNotFound
	}
	if time.Since(dev.CreatedAt) > m.cfg.TrustedDeviceExpiry {
		delete(m.trustedDevices, deviceID)
		return false, ReasonTrustExpired
	}
	if dev.PasswordHash != hashPassword(password) {
		return false, ReasonPasswordChanged
	}
	dev.LastUsed = time.Now()
	return true, ""
}

// TrustedDevicesForPassword returns a snapshot for get_trusted_devices.
func (m *Module) TrustedDevicesForPassword(password string) []TrustedDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TrustedDevice
	for _, d := range m.trustedDevices {
		if d.password == password {
			out = append(out, *d)
		}
	}
	return out
}

// LogSecurityEvent appends a capped, newest-first-on-read entry.
func (m *Module) LogSecurityEvent(event, details, ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.securityLog = append(m.securityLog, SecurityLogEntry{
		Timestamp: time.Now(),
		Event:     event,
		Details:   details,
		IP:        ip,
	})
	if over := len(m.securityLog) - m.cfg.SecurityLogLimit; over > 0 {
		m.securityLog = m.securityLog[over:]
	}
}

// SecurityLogSnapshot returns the log newest-first, per the data model.
func (m *Module) SecurityLogSnapshot() []SecurityLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SecurityLogEntry, len(m.securityLog))
	for i, e := range m.securityLog {
		out[len(m.securityLog)-1-i] = e
	}
	return out
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// randomToken returns a base64url, 256-bit random token, used for both
// deviceId and (via internal/session) session id.
func randomToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand failing means the platform entropy source is broken
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// RandomToken exposes randomToken for sibling packages (internal/session)
// that need the same entropy guarantee for a different identifier.
func RandomToken() string { return randomToken() }
