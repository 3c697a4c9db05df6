package relay

import (
	"encoding/json"

	"relayhub/internal/auth"
	"relayhub/internal/session"
	"relayhub/internal/wsconn"
)

func (s *Server) dispatchUnassigned(conn *wsconn.Conn, msgType string, raw []byte) {
	switch msgType {
	case "register_computer":
		s.handleRegisterComputer(conn, raw)
	case "connect_to_computer":
		s.handleConnectToComputer(conn, raw)
	case "auto_login":
		s.handleAutoLogin(conn, raw)
	default:
		s.log.Warn("unassigned connection sent unexpected type %q", msgType)
	}
}

func (s *Server) handleRegisterComputer(conn *wsconn.Conn, raw []byte) {
	var msg struct {
		Password string         `json:"password"`
		Info     map[string]any `json:"info"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError(conn, "Invalid request")
		return
	}
	if !auth.ValidatePasswordFormat(msg.Password) {
		s.sendError(conn, errorMessage(ErrInvalidPasswordFormat, 0))
		return
	}

	previous := s.reg.RegisterHost(msg.Password, msg.Info, conn)
	if previous != nil {
		_ = previous.Send(map[string]any{
			"type":    "replaced",
			"message": "Another computer connected with same password",
		})
		previous.Close()
	}
	s.auth.LogSecurityEvent("host_registered", msg.Password, conn.RemoteAddr)
	_ = conn.Send(map[string]any{"type": "registered", "success": true})
}

func (s *Server) handleConnectToComputer(conn *wsconn.Conn, raw []byte) {
	var msg struct {
		Password     string         `json:"password"`
		TrustDevice  bool           `json:"trustDevice"`
		DeviceInfo   map[string]any `json:"deviceInfo"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError(conn, "Invalid request")
		return
	}

	if !auth.ValidatePasswordFormat(msg.Password) {
		s.sendError(conn, errorMessage(ErrInvalidPasswordFormat, 0))
		return
	}
	if locked, remaining := s.auth.CheckLockout(msg.Password); locked {
		s.auth.LogSecurityEvent("lockout_rejected", msg.Password, conn.RemoteAddr)
		s.sendError(conn, errorMessage(ErrLockout, remaining))
		return
	}
	if !s.reg.HostExists(msg.Password) {
		s.auth.RecordFailedAttempt(msg.Password)
		s.auth.LogSecurityEvent("host_not_found", msg.Password, conn.RemoteAddr)
		s.sendError(conn, errorMessage(ErrComputerOffline, 0))
		return
	}

	s.auth.ClearFailedAttempts(msg.Password)
	sess, hostConn, attached := s.attachController(conn, msg.Password, msg.DeviceInfo)
	if !attached {
		s.sendError(conn, errorMessage(ErrComputerOffline, 0))
		return
	}

	var deviceID string
	if msg.TrustDevice {
		name, _ := msg.DeviceInfo["name"].(string)
		browser, _ := msg.DeviceInfo["browser"].(string)
		deviceID = s.auth.RegisterTrustedDevice(msg.Password, name, browser)
	}

	reply := map[string]any{
		"type":      "connected",
		"sessionId": sess.ID,
		"expiresIn": int(s.cfg.SessionTimeout.Seconds()),
	}
	if deviceID != "" {
		reply["deviceId"] = deviceID
	}
	_ = conn.Send(reply)

	s.auth.LogSecurityEvent("controller_connected", msg.Password, conn.RemoteAddr)
	s.broadcastPresence(hostConn)
}

func (s *Server) handleAutoLogin(conn *wsconn.Conn, raw []byte) {
	var msg struct {
		DeviceID   string         `json:"deviceId"`
		Password   string         `json:"password"`
		DeviceInfo map[string]any `json:"deviceInfo"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError(conn, "Invalid request")
		return
	}

	valid, reason := s.auth.ValidateTrustedDevice(msg.Password, msg.DeviceID)
	if !valid {
		_ = conn.Send(map[string]any{"type": "auto_login_failed", "reason": reason})
		return
	}

	sess, hostConn, attached := s.attachController(conn, msg.Password, msg.DeviceInfo)
	if !attached {
		_ = conn.Send(map[string]any{"type": "auto_login_failed", "reason": "Computer not found or offline"})
		return
	}

	_ = conn.Send(map[string]any{
		"type":      "connected",
		"sessionId": sess.ID,
		"expiresIn": int(s.cfg.SessionTimeout.Seconds()),
	})
	s.auth.LogSecurityEvent("auto_login", msg.Password, conn.RemoteAddr)
	s.broadcastPresence(hostConn)
}

// attachController is the shared registry/session tail of connect_to_computer and
// auto_login: create a session, then attach the transport as a Controller.
// If the Host has vanished between the caller's own checks and here, the
// freshly created session is torn down and ok is false.
func (s *Server) attachController(conn *wsconn.Conn, password string, deviceInfo map[string]any) (sess *session.Session, hostConn *wsconn.Conn, ok bool) {
	sess, _ = s.sess.CreateSession(password, deviceInfo, conn)
	hostConn, attached := s.reg.AttachController(password, conn, sess.ID, deviceInfo)
	if !attached {
		s.sess.DestroySession(sess.ID, session.ReasonManual)
		return nil, nil, false
	}
	return sess, hostConn, true
}

func (s *Server) sendError(conn *wsconn.Conn, message string) {
	_ = conn.Send(map[string]any{"type": "error", "message": message})
}
