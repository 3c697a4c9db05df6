package relay

import (
	"encoding/json"

	"relayhub/internal/session"
	"relayhub/internal/wsconn"
)

func (s *Server) dispatchController(conn *wsconn.Conn, msgType string, raw []byte) {
	sess, ok := s.sess.ValidateSession(conn.SessionID)
	if !ok {
		// session.Manager has already sent the session_expired notice if the
		// session existed and timed out; this is a belt-and-suspenders reply
		// for the case where conn.SessionID never resolved to a session at all.
		_ = conn.Send(map[string]any{"type": "error", "message": errorMessage(ErrSessionExpired, 0)})
		conn.Close()
		return
	}
	if _, attached := s.reg.ControllerRecordFor(conn); !attached {
		// The session is still live but the registry no longer has this
		// transport attached (e.g. a racing kick/logout detached it between
		// the read and the dispatch). Don't act on a message from a
		// connection the registry doesn't recognize anymore.
		conn.Close()
		return
	}
	s.sess.TouchSession(sess.ID)

	switch msgType {
	case "relay":
		s.handleRelay(conn, sess, raw)
	case "get_sessions":
		s.handleGetSessions(conn, sess)
	case "kick_session":
		s.handleKickSession(conn, sess, raw)
	case "logout":
		s.handleLogout(conn, sess)
	case "get_security_log":
		s.handleGetSecurityLog(conn)
	case "get_trusted_devices":
		s.handleGetTrustedDevices(conn, sess)
	case "get_connected_users":
		s.handleGetConnectedUsers(conn, sess)
	case "file_upload_start", "file_chunk", "file_upload_complete", "file_cancel":
		s.dispatchFileUpload(conn, sess, msgType, raw)
	case "file_download_request", "browse_files", "file_operation",
		"start_file_watcher", "stop_file_watcher", "get_watched_folders":
		s.handleForwardToHost(conn, sess, msgType, raw)
	default:
		s.log.Warn("controller sent unexpected type %q", msgType)
	}
}

func (s *Server) handleRelay(conn *wsconn.Conn, sess *session.Session, raw []byte) {
	var msg struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	hostConn, ok := s.reg.HostConn(sess.Password)
	if !ok {
		return // no host attached to this password: silent drop
	}
	_ = hostConn.Send(map[string]any{
		"type":      "command",
		"sessionId": sess.ID,
		"data":      msg.Data,
	})
}

func (s *Server) handleGetSessions(conn *wsconn.Conn, sess *session.Session) {
	sessions := s.sess.SessionsForPassword(sess.Password)
	list := make([]map[string]any, 0, len(sessions))
	for _, se := range sessions {
		list = append(list, map[string]any{
			"sessionId":    se.ID,
			"deviceInfo":   se.DeviceInfo,
			"createdAt":    se.CreatedAt,
			"lastActivity": se.LastActivity,
		})
	}
	_ = conn.Send(map[string]any{"type": "sessions_list", "sessions": list})
}

func (s *Server) handleKickSession(conn *wsconn.Conn, sess *session.Session, raw []byte) {
	var msg struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	peek, ok := s.sess.Peek(msg.SessionID)
	if !ok || peek.Password != sess.Password {
		_ = conn.Send(map[string]any{"type": "kick_result", "success": false, "sessionId": msg.SessionID})
		return
	}

	target := s.sess.DestroySession(msg.SessionID, session.ReasonKicked)
	if target != nil && target.Conn != nil {
		target.Conn.Close()
	}
	_ = conn.Send(map[string]any{"type": "kick_result", "success": target != nil, "sessionId": msg.SessionID})
}

func (s *Server) handleLogout(conn *wsconn.Conn, sess *session.Session) {
	s.sess.DestroySession(sess.ID, session.ReasonManual)
	s.handleDisconnect(conn)
	conn.Close()
}

func (s *Server) handleGetSecurityLog(conn *wsconn.Conn) {
	entries := s.auth.SecurityLogSnapshot()
	list := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		list = append(list, map[string]any{
			"timestamp": e.Timestamp,
			"event":     e.Event,
			"details":   e.Details,
			"ip":        e.IP,
		})
	}
	_ = conn.Send(map[string]any{"type": "security_log", "entries": list})
}

func (s *Server) handleGetTrustedDevices(conn *wsconn.Conn, sess *session.Session) {
	devices := s.auth.TrustedDevicesForPassword(sess.Password)
	list := make([]map[string]any, 0, len(devices))
	for _, d := range devices {
		list = append(list, map[string]any{
			"deviceId":  d.DeviceID,
			"name":      d.Name,
			"browser":   d.Browser,
			"createdAt": d.CreatedAt,
			"lastUsed":  d.LastUsed,
		})
	}
	_ = conn.Send(map[string]any{"type": "trusted_devices", "devices": list})
}

func (s *Server) handleGetConnectedUsers(conn *wsconn.Conn, sess *session.Session) {
	controllers := s.reg.ControllersForPassword(sess.Password)
	payload := s.presencePayload(controllers)
	payload["type"] = "connected_users"
	_ = conn.Send(payload)
}

// handleForwardToHost implements the pass-through request side of the
// download/browse/watch family: stamp requesterId and forward
// as file_command to the caller's Host.
func (s *Server) handleForwardToHost(conn *wsconn.Conn, sess *session.Session, msgType string, raw []byte) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	hostConn, ok := s.reg.HostConn(sess.Password)
	if !ok {
		return
	}
	payload["type"] = "file_command"
	payload["command"] = msgType
	payload["requesterId"] = sess.ID
	_ = hostConn.Send(payload)
}
