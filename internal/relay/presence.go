package relay

import "relayhub/internal/wsconn"

// broadcastPresenceTo emits users_changed to hostConn and, independently, to
// every Controller in siblings. Used after an attach/detach.
func (s *Server) broadcastPresenceTo(hostConn *wsconn.Conn, siblings []*wsconn.Conn) {
	if hostConn == nil {
		return
	}
	payload := s.presencePayload(siblings)
	_ = hostConn.Send(payload)
	for _, c := range siblings {
		_ = c.Send(payload)
	}
}

// broadcastPresence recomputes the current controller set for hostConn
// from the registry (used right after an attach, where the caller already
// holds a fresh hostConn but not the updated sibling list).
func (s *Server) broadcastPresence(hostConn *wsconn.Conn) {
	controllers := s.reg.ControllersOf(hostConn)
	payload := s.presencePayload(controllers)
	_ = hostConn.Send(payload)
	for _, c := range controllers {
		_ = c.Send(payload)
	}
}

func (s *Server) presencePayload(controllers []*wsconn.Conn) map[string]any {
	users := make([]map[string]any, 0, len(controllers))
	for _, c := range controllers {
		users = append(users, map[string]any{
			"sessionId":  c.SessionID,
			"deviceInfo": c.DeviceInfo,
		})
	}
	return map[string]any{
		"type":       "users_changed",
		"users":      users,
		"totalCount": len(users),
	}
}
