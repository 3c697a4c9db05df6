package relay

import (
	"encoding/json"
	"time"

	"relayhub/internal/wsconn"
)

func (s *Server) dispatchHost(conn *wsconn.Conn, msgType string, raw []byte) {
	switch msgType {
	case "screenshot", "result":
		s.broadcastFromHost(conn, msgType, raw)
	case "file_download_response", "file_operation_result", "browse_result_relay",
		"watcher_result", "watched_folders":
		s.deliverToRequester(conn, msgType, raw)
	case "file_change_event":
		s.handleFileChangeEvent(conn, raw)
	default:
		s.log.Warn("host sent unexpected type %q", msgType)
	}
}

// broadcastFromHost forwards a Host-pushed screenshot/result frame verbatim
// to every attached Controller.
func (s *Server) broadcastFromHost(conn *wsconn.Conn, msgType string, raw []byte) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	payload["type"] = msgType
	for _, c := range s.reg.ControllersOf(conn) {
		_ = c.Send(payload)
	}
}

// deliverToRequester implements the directed-delivery rule: among
// conn's attached Controllers, send to the single one whose sessionId
// equals requesterId. Silent drop if none match.
//
// browse_result_relay is renamed to browse_result on delivery, per the S5
// scenario; every other type here passes through unchanged.
func (s *Server) deliverToRequester(conn *wsconn.Conn, msgType string, raw []byte) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	requesterID, _ := payload["requesterId"].(string)
	if requesterID == "" {
		return
	}

	outType := msgType
	if msgType == "browse_result_relay" {
		outType = "browse_result"
	}
	payload["type"] = outType

	for _, c := range s.reg.ControllersOf(conn) {
		if c.SessionID == requesterID {
			_ = c.Send(payload)
			return
		}
	}
}

func (s *Server) handleFileChangeEvent(conn *wsconn.Conn, raw []byte) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	payload["type"] = "file_change_event"
	payload["timestamp"] = time.Now()
	for _, c := range s.reg.ControllersOf(conn) {
		_ = c.Send(payload)
	}
}
