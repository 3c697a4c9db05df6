package relay

import (
	"encoding/base64"
	"encoding/json"

	"relayhub/internal/session"
	"relayhub/internal/transfer"
	"relayhub/internal/wsconn"
)

// dispatchFileUpload implements the upload flow's Controller-facing
// half: file_upload_start, file_chunk, file_upload_complete, file_cancel.
func (s *Server) dispatchFileUpload(conn *wsconn.Conn, sess *session.Session, msgType string, raw []byte) {
	switch msgType {
	case "file_upload_start":
		s.handleFileUploadStart(conn, sess, raw)
	case "file_chunk":
		s.handleFileChunk(conn, sess, raw)
	case "file_upload_complete":
		s.handleFileUploadComplete(conn, sess, raw)
	case "file_cancel":
		s.handleFileCancel(conn, sess, raw)
	}
}

func (s *Server) handleFileUploadStart(conn *wsconn.Conn, sess *session.Session, raw []byte) {
	var msg struct {
		FileName string `json:"fileName"`
		FileSize int64  `json:"fileSize"`
		FileType string `json:"fileType"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	t, err := s.xfer.StartUpload(sess.Password, msg.FileName, msg.FileSize, msg.FileType)
	if err != nil {
		switch err {
		case transfer.ErrFileTooLarge:
			s.sendError(conn, errorMessage(ErrFileTooLarge, 0))
		case transfer.ErrFileTypeNotAllowed:
			s.sendError(conn, errorMessage(ErrFileTypeNotAllowed, 0))
		default:
			s.sendError(conn, err.Error())
		}
		return
	}

	_ = conn.Send(map[string]any{
		"type":       "file_upload_ready",
		"success":    true,
		"transferId": t.ID,
	})
}

func (s *Server) handleFileChunk(conn *wsconn.Conn, sess *session.Session, raw []byte) {
	var msg struct {
		TransferID string `json:"transferId"`
		ChunkIndex int    `json:"chunkIndex"`
		Data       string `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	data, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		s.sendError(conn, "Invalid chunk data")
		return
	}

	if owner, ok := s.xfer.TransferPassword(msg.TransferID); !ok || owner != sess.Password {
		return // not this controller's transfer: silent drop
	}

	progress, speed, err := s.xfer.StoreChunk(msg.TransferID, msg.ChunkIndex, data)
	if err != nil {
		return // routing/lookup failure: silent drop
	}

	_ = conn.Send(map[string]any{
		"type":       "file_progress",
		"transferId": msg.TransferID,
		"progress":   progress,
		"speed":      speed,
	})
}

func (s *Server) handleFileUploadComplete(conn *wsconn.Conn, sess *session.Session, raw []byte) {
	var msg struct {
		TransferID string `json:"transferId"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	if owner, ok := s.xfer.TransferPassword(msg.TransferID); !ok || owner != sess.Password {
		return // not this controller's transfer: silent drop
	}

	fileData, t, err := s.xfer.CompleteUpload(msg.TransferID)
	if err != nil {
		return
	}

	hostConn, ok := s.reg.HostConn(sess.Password)
	if ok {
		_ = hostConn.Send(map[string]any{
			"type":       "file_command",
			"command":    "file_receive",
			"transferId": t.ID,
			"fileName":   t.FileName,
			"fileData":   base64.StdEncoding.EncodeToString(fileData),
			"fileSize":   t.FileSize,
		})
	}

	_ = conn.Send(map[string]any{
		"type":       "file_upload_success",
		"transferId": t.ID,
	})
}

func (s *Server) handleFileCancel(conn *wsconn.Conn, sess *session.Session, raw []byte) {
	var msg struct {
		TransferID string `json:"transferId"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if owner, ok := s.xfer.TransferPassword(msg.TransferID); !ok || owner != sess.Password {
		return // not this controller's transfer: silent drop
	}
	_ = s.xfer.CancelUpload(msg.TransferID)
}
