package relay

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"relayhub/internal/config"
	"relayhub/internal/logging"
)

func newTestServer(t *testing.T) *httptest.Server {
	cfg := config.Default()
	cfg.HeartbeatInterval = time.Hour
	cfg.CleanupInterval = time.Hour
	cfg.MaxFailedAttempts = 5
	cfg.LockoutDuration = 15 * time.Minute
	cfg.MaxSessionsPerUser = 5

	s := New(cfg, logging.New("test"))
	ts := httptest.NewServer(http.HandlerFunc(s.HandleWS))
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, v any) {
	require.NoError(t, c.WriteJSON(v))
}

func recv(t *testing.T, c *websocket.Conn) map[string]any {
	var m map[string]any
	require.NoError(t, c.ReadJSON(&m))
	return m
}

func assertNothingReceived(t *testing.T, c *websocket.Conn) {
	c.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var m map[string]any
	err := c.ReadJSON(&m)
	require.Error(t, err, "expected no message, got %v", m)
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
}

func TestPingPongIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	c := dial(t, ts)

	send(t, c, map[string]any{"type": "ping"})
	msg := recv(t, c)
	require.Equal(t, "pong", msg["type"])

	// the ping created no registry/session state, so the connection is still
	// Unassigned and register_computer succeeds cleanly.
	send(t, c, map[string]any{"type": "register_computer", "password": "alpha"})
	msg = recv(t, c)
	require.Equal(t, "registered", msg["type"])
}

// TestHostTakeover mirrors scenario S1.
func TestHostTakeover(t *testing.T) {
	ts := newTestServer(t)
	h1 := dial(t, ts)
	send(t, h1, map[string]any{"type": "register_computer", "password": "alpha"})
	msg := recv(t, h1)
	require.Equal(t, "registered", msg["type"])
	require.Equal(t, true, msg["success"])

	h2 := dial(t, ts)
	send(t, h2, map[string]any{"type": "register_computer", "password": "alpha"})

	replaced := recv(t, h1)
	require.Equal(t, "replaced", replaced["type"])
	require.Equal(t, "Another computer connected with same password", replaced["message"])

	registered := recv(t, h2)
	require.Equal(t, "registered", registered["type"])
	require.Equal(t, true, registered["success"])
}

// TestLockout mirrors scenario S2.
func TestLockout(t *testing.T) {
	ts := newTestServer(t)
	c := dial(t, ts)

	for i := 0; i < 5; i++ {
		send(t, c, map[string]any{"type": "connect_to_computer", "password": "zzzz"})
		msg := recv(t, c)
		require.Equal(t, "error", msg["type"])
		require.Equal(t, "Computer not found or offline", msg["message"])
	}

	host := dial(t, ts)
	send(t, host, map[string]any{"type": "register_computer", "password": "zzzz"})
	recv(t, host)

	send(t, c, map[string]any{"type": "connect_to_computer", "password": "zzzz"})
	msg := recv(t, c)
	require.Equal(t, "error", msg["type"])
	require.Contains(t, msg["message"], "Too many attempts. Try again in")
}

// TestFileUploadRoundTrip mirrors scenario S4.
func TestFileUploadRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	host := dial(t, ts)
	send(t, host, map[string]any{"type": "register_computer", "password": "alpha"})
	recv(t, host)

	controller := dial(t, ts)
	send(t, controller, map[string]any{"type": "connect_to_computer", "password": "alpha"})
	recv(t, controller) // connected
	recv(t, host)        // users_changed to host
	recv(t, controller)  // users_changed to controller

	send(t, controller, map[string]any{
		"type": "file_upload_start", "fileName": "a.txt", "fileSize": 10, "fileType": "text/plain",
	})
	ready := recv(t, controller)
	require.Equal(t, "file_upload_ready", ready["type"])
	transferID := ready["transferId"].(string)

	send(t, controller, map[string]any{
		"type": "file_chunk", "transferId": transferID, "chunkIndex": 1,
		"data": base64.StdEncoding.EncodeToString([]byte("56789")),
	})
	recv(t, controller) // file_progress

	send(t, controller, map[string]any{
		"type": "file_chunk", "transferId": transferID, "chunkIndex": 0,
		"data": base64.StdEncoding.EncodeToString([]byte("01234")),
	})
	recv(t, controller) // file_progress

	send(t, controller, map[string]any{"type": "file_upload_complete", "transferId": transferID})

	command := recv(t, host)
	require.Equal(t, "file_command", command["type"])
	require.Equal(t, "file_receive", command["command"])
	require.Equal(t, "a.txt", command["fileName"])
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("0123456789")), command["fileData"])

	success := recv(t, controller)
	require.Equal(t, "file_upload_success", success["type"])
}

// TestDirectedResponseUniqueness mirrors scenario S5.
func TestDirectedResponseUniqueness(t *testing.T) {
	ts := newTestServer(t)

	host := dial(t, ts)
	send(t, host, map[string]any{"type": "register_computer", "password": "alpha"})
	recv(t, host)

	c1 := dial(t, ts)
	send(t, c1, map[string]any{"type": "connect_to_computer", "password": "alpha"})
	connected1 := recv(t, c1)
	s1 := connected1["sessionId"].(string)
	recv(t, host) // users_changed
	recv(t, c1)   // users_changed

	c2 := dial(t, ts)
	send(t, c2, map[string]any{"type": "connect_to_computer", "password": "alpha"})
	recv(t, c2) // connected
	recv(t, host)
	recv(t, c1)
	recv(t, c2)

	send(t, c1, map[string]any{"type": "browse_files", "path": "/"})
	cmd := recv(t, host)
	require.Equal(t, "file_command", cmd["type"])
	require.Equal(t, "browse_files", cmd["command"])
	requesterID := cmd["requesterId"].(string)
	require.Equal(t, s1, requesterID)

	send(t, host, map[string]any{
		"type": "browse_result_relay", "requesterId": requesterID,
		"success": true, "path": "/", "items": []string{},
	})

	result := recv(t, c1)
	require.Equal(t, "browse_result", result["type"])

	assertNothingReceived(t, c2)
}

// TestSessionCap mirrors scenario S3.
func TestSessionCap(t *testing.T) {
	ts := newTestServer(t)

	host := dial(t, ts)
	send(t, host, map[string]any{"type": "register_computer", "password": "alpha"})
	recv(t, host)

	var controllers []*websocket.Conn
	for i := 0; i < 5; i++ {
		c := dial(t, ts)
		send(t, c, map[string]any{"type": "connect_to_computer", "password": "alpha"})
		recv(t, c)    // connected
		recv(t, host) // users_changed
		recv(t, c)    // users_changed (c is now in the attached set too)
		for _, prev := range controllers {
			recv(t, prev) // users_changed fan-out to every already-attached controller
		}
		controllers = append(controllers, c)
	}

	sixth := dial(t, ts)
	send(t, sixth, map[string]any{"type": "connect_to_computer", "password": "alpha"})
	recv(t, sixth) // connected
	recv(t, host)  // users_changed
	recv(t, sixth) // users_changed
	for _, prev := range controllers[1:] {
		recv(t, prev) // users_changed fan-out to controllers 2..5
	}

	// The evicted first controller is still attached in the registry; its
	// session_expired notice is sent before the sixth's presence fan-out.

	first := controllers[0]
	expired := recv(t, first)
	require.Equal(t, "session_expired", expired["type"])
	require.Equal(t, "max_sessions_exceeded", expired["reason"])
}
