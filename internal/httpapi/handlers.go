package httpapi

import (
	"encoding/json"
	"net/http"

	"relayhub/internal/logging"
	"relayhub/internal/relay"
	"relayhub/internal/wol"
)

const version = "1.0.0"

type handlers struct {
	server *relay.Server
	log    *logging.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handlers) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "relayhub",
		"version": version,
		"features": []string{
			"remote-control-relay",
			"file-transfer",
			"wake-on-lan",
			"trusted-device-auto-login",
		},
	})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	stats := h.server.Stats()
	sessStats := h.server.SessionStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "online",
		"version":   version,
		"computers": stats.Computers,
		"clients":   stats.Clients,
		"sessions": map[string]any{
			"total":       sessStats.Total,
			"active":      sessStats.Total,
			"expired":     0,
			"uniqueUsers": sessStats.UniqueUsers,
		},
	})
}

type wolRequest struct {
	MAC         string `json:"mac"`
	BroadcastIP string `json:"broadcastIp"`
	Port        int    `json:"port"`
}

func (h *handlers) wol(w http.ResponseWriter, r *http.Request) {
	var req wolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body", "details": err.Error()})
		return
	}

	if err := wol.Send(req.MAC, req.BroadcastIP, req.Port); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"error": "failed to send magic packet", "details": err.Error()})
		return
	}

	target := req.BroadcastIP
	if target == "" {
		target = "255.255.255.255"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"mac":     req.MAC,
		"target":  target,
	})
}
