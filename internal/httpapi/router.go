// Package httpapi is the HTTP surface: GET /, GET /status, POST /wol, and
// the WebSocket upgrade endpoint, routed with gorilla/mux.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"relayhub/internal/logging"
	"relayhub/internal/relay"
)

// NewRouter builds the mux.Router for the relay's HTTP+WS surface.
func NewRouter(server *relay.Server, log *logging.Logger) *mux.Router {
	h := &handlers{server: server, log: log}

	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/", h.root).Methods("GET", "OPTIONS")
	r.HandleFunc("/status", h.status).Methods("GET", "OPTIONS")
	r.HandleFunc("/wol", h.wol).Methods("POST", "OPTIONS")
	r.HandleFunc("/ws", server.HandleWS)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corsHeaders(w)
		http.Error(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corsHeaders(w)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	return r
}

func corsHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corsHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
