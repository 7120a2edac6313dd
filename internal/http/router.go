package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"speech-translate-relay/internal/language"
	"speech-translate-relay/internal/observability"
	"speech-translate-relay/internal/service/relay"
)

// Relay serves one upgraded browser connection until it ends.
type Relay interface {
	Serve(ctx context.Context, conn relay.Conn) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers connect from the UI origin, which is not served here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(rl Relay) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.RequestLogger())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.Get("/api/languages", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, language.Names())
	})

	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			log.Warn().Err(err).Str("remoteAddr", r.RemoteAddr).Msg("WebSocket upgrade failed")
			return
		}
		if err := rl.Serve(r.Context(), conn); err != nil {
			log.Error().Err(err).Msg("Relay connection failed")
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
