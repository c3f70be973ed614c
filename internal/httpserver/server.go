// internal/httpserver/server.go
//
// HTTP wiring for the digit-overlap session server.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", room listing, recent matches.
//   - Room lifecycle: POST /rooms, POST /rooms/{code}/join.
//   - In-room play (seat token required): secret, guess, leave, heartbeat,
//     reveal.
//   - Synchronization: GET /rooms/{code}/snapshot for polling clients,
//     GET /rooms/{code}/events and GET /lobby/events for SSE push.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so seat cookies work).
//   - The streaming routes sit outside the request timeout group; an SSE
//     connection is supposed to outlive any sane timeout.

package httpserver

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/digitclash/server/internal/archive"
	"github.com/digitclash/server/internal/hub"
	"github.com/digitclash/server/internal/session"
)

// Server bundles router, session service, event hub, and match archive.
type Server struct {
	r        *chi.Mux
	sessions *session.Service
	hub      *hub.Hub
	archive  *archive.Store
}

// New constructs a Server, installs middleware, and registers routes.
// archive may be nil when match history is disabled.
func New(svc *session.Service, h *hub.Hub, arch *archive.Store) *Server {
	s := &Server{r: chi.NewRouter(), sessions: svc, hub: h, archive: arch}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer) // recover from panics
	s.r.Use(corsFromEnv)     // credentials-friendly CORS

	// --- request/response API (bounded handler time) ---
	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second))
		r.Use(jsonContentType)

		// diagnostics
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"service":"digitclash","endpoints":["/health","POST /rooms","GET /rooms","POST /rooms/{code}/join","GET /rooms/{code}/events","GET /lobby/events","GET /matches/recent"]}`))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		})

		// lobby
		r.Post("/rooms", s.handleCreateRoom)
		r.Get("/rooms", s.handleListRooms)
		r.Post("/rooms/{code}/join", s.handleJoinRoom)
		r.Get("/matches/recent", s.handleRecentMatches)

		// polling resync; spectators welcome, seats get their You flag
		r.With(s.optionalSeat()).Get("/rooms/{code}/snapshot", s.handleSnapshot)

		// in-room play, seat token required
		r.With(s.requireSeat()).Post("/rooms/{code}/secret", s.handleSetSecret)
		r.With(s.requireSeat()).Post("/rooms/{code}/guess", s.handleGuess)
		r.With(s.requireSeat()).Post("/rooms/{code}/leave", s.handleLeave)
		r.With(s.requireSeat()).Post("/rooms/{code}/heartbeat", s.handleHeartbeat)
		r.With(s.requireSeat()).Get("/rooms/{code}/reveal", s.handleReveal)
	})

	// --- streaming (no timeout middleware) ---
	s.r.Group(func(r chi.Router) {
		r.With(s.optionalSeat()).Get("/rooms/{code}/events", s.handleRoomEvents)
		r.Get("/lobby/events", s.handleLobbyEvents)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// corsFromEnv enables credentialed CORS for a single origin.
// Uses CLIENT_ORIGIN env var; defaults to http://localhost:5173.
func corsFromEnv(next http.Handler) http.Handler {
	origin := os.Getenv("CLIENT_ORIGIN")
	if origin == "" {
		origin = "http://localhost:5173"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------- small util --------------------------------

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
