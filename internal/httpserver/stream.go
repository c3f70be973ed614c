// internal/httpserver/stream.go
//
// Server-sent event streams. A room stream opens with a full room-state
// frame, then relays every envelope the hub publishes for that room; the
// lobby stream does the same with the room listing. Clients that fall
// behind the hub's buffer miss frames by design and resync from the
// snapshot endpoint.

package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/digitclash/server/internal/events"
	"github.com/digitclash/server/internal/hub"
)

// pingInterval keeps idle SSE connections alive through proxies.
const pingInterval = 15 * time.Second

// handleRoomEvents streams one room's envelopes. Spectators may attach;
// a seat token additionally counts the connection as presence.
func (s *Server) handleRoomEvents(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	viewerID := ""
	if claims := seatFrom(r.Context()); claims != nil {
		viewerID = claims.PlayerID
	}

	snap, err := s.sessions.Snapshot(r.Context(), code, viewerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if viewerID != "" {
		if err := s.sessions.Heartbeat(r.Context(), code, viewerID); err != nil {
			viewerID = ""
		}
	}

	fl, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming_unsupported"}`, http.StatusInternalServerError)
		return
	}
	setStreamHeaders(w)

	sub := s.hub.Subscribe(code)
	defer s.hub.Unsubscribe(sub)

	// Opening frame: the subscriber's own resync point.
	writeFrame(w, events.NewEnvelope(events.EventRoomState, code, time.Now(), snap))
	fl.Flush()

	log.Info().Str("room", code).Str("viewer", viewerID).Msg("sse: room stream opened")
	s.streamLoop(w, r, fl, sub, code, viewerID)
}

// handleLobbyEvents streams room-list updates for the lobby screen.
func (s *Server) handleLobbyEvents(w http.ResponseWriter, r *http.Request) {
	list, err := s.sessions.ListRooms(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	fl, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming_unsupported"}`, http.StatusInternalServerError)
		return
	}
	setStreamHeaders(w)

	sub := s.hub.Subscribe(hub.TopicLobby)
	defer s.hub.Unsubscribe(sub)

	writeFrame(w, events.NewEnvelope(events.EventRoomList, "", time.Now(), list))
	fl.Flush()

	s.streamLoop(w, r, fl, sub, hub.TopicLobby, "")
}

// streamLoop relays hub frames until the client goes away. A seat holder
// gets their presence refreshed on every ping tick, so an open stream is
// enough to stay out of the janitor's reach.
func (s *Server) streamLoop(w http.ResponseWriter, r *http.Request, fl http.Flusher, sub *hub.Subscriber, topic, viewerID string) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Info().Str("topic", topic).Str("viewer", viewerID).Msg("sse: stream closed")
			return
		case env := <-sub.C():
			writeFrame(w, env)
			fl.Flush()
		case <-ping.C:
			if viewerID != "" {
				_ = s.sessions.Heartbeat(r.Context(), topic, viewerID)
			}
			fmt.Fprint(w, ": ping\n\n")
			fl.Flush()
		}
	}
}

// setStreamHeaders puts the response into SSE mode.
func setStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable buffering in nginx/proxies
}

// writeFrame serializes one envelope in SSE wire format. A payload that
// cannot marshal is reported on the stream instead of silently dropped.
func writeFrame(w http.ResponseWriter, env events.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("event", env.Event).Msg("sse: marshal frame")
		fmt.Fprintf(w, "event: %s\ndata: {\"error\":\"encode_failed\"}\n\n", events.EventError)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Event, b)
}
