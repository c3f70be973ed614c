// internal/httpserver/rooms.go
//
// Room lifecycle and lobby handlers: create, join, list, leave,
// heartbeat, the post-game reveal, and the archived match listing.

package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/digitclash/server/internal/archive"
	"github.com/digitclash/server/internal/events"
	"github.com/digitclash/server/internal/session"
)

// defaultMode is the secret length used when a creator does not pick one.
const defaultMode = 4

// seatGrant is the identity block returned whenever a seat is taken.
type seatGrant struct {
	PlayerID  string    `json:"playerId"`
	Slot      int       `json:"slot"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// createRoomReq/Res payloads for POST /rooms.
type createRoomReq struct {
	Mode       int    `json:"mode"`       // secret length, 1-4; defaults to 4
	MaxPlayers int    `json:"maxPlayers"` // 2-4; defaults to 2
	Password   string `json:"password"`   // optional, makes the room private
	HostName   string `json:"hostName"`   // optional, seats the creator
	HostAvatar string `json:"hostAvatar"` // optional cosmetic for the host seat
}
type createRoomRes struct {
	Room events.Snapshot `json:"room"`
	Host *seatGrant      `json:"host,omitempty"`
}

// handleCreateRoom registers a room and, when hostName is given, seats the
// creator and mints their seat token in the same call.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomReq
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Mode == 0 {
		req.Mode = defaultMode
	}

	res, err := s.sessions.CreateRoom(r.Context(), session.CreateParams{
		Mode:       req.Mode,
		MaxPlayers: req.MaxPlayers,
		Password:   req.Password,
		HostName:   req.HostName,
		HostAvatar: req.HostAvatar,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	out := createRoomRes{Room: res.Snapshot}
	if res.Host != nil {
		grant, err := s.grantSeat(w, res.Host)
		if err != nil {
			writeErr(w, err)
			return
		}
		out.Room = res.Host.Snapshot
		out.Host = grant
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(out)
}

// joinRoomReq/Res payloads for POST /rooms/{code}/join.
type joinRoomReq struct {
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Password string `json:"password"`
}
type joinRoomRes struct {
	Room events.Snapshot `json:"room"`
	Seat seatGrant       `json:"seat"`
}

// handleJoinRoom seats a player and mints their seat token.
func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	code := chi.URLParam(r, "code")

	claim, err := s.sessions.JoinRoom(r.Context(), code, req.Name, req.Avatar, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	grant, err := s.grantSeat(w, &claim)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(joinRoomRes{Room: claim.Snapshot, Seat: *grant})
}

// grantSeat signs the seat token, mirrors it into the cookie, and builds
// the grant block.
func (s *Server) grantSeat(w http.ResponseWriter, claim *session.SeatClaim) (*seatGrant, error) {
	tok, exp, err := signSeatToken(claim.RoomCode, claim.PlayerID, claim.Slot)
	if err != nil {
		log.Error().Err(err).Str("room", claim.RoomCode).Msg("sign seat token")
		return nil, err
	}
	setSeatCookie(w, tok, exp)
	return &seatGrant{
		PlayerID:  claim.PlayerID,
		Slot:      claim.Slot,
		Token:     tok,
		ExpiresAt: exp,
	}, nil
}

// handleListRooms returns lobby summaries for joinable and running rooms.
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	list, err := s.sessions.ListRooms(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(list)
}

// handleSnapshot returns the room's public view. With a seat token the
// viewer's own entry carries the You flag and the snapshot doubles as a
// heartbeat.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	viewerID := ""
	if claims := seatFrom(r.Context()); claims != nil {
		viewerID = claims.PlayerID
		// Polling is presence; a dedicated heartbeat call is not required.
		if err := s.sessions.Heartbeat(r.Context(), code, viewerID); err != nil {
			viewerID = "" // stale token for a seat that no longer exists
		}
	}
	snap, err := s.sessions.Snapshot(r.Context(), code, viewerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(snap)
}

// handleLeave frees the seat (pre-start) or forfeits (active).
func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	claims := seatFrom(r.Context())
	if err := s.sessions.LeaveRoom(r.Context(), chi.URLParam(r, "code"), claims.PlayerID); err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// handleHeartbeat refreshes the seat's presence window. The response
// carries the server clock so clients can line their timers up with the
// grace window.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	claims := seatFrom(r.Context())
	if err := s.sessions.Heartbeat(r.Context(), chi.URLParam(r, "code"), claims.PlayerID); err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "serverTime": time.Now().UTC()})
}

// handleReveal discloses the winner's secret to a losing participant once
// the game is over.
func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	claims := seatFrom(r.Context())
	rev, err := s.sessions.Reveal(r.Context(), chi.URLParam(r, "code"), claims.PlayerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(rev)
}

// handleRecentMatches lists archived matches, newest first (?limit=N).
func (s *Server) handleRecentMatches(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		_ = json.NewEncoder(w).Encode([]archive.Summary{})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	out, err := s.archive.RecentMatches(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("recent matches")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}
