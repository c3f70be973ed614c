// internal/httpserver/play.go
//
// In-room play handlers: committing a secret and submitting a guess.
// Both require a seat token; the token's player id is the actor, never
// anything in the body.

package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/digitclash/server/internal/events"
)

// setSecretReq/Res payloads for POST /rooms/{code}/secret.
type setSecretReq struct {
	Secret string `json:"secret"`
}
type setSecretRes struct {
	Room events.Snapshot `json:"room"`
}

// handleSetSecret commits the caller's secret. The response snapshot shows
// whether the game started (phase flips to active once all secrets are in).
func (s *Server) handleSetSecret(w http.ResponseWriter, r *http.Request) {
	var req setSecretReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	claims := seatFrom(r.Context())

	snap, err := s.sessions.SetSecret(r.Context(), chi.URLParam(r, "code"), claims.PlayerID, req.Secret)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(setSecretRes{Room: snap})
}

// guessReq/Res payloads for POST /rooms/{code}/guess.
//
// targetId may be omitted in a two-player room. seq, when set, must equal
// the room's next sequence number: a client that resubmits after a lost
// response gets a stale_sequence conflict instead of a double-scored
// guess.
type guessReq struct {
	Guess    string `json:"guess"`
	TargetID string `json:"targetId"`
	Seq      int    `json:"seq"`
}
type guessRes struct {
	Result events.MoveResult `json:"result"`
	Room   events.Snapshot   `json:"room"`
}

// handleGuess validates and applies one guess.
func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req guessReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	claims := seatFrom(r.Context())

	out, err := s.sessions.SubmitGuess(r.Context(), chi.URLParam(r, "code"), claims.PlayerID, req.TargetID, req.Guess, req.Seq)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(guessRes{Result: out.Result, Room: out.Snapshot})
}
