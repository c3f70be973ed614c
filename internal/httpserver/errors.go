package httpserver

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/digitclash/server/internal/game"
)

// writeErr maps rule violations onto HTTP statuses. Game errors carry a
// short wire code plus a readable message; anything else is an opaque 500.
func writeErr(w http.ResponseWriter, err error) {
	var ge *game.Error
	if errors.As(err, &ge) {
		http.Error(w, `{"error":"`+ge.Code+`","message":"`+ge.Reason+`"}`, statusFor(ge.Kind))
		return
	}
	log.Error().Err(err).Msg("internal error")
	http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
}

// statusFor picks the status code for an error kind. Invalid state and
// conflicts both land on 409: the request was well-formed but the room
// cannot take it right now.
func statusFor(k game.Kind) int {
	switch k {
	case game.KindNotFound:
		return http.StatusNotFound
	case game.KindInvalidInput:
		return http.StatusBadRequest
	case game.KindForbidden:
		return http.StatusForbidden
	case game.KindInvalidState, game.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
