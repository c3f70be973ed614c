package game

// Kind classifies a rule violation so transport bindings can map it to a
// status code without inspecting individual sentinels.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindInvalidInput Kind = "invalid_input"
	KindForbidden    Kind = "forbidden"
	KindConflict     Kind = "conflict"
)

// Error is a rule violation with a machine-checkable kind, a short wire
// code, and a human-readable reason. All game and session operations fail
// with one of the sentinels below so callers can use errors.Is.
type Error struct {
	Kind   Kind
	Code   string
	Reason string
}

func (e *Error) Error() string { return e.Reason }

// Is matches two *Error values by kind and code, so sentinels survive
// being passed through fmt.Errorf("%w", ...).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

var (
	ErrRoomNotFound        = &Error{KindNotFound, "room_not_found", "room not found"}
	ErrRoomFull            = &Error{KindConflict, "room_full", "room is full"}
	ErrGameAlreadyStarted  = &Error{KindConflict, "game_already_started", "game already started"}
	ErrInvalidDigitMode    = &Error{KindInvalidInput, "invalid_mode", "digit mode must be between 1 and 4"}
	ErrInvalidMaxPlayers   = &Error{KindInvalidInput, "invalid_max_players", "max players must be between 2 and 4"}
	ErrInvalidPlayerName   = &Error{KindInvalidInput, "invalid_name", "player name is required"}
	ErrInvalidSecretFormat = &Error{KindInvalidInput, "invalid_secret", "secret must be distinct digits of the room's length"}
	ErrInvalidGuessFormat  = &Error{KindInvalidInput, "invalid_guess", "guess must be distinct digits of the room's length"}
	ErrSecretAlreadySet    = &Error{KindConflict, "secret_already_set", "secret already set"}
	ErrSecretsNotOpen      = &Error{KindInvalidState, "secrets_not_open", "room is not accepting secrets"}
	ErrGameNotActive       = &Error{KindInvalidState, "game_not_active", "game is not active"}
	ErrNotYourTurn         = &Error{KindForbidden, "not_your_turn", "not your turn"}
	ErrInvalidTargetPlayer = &Error{KindInvalidInput, "invalid_target", "invalid target player"}
	ErrStaleSequence       = &Error{KindConflict, "stale_sequence", "guess sequence already applied"}
	ErrGameNotFinished     = &Error{KindInvalidState, "game_not_finished", "game not finished"}
	ErrPlayerNotFound      = &Error{KindNotFound, "player_not_found", "player not found"}
	ErrRequesterIsWinner   = &Error{KindForbidden, "winner_keeps_secret", "winner may not request the reveal"}
	ErrWrongPassword       = &Error{KindForbidden, "wrong_password", "wrong room password"}
	ErrInvalidPassword     = &Error{KindInvalidInput, "invalid_password", "room password not usable"}
	ErrNoWinner            = &Error{KindInvalidState, "no_winner", "room finished without a winner"}
	ErrReplayMismatch      = &Error{KindInvalidInput, "replay_mismatch", "event log does not replay"}
)
