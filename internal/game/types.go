// internal/game/types.go
//
// Core type definitions for the digit-overlap game engine.
// Defines:
//   - Phase: lifecycle stage of a room (waiting/setting-secret/active/finished).
//   - Player: one seat in a room, keyed by id with a stable join-order slot.
//   - GuessEvent: one committed guess with its hit count and sequence number.
//   - Room: authoritative state for a single session, guarded by its own lock.

package game

import (
	"sync"
	"time"
)

// Phase is the lifecycle stage of a room.
type Phase string

// FinishReason says how a finished room ended.
type FinishReason string

const (
	// FinishVictory: a full-hit guess left one player standing.
	FinishVictory FinishReason = "victory"
	// FinishForfeit: the last opposition left or timed out.
	FinishForfeit FinishReason = "forfeit"
	// FinishAbandoned: everyone forfeited, nobody won.
	FinishAbandoned FinishReason = "abandoned"
)

const (
	// PhaseWaiting: seats are open, no secrets accepted yet.
	PhaseWaiting Phase = "waiting"
	// PhaseSettingSecret: roster is locked, players are committing secrets.
	PhaseSettingSecret Phase = "setting-secret"
	// PhaseActive: all secrets are in, guesses rotate by slot.
	PhaseActive Phase = "active"
	// PhaseFinished: a winner is decided (or the room was abandoned).
	PhaseFinished Phase = "finished"
)

// Player is one seat in a room. Slot is the join order and never changes
// once the game has started; turn rotation walks slots modulo the roster.
type Player struct {
	ID   string
	Name string
	// Avatar is an opaque cosmetic chosen by the client. It rides along in
	// views but is never persisted.
	Avatar     string
	Slot       int
	Secret     string
	SecretSet  bool
	Eliminated bool
	Connected  bool
	LastSeen   time.Time
}

// Alive reports whether the player still takes turns. Presence does not
// factor in: a disconnected player stays in rotation until the sweep
// forfeits them.
func (p *Player) Alive() bool { return !p.Eliminated }

// GuessEvent is one committed guess. Seq starts at 1 and increases by one
// per event within a room; the full ordered slice replays to the room's
// current state.
type GuessEvent struct {
	Seq        int       `json:"seq"`
	GuesserID  string    `json:"guesserId"`
	TargetID   string    `json:"targetId"`
	Guess      string    `json:"guess"`
	Hits       int       `json:"hits"`
	Crack      bool      `json:"crack"`
	Eliminated bool      `json:"eliminated"`
	At         time.Time `json:"at"`
}

// Room holds the authoritative state of a single session. Callers take the
// embedded lock for the duration of any read or mutation; the state-machine
// methods in room.go document which lock they expect.
type Room struct {
	sync.RWMutex

	Code       string
	Mode       int // secret/guess length, 1..4
	MaxPlayers int
	Phase      Phase
	Players    []*Player
	TurnSlot   int
	Events     []GuessEvent
	WinnerID   string
	EndReason  FinishReason

	// PasswordHash is non-nil for private rooms (bcrypt).
	PasswordHash []byte

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	// Touched is bumped on every accepted operation; the janitor uses it
	// for idle expiry.
	Touched time.Time
}

// Private reports whether joining requires a password.
func (r *Room) Private() bool { return len(r.PasswordHash) > 0 }

// PlayerByID returns the seat with the given id, or nil.
// Callers hold at least the read lock.
func (r *Room) PlayerByID(id string) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// PlayerBySlot returns the seat at the given slot, or nil.
// Callers hold at least the read lock.
func (r *Room) PlayerBySlot(slot int) *Player {
	for _, p := range r.Players {
		if p.Slot == slot {
			return p
		}
	}
	return nil
}

// AliveCount counts players still in rotation.
// Callers hold at least the read lock.
func (r *Room) AliveCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Alive() {
			n++
		}
	}
	return n
}

// NextSeq is the sequence number the next accepted guess will carry.
// Callers hold at least the read lock.
func (r *Room) NextSeq() int { return len(r.Events) + 1 }
