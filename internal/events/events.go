// internal/events/events.go
//
// Wire vocabulary for session synchronization. Every frame a client sees,
// whether over the SSE stream, the poll endpoint, or the NATS bridge, is
// one Envelope with a fixed event name and a typed payload from this
// package. Builders here are the only place room state is converted to
// its public view, so secrets cannot leak through a forgotten field.
//
// Event names:
//   - room-state:  full snapshot, sent on subscribe and roster changes.
//   - move-result: one committed guess with its hit count.
//   - game-start:  all secrets in, first turn assigned.
//   - game-end:    winner decided (or room abandoned).
//   - room-list:   lobby listing of joinable rooms.
//   - error:       stream-level failure notice.

package events

import (
	"time"

	"github.com/digitclash/server/internal/game"
)

const (
	EventRoomState  = "room-state"
	EventMoveResult = "move-result"
	EventGameStart  = "game-start"
	EventGameEnd    = "game-end"
	EventRoomList   = "room-list"
	EventError      = "error"
)

// Envelope is the single frame type for all synchronization channels.
// Seq carries the room's guess sequence when the payload relates to one.
type Envelope struct {
	Event string    `json:"event"`
	Room  string    `json:"room,omitempty"`
	Seq   int       `json:"seq,omitempty"`
	At    time.Time `json:"at"`
	Data  any       `json:"data"`
}

// PlayerView is the public projection of a seat. You is set only in
// snapshots rendered for an authenticated viewer.
type PlayerView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar,omitempty"`
	Slot       int    `json:"slot"`
	Connected  bool   `json:"connected"`
	Eliminated bool   `json:"eliminated"`
	SecretSet  bool   `json:"secretSet"`
	You        bool   `json:"you,omitempty"`
}

// Snapshot is the full resync payload. Guess history is public (guesses
// and hit counts are visible to everyone at the table); secrets never
// appear here. PollIntervalMs hints how soon a polling client should ask
// again, keyed off the phase.
type Snapshot struct {
	Code           string            `json:"code"`
	Mode           int               `json:"mode"`
	MaxPlayers     int               `json:"maxPlayers"`
	Phase          game.Phase        `json:"phase"`
	Private        bool              `json:"private"`
	Players        []PlayerView      `json:"players"`
	TurnSlot       int               `json:"turnSlot"`
	TurnPlayerID   string            `json:"turnPlayerId,omitempty"`
	NextSeq        int               `json:"nextSeq"`
	Events         []game.GuessEvent `json:"events"`
	WinnerID       string            `json:"winnerId,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	PollIntervalMs int               `json:"pollIntervalMs"`
}

// MoveResult is the incremental payload for one committed guess.
type MoveResult struct {
	game.GuessEvent
	Phase        game.Phase `json:"phase"`
	TurnSlot     int        `json:"turnSlot"`
	TurnPlayerID string     `json:"turnPlayerId,omitempty"`
}

// GameStart announces the waiting/setting-secret to active transition.
type GameStart struct {
	Code         string    `json:"code"`
	TurnSlot     int       `json:"turnSlot"`
	TurnPlayerID string    `json:"turnPlayerId"`
	StartedAt    time.Time `json:"startedAt"`
}

// GameEnd announces the finish. Reason is "victory" when a guess decided
// it, "forfeit" when the last opponent left or timed out, "abandoned"
// when nobody remained to win.
type GameEnd struct {
	Code       string    `json:"code"`
	WinnerID   string    `json:"winnerId,omitempty"`
	WinnerName string    `json:"winnerName,omitempty"`
	Reason     string    `json:"reason"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Reveal is the post-game disclosure payload: the winner's still-uncracked
// secret, shown to losing participants once the room is finished. The
// guard that decides who may see it lives in the session layer; this is
// only the shape.
type Reveal struct {
	Code         string    `json:"code"`
	WinnerID     string    `json:"winnerId"`
	WinnerName   string    `json:"winnerName"`
	WinnerSecret string    `json:"winnerSecret"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// RoomSummary is one lobby listing entry. Host is the slot-0 seat.
type RoomSummary struct {
	Code       string     `json:"code"`
	HostName   string     `json:"hostName,omitempty"`
	HostAvatar string     `json:"hostAvatar,omitempty"`
	Mode       int        `json:"mode"`
	Phase      game.Phase `json:"phase"`
	Players    int        `json:"players"`
	MaxPlayers int        `json:"maxPlayers"`
	Private    bool       `json:"private"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// RoomList is the lobby payload: rooms a new player could still join.
type RoomList struct {
	Rooms []RoomSummary `json:"rooms"`
}

// StreamError is the payload of an error frame.
type StreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Poll interval hints by phase, in milliseconds. Active games poll fast,
// idle lobbies slowly, finished rooms barely at all.
const (
	pollActiveMs   = 1000
	pollWaitingMs  = 3000
	pollFinishedMs = 10000
)

func pollInterval(phase game.Phase) int {
	switch phase {
	case game.PhaseActive:
		return pollActiveMs
	case game.PhaseFinished:
		return pollFinishedMs
	default:
		return pollWaitingMs
	}
}

// NewEnvelope wraps a payload in the common frame.
func NewEnvelope(event, room string, at time.Time, data any) Envelope {
	return Envelope{Event: event, Room: room, At: at, Data: data}
}

// SnapshotFromRoom renders the public view of a room. viewerID may be
// empty for anonymous snapshots; when it matches a seat that entry gets
// the You flag. Callers hold at least the room's read lock.
func SnapshotFromRoom(r *game.Room, viewerID string) Snapshot {
	snap := Snapshot{
		Code:           r.Code,
		Mode:           r.Mode,
		MaxPlayers:     r.MaxPlayers,
		Phase:          r.Phase,
		Private:        r.Private(),
		Players:        make([]PlayerView, 0, len(r.Players)),
		TurnSlot:       r.TurnSlot,
		NextSeq:        r.NextSeq(),
		Events:         append([]game.GuessEvent(nil), r.Events...),
		WinnerID:       r.WinnerID,
		CreatedAt:      r.CreatedAt,
		PollIntervalMs: pollInterval(r.Phase),
	}
	for _, p := range r.Players {
		snap.Players = append(snap.Players, PlayerView{
			ID:         p.ID,
			Name:       p.Name,
			Avatar:     p.Avatar,
			Slot:       p.Slot,
			Connected:  p.Connected,
			Eliminated: p.Eliminated,
			SecretSet:  p.SecretSet,
			You:        viewerID != "" && p.ID == viewerID,
		})
	}
	if r.Phase == game.PhaseActive {
		if turn := r.PlayerBySlot(r.TurnSlot); turn != nil {
			snap.TurnPlayerID = turn.ID
		}
	}
	return snap
}

// SummaryFromRoom renders the lobby listing entry for a room.
// Callers hold at least the room's read lock.
func SummaryFromRoom(r *game.Room) RoomSummary {
	s := RoomSummary{
		Code:       r.Code,
		Mode:       r.Mode,
		Phase:      r.Phase,
		Players:    len(r.Players),
		MaxPlayers: r.MaxPlayers,
		Private:    r.Private(),
		CreatedAt:  r.CreatedAt,
	}
	if host := r.PlayerBySlot(0); host != nil {
		s.HostName = host.Name
		s.HostAvatar = host.Avatar
	}
	return s
}

// GameEndFromRoom renders the finish announcement for a finished room.
// Callers hold at least the room's read lock.
func GameEndFromRoom(r *game.Room) GameEnd {
	ge := GameEnd{
		Code:       r.Code,
		WinnerID:   r.WinnerID,
		Reason:     string(r.EndReason),
		FinishedAt: r.FinishedAt,
	}
	if w := r.PlayerByID(r.WinnerID); w != nil {
		ge.WinnerName = w.Name
	}
	return ge
}

// MoveResultFromEvent pairs a committed guess with the room's post-move
// turn state. Callers hold at least the room's read lock.
func MoveResultFromEvent(r *game.Room, ev game.GuessEvent) MoveResult {
	mr := MoveResult{
		GuessEvent: ev,
		Phase:      r.Phase,
		TurnSlot:   r.TurnSlot,
	}
	if r.Phase == game.PhaseActive {
		if turn := r.PlayerBySlot(r.TurnSlot); turn != nil {
			mr.TurnPlayerID = turn.ID
		}
	}
	return mr
}
