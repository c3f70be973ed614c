// internal/game/room.go
//
// Room state machine for a single session.
// Responsibilities:
//   - Seat players while waiting; lock the roster when the room fills.
//   - Collect one secret per player, then start the game.
//   - Validate and apply guesses: turn ownership, target selection,
//     duplicate-submit detection via sequence numbers.
//   - Track eliminations (cracked secrets and forfeits) and decide the
//     winner when one player remains.
//
// Phase transitions:
//   waiting -> setting-secret   roster reaches MaxPlayers
//   setting-secret -> waiting   a seat frees before the game starts
//   setting-secret -> active    every seated player has committed a secret
//   active -> finished          one player left standing, or all forfeit
//
// Locking: none of these methods lock the room themselves. Callers hold
// the write lock for mutations and at least the read lock for reads; the
// session layer owns that discipline.

package game

import (
	"strings"
	"time"
)

const (
	// MinSeats and MaxSeats bound the roster size a room may be created
	// with. DefaultSeats is used when the creator does not ask for more.
	MinSeats     = 2
	MaxSeats     = 4
	DefaultSeats = 2
)

// NewRoom builds an empty room in the waiting phase. passwordHash may be
// nil for a public room.
func NewRoom(code string, mode, maxPlayers int, passwordHash []byte, now time.Time) (*Room, error) {
	if mode < MinMode || mode > MaxMode {
		return nil, ErrInvalidDigitMode
	}
	if maxPlayers == 0 {
		maxPlayers = DefaultSeats
	}
	if maxPlayers < MinSeats || maxPlayers > MaxSeats {
		return nil, ErrInvalidMaxPlayers
	}
	return &Room{
		Code:         code,
		Mode:         mode,
		MaxPlayers:   maxPlayers,
		Phase:        PhaseWaiting,
		Players:      []*Player{},
		Events:       []GuessEvent{},
		PasswordHash: passwordHash,
		CreatedAt:    now,
		Touched:      now,
	}, nil
}

// Join seats a new player. The id is assigned by the caller and must be
// unique within the room. Filling the last seat moves the room to the
// setting-secret phase. Callers hold the write lock.
func (r *Room) Join(id, name, avatar string, now time.Time) (*Player, error) {
	if r.Phase != PhaseWaiting {
		return nil, ErrGameAlreadyStarted
	}
	if len(r.Players) >= r.MaxPlayers {
		return nil, ErrRoomFull
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidPlayerName
	}
	p := &Player{
		ID:        id,
		Name:      name,
		Avatar:    strings.TrimSpace(avatar),
		Slot:      len(r.Players),
		Connected: true,
		LastSeen:  now,
	}
	r.Players = append(r.Players, p)
	if len(r.Players) == r.MaxPlayers {
		r.Phase = PhaseSettingSecret
	}
	r.Touched = now
	return p, nil
}

// SetSecret commits a player's secret. The last secret in starts the game:
// phase flips to active and the turn goes to the lowest live slot.
// Callers hold the write lock.
func (r *Room) SetSecret(playerID, secret string, now time.Time) error {
	if r.Phase != PhaseSettingSecret {
		return ErrSecretsNotOpen
	}
	p := r.PlayerByID(playerID)
	if p == nil {
		return ErrPlayerNotFound
	}
	if p.SecretSet {
		return ErrSecretAlreadySet
	}
	if !ValidateSecret(secret, r.Mode) {
		return ErrInvalidSecretFormat
	}
	p.Secret = secret
	p.SecretSet = true
	p.LastSeen = now
	r.Touched = now

	for _, q := range r.Players {
		if !q.SecretSet {
			return nil
		}
	}
	r.start(now)
	return nil
}

// start flips the room to active. Callers hold the write lock and have
// verified every seat has a secret.
func (r *Room) start(now time.Time) {
	r.Phase = PhaseActive
	r.StartedAt = now
	r.TurnSlot = 0
	if p := r.PlayerBySlot(0); p == nil || p.Eliminated {
		r.advanceTurn()
	}
}

// ApplyGuess validates and applies one guess, returning the committed
// event. Callers hold the write lock.
//
// Validation order matters for error reporting: phase, sequence, turn
// ownership, target, then guess format. expectSeq > 0 asks the room to
// reject the guess unless it would be committed with exactly that
// sequence number; retries of an already-applied submit fail with
// ErrStaleSequence instead of being scored twice.
//
// On a full hit the target is eliminated and the guesser keeps the turn;
// otherwise the turn advances to the next live slot. When one live player
// remains the room finishes and that player wins.
func (r *Room) ApplyGuess(playerID, targetID, guess string, expectSeq int, now time.Time) (GuessEvent, error) {
	if r.Phase != PhaseActive {
		return GuessEvent{}, ErrGameNotActive
	}
	if expectSeq > 0 && expectSeq != r.NextSeq() {
		return GuessEvent{}, ErrStaleSequence
	}
	guesser := r.PlayerByID(playerID)
	if guesser == nil {
		return GuessEvent{}, ErrPlayerNotFound
	}
	if guesser.Eliminated || guesser.Slot != r.TurnSlot {
		return GuessEvent{}, ErrNotYourTurn
	}
	target, err := r.resolveTarget(guesser, targetID)
	if err != nil {
		return GuessEvent{}, err
	}
	if !ValidateSecret(guess, r.Mode) {
		return GuessEvent{}, ErrInvalidGuessFormat
	}

	hits := Evaluate(target.Secret, guess)
	ev := GuessEvent{
		Seq:       r.NextSeq(),
		GuesserID: guesser.ID,
		TargetID:  target.ID,
		Guess:     guess,
		Hits:      hits,
		Crack:     hits == r.Mode,
		At:        now,
	}
	if ev.Crack {
		target.Eliminated = true
		ev.Eliminated = true
	}
	r.Events = append(r.Events, ev)
	guesser.LastSeen = now
	r.Touched = now

	if r.AliveCount() <= 1 {
		r.finish(guesser.ID, FinishVictory, now)
	} else if !ev.Crack {
		r.advanceTurn()
	}
	return ev, nil
}

// resolveTarget picks the seat a guess is aimed at. An empty targetID is
// allowed only when exactly one live opponent exists (the two-player
// case); otherwise the id must name a live opponent.
func (r *Room) resolveTarget(guesser *Player, targetID string) (*Player, error) {
	if targetID == "" {
		var only *Player
		for _, p := range r.Players {
			if p.ID == guesser.ID || p.Eliminated {
				continue
			}
			if only != nil {
				return nil, ErrInvalidTargetPlayer
			}
			only = p
		}
		if only == nil {
			return nil, ErrInvalidTargetPlayer
		}
		return only, nil
	}
	target := r.PlayerByID(targetID)
	if target == nil || target.ID == guesser.ID || target.Eliminated {
		return nil, ErrInvalidTargetPlayer
	}
	return target, nil
}

// advanceTurn moves the turn to the next live slot after the current one,
// wrapping around the roster. Callers hold the write lock.
func (r *Room) advanceTurn() {
	n := len(r.Players)
	for i := 1; i <= n; i++ {
		s := (r.TurnSlot + i) % n
		if p := r.PlayerBySlot(s); p != nil && !p.Eliminated {
			r.TurnSlot = s
			return
		}
	}
}

// finish closes the room. winnerID may be empty when everyone forfeited.
func (r *Room) finish(winnerID string, reason FinishReason, now time.Time) {
	r.Phase = PhaseFinished
	r.WinnerID = winnerID
	r.EndReason = reason
	r.FinishedAt = now
}

// Leave removes or forfeits a player depending on phase.
//
// Before the game starts the seat is freed, later slots shift down, and a
// previously full room reopens to waiting. Once active, leaving is a
// forfeit: the player is eliminated in place and the turn moves on if it
// was theirs. Leaving a finished room only clears the connected flag.
// Callers hold the write lock.
func (r *Room) Leave(playerID string, now time.Time) error {
	p := r.PlayerByID(playerID)
	if p == nil {
		return ErrPlayerNotFound
	}
	r.Touched = now
	switch r.Phase {
	case PhaseWaiting, PhaseSettingSecret:
		r.removeSeat(p)
		r.Phase = PhaseWaiting
	case PhaseActive:
		r.forfeit(p, now)
	default:
		p.Connected = false
	}
	return nil
}

// removeSeat drops a pre-start seat and compacts the slots above it.
func (r *Room) removeSeat(p *Player) {
	out := r.Players[:0]
	for _, q := range r.Players {
		if q.ID == p.ID {
			continue
		}
		if q.Slot > p.Slot {
			q.Slot--
		}
		out = append(out, q)
	}
	r.Players = out
}

// forfeit eliminates an active-phase player without a guess event and
// settles the consequences: turn advance, and finishing the room when at
// most one live player remains.
func (r *Room) forfeit(p *Player, now time.Time) {
	p.Eliminated = true
	p.Connected = false
	switch r.AliveCount() {
	case 1:
		for _, q := range r.Players {
			if !q.Eliminated {
				r.finish(q.ID, FinishForfeit, now)
				return
			}
		}
	case 0:
		r.finish("", FinishAbandoned, now)
	default:
		if r.TurnSlot == p.Slot {
			r.advanceTurn()
		}
	}
}

// Heartbeat refreshes a player's presence. Callers hold the write lock.
func (r *Room) Heartbeat(playerID string, now time.Time) error {
	p := r.PlayerByID(playerID)
	if p == nil {
		return ErrPlayerNotFound
	}
	p.Connected = true
	p.LastSeen = now
	r.Touched = now
	return nil
}

// SweepResult reports what a presence sweep changed.
type SweepResult struct {
	Removed   []*Player // pre-start seats dropped for silence
	Forfeited []*Player // active players forfeited for silence
	Finished  bool      // the sweep ended the game
}

// Sweep expires players whose last heartbeat is older than grace. Seats
// are freed before the game starts, forfeited during it. Finished rooms
// are left alone. Callers hold the write lock.
func (r *Room) Sweep(now time.Time, grace time.Duration) SweepResult {
	var res SweepResult
	if r.Phase == PhaseFinished {
		return res
	}
	var overdue []*Player
	for _, p := range r.Players {
		if p.Eliminated {
			continue
		}
		if now.Sub(p.LastSeen) > grace {
			p.Connected = false
			overdue = append(overdue, p)
		}
	}
	if len(overdue) == 0 {
		return res
	}
	r.Touched = now
	switch r.Phase {
	case PhaseWaiting, PhaseSettingSecret:
		for _, p := range overdue {
			r.removeSeat(p)
		}
		r.Phase = PhaseWaiting
		res.Removed = overdue
	case PhaseActive:
		// When every live player is overdue at once nobody wins; don't
		// let roster order crown the last one forfeited.
		if len(overdue) >= r.AliveCount() {
			for _, p := range overdue {
				p.Eliminated = true
			}
			r.finish("", FinishAbandoned, now)
			res.Forfeited = overdue
			res.Finished = true
			break
		}
		for _, p := range overdue {
			if r.Phase != PhaseActive {
				break
			}
			r.forfeit(p, now)
			res.Forfeited = append(res.Forfeited, p)
		}
		res.Finished = r.Phase == PhaseFinished
	}
	return res
}
