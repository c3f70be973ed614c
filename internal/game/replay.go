// internal/game/replay.go
//
// Deterministic reconstruction of a room's derived state from its ordered
// guess log. Given the mode, the roster in slot order, and the events, the
// replay walks the same turn and elimination rules as the live room and
// ends with the same phase, turn slot, eliminations, and winner. Secrets
// are not part of the input; recorded hit counts are trusted, structure is
// verified.

package game

// Replay rebuilds derived room state from an event log. roster lists
// player ids in slot order. The log is checked as it is applied: sequence
// numbers must run 1..n, each guesser must own the turn, and each target
// must be a live opponent. Any mismatch fails with ErrReplayMismatch.
func Replay(mode int, roster []string, events []GuessEvent) (*Room, error) {
	if mode < MinMode || mode > MaxMode {
		return nil, ErrInvalidDigitMode
	}
	if len(roster) < MinSeats || len(roster) > MaxSeats {
		return nil, ErrInvalidMaxPlayers
	}
	r := &Room{
		Mode:       mode,
		MaxPlayers: len(roster),
		Phase:      PhaseActive,
		Players:    make([]*Player, 0, len(roster)),
		Events:     make([]GuessEvent, 0, len(events)),
	}
	for slot, id := range roster {
		r.Players = append(r.Players, &Player{ID: id, Slot: slot, SecretSet: true, Connected: true})
	}

	for i, ev := range events {
		if r.Phase != PhaseActive {
			return nil, ErrReplayMismatch
		}
		if ev.Seq != i+1 {
			return nil, ErrReplayMismatch
		}
		guesser := r.PlayerByID(ev.GuesserID)
		if guesser == nil || guesser.Eliminated || guesser.Slot != r.TurnSlot {
			return nil, ErrReplayMismatch
		}
		target := r.PlayerByID(ev.TargetID)
		if target == nil || target.ID == guesser.ID || target.Eliminated {
			return nil, ErrReplayMismatch
		}
		if !ValidateSecret(ev.Guess, mode) || ev.Crack != (ev.Hits == mode) {
			return nil, ErrReplayMismatch
		}
		if ev.Crack {
			target.Eliminated = true
		}
		r.Events = append(r.Events, ev)
		if r.AliveCount() <= 1 {
			r.finish(guesser.ID, FinishVictory, ev.At)
		} else if !ev.Crack {
			r.advanceTurn()
		}
	}
	return r, nil
}
