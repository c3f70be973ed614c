// internal/session/janitor.go
//
// Background presence and expiry sweep. Every JanitorInterval the janitor
// walks the registry: silent players lose their seat (pre-start) or
// forfeit (active), long-idle rooms expire, and finished rooms are
// dropped once their reveal window has passed. Matches ended by forfeit
// here are archived the same way guess-ended ones are.

package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/digitclash/server/internal/archive"
	"github.com/digitclash/server/internal/events"
	"github.com/digitclash/server/internal/game"
)

// RunJanitor blocks, sweeping on a ticker until ctx is cancelled.
// Run it on its own goroutine next to the HTTP listener.
func (s *Service) RunJanitor(ctx context.Context) {
	t := time.NewTicker(s.cfg.JanitorInterval)
	defer t.Stop()
	log.Info().
		Dur("interval", s.cfg.JanitorInterval).
		Dur("grace", s.cfg.HeartbeatGrace).
		Msg("janitor running")
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce walks every room exactly once. Room locks are taken one at a
// time; envelopes and deletions happen after each lock is released.
func (s *Service) sweepOnce(ctx context.Context) {
	rooms, err := s.reg.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("janitor: list rooms")
		return
	}

	now := s.now()
	lobbyChanged := false
	for _, r := range rooms {
		code, expired, changed := s.sweepRoom(ctx, r, now)
		if expired {
			if err := s.reg.Delete(ctx, code); err != nil {
				log.Warn().Err(err).Str("room", code).Msg("janitor: delete room")
			}
			lobbyChanged = true
		}
		lobbyChanged = lobbyChanged || changed
	}
	if lobbyChanged {
		s.publishRoomList(ctx)
	}
}

// sweepRoom applies the presence sweep and expiry rules to one room.
// It reports the room code, whether the room should leave the registry,
// and whether the lobby listing changed.
func (s *Service) sweepRoom(ctx context.Context, r *game.Room, now time.Time) (code string, expired, changed bool) {
	r.Lock()
	code = r.Code
	res := r.Sweep(now, s.cfg.HeartbeatGrace)

	switch {
	case r.Phase == game.PhaseFinished:
		expired = now.Sub(r.FinishedAt) > s.cfg.FinishedTTL
	case len(r.Players) == 0:
		// Give a freshly created room one grace window to attract a host.
		expired = now.Sub(r.Touched) > s.cfg.HeartbeatGrace
	default:
		expired = now.Sub(r.Touched) > s.cfg.RoomTTL
	}

	swept := len(res.Removed) > 0 || len(res.Forfeited) > 0
	var pub events.Snapshot
	var end events.GameEnd
	var match archive.Match
	if swept {
		pub = events.SnapshotFromRoom(r, "")
	}
	if res.Finished {
		end = events.GameEndFromRoom(r)
		match = archive.MatchFromRoom(r)
	}
	r.Unlock()

	for _, p := range res.Removed {
		log.Info().Str("room", code).Str("player", p.ID).Msg("janitor: seat expired")
	}
	for _, p := range res.Forfeited {
		log.Info().Str("room", code).Str("player", p.ID).Msg("janitor: player forfeited")
	}
	if swept && !expired {
		s.hub.Publish(code, events.NewEnvelope(events.EventRoomState, code, now, pub))
	}
	if res.Finished {
		s.hub.Publish(code, events.NewEnvelope(events.EventGameEnd, code, now, end))
		s.archiveMatch(ctx, match)
	}
	if expired {
		log.Info().Str("room", code).Str("phase", string(pubPhase(pub, r))).Msg("janitor: room expired")
	}
	return code, expired, swept || expired || len(res.Removed) > 0
}

// pubPhase avoids re-locking just for a log line: use the swept snapshot
// when one was built, otherwise read the phase under a short lock.
func pubPhase(pub events.Snapshot, r *game.Room) game.Phase {
	if pub.Code != "" {
		return pub.Phase
	}
	r.RLock()
	defer r.RUnlock()
	return r.Phase
}
