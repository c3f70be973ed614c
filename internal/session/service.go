// internal/session/service.go
//
// Session use-cases on top of the game package. The service owns the
// locking discipline (registry lock strictly before room lock, envelopes
// built under the room lock, published after), the room code loop, player
// identity, private-room passwords, and handing finished matches to the
// archive. Transport layers stay thin: HTTP and NATS both speak in the
// payloads this package returns and publishes.

package session

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/digitclash/server/internal/archive"
	"github.com/digitclash/server/internal/events"
	"github.com/digitclash/server/internal/game"
	"github.com/digitclash/server/internal/hub"
	"github.com/digitclash/server/internal/store"
)

// Config tunes presence and expiry. Zero values fall back to defaults.
type Config struct {
	// HeartbeatGrace is how long a player may stay silent before the
	// janitor frees their seat (pre-start) or forfeits them (active).
	HeartbeatGrace time.Duration
	// RoomTTL expires rooms with no accepted operation at all.
	RoomTTL time.Duration
	// FinishedTTL keeps finished rooms around for reveals and late
	// snapshots before they are dropped from the registry.
	FinishedTTL time.Duration
	// JanitorInterval is the sweep cadence.
	JanitorInterval time.Duration
}

const (
	defaultHeartbeatGrace  = 30 * time.Second
	defaultRoomTTL         = 30 * time.Minute
	defaultFinishedTTL     = 10 * time.Minute
	defaultJanitorInterval = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.HeartbeatGrace <= 0 {
		c.HeartbeatGrace = defaultHeartbeatGrace
	}
	if c.RoomTTL <= 0 {
		c.RoomTTL = defaultRoomTTL
	}
	if c.FinishedTTL <= 0 {
		c.FinishedTTL = defaultFinishedTTL
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = defaultJanitorInterval
	}
	return c
}

// MatchWriter persists finished matches. Implementations must treat the
// record as immutable; failures are logged, never surfaced to players.
type MatchWriter interface {
	SaveMatch(ctx context.Context, m archive.Match) error
}

// Service contains the session use-cases.
type Service struct {
	reg     store.Registry
	hub     *hub.Hub
	archive MatchWriter
	cfg     Config

	// Overridable for tests.
	now     func() time.Time
	newID   func() string
	newCode func() string
}

// New constructs a Service. archive may be nil when match history is
// disabled.
func New(reg store.Registry, h *hub.Hub, aw MatchWriter, cfg Config) *Service {
	return &Service{
		reg:     reg,
		hub:     h,
		archive: aw,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		newID:   uuid.NewString,
		newCode: store.RandomCode,
	}
}

// CreateParams describes a room to create. HostName, when set, seats the
// creator immediately so a single call yields a joinable identity.
type CreateParams struct {
	Mode       int
	MaxPlayers int
	Password   string
	HostName   string
	HostAvatar string
}

// SeatClaim is the identity a join hands back: enough to mint a room
// token and to render the per-player view.
type SeatClaim struct {
	RoomCode string
	PlayerID string
	Slot     int
	Snapshot events.Snapshot
}

// CreateResult is the outcome of CreateRoom. Host is nil when no
// HostName was given.
type CreateResult struct {
	Snapshot events.Snapshot
	Host     *SeatClaim
}

// addAttempts bounds the room-code collision loop. With a 32-character
// alphabet and 6 positions collisions are rare even at high occupancy.
const addAttempts = 10

// CreateRoom registers a new room and optionally seats its creator.
func (s *Service) CreateRoom(ctx context.Context, p CreateParams) (CreateResult, error) {
	var hash []byte
	if p.Password != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
		if err != nil {
			return CreateResult{}, game.ErrInvalidPassword
		}
	}

	now := s.now()
	r, err := game.NewRoom(s.newCode(), p.Mode, p.MaxPlayers, hash, now)
	if err != nil {
		return CreateResult{}, err
	}

	var host *game.Player
	if p.HostName != "" {
		// The room is not published yet, so no lock is needed.
		host, err = r.Join(s.newID(), p.HostName, p.HostAvatar, now)
		if err != nil {
			return CreateResult{}, err
		}
	}

	added := false
	for i := 0; i < addAttempts; i++ {
		if err := s.reg.Add(ctx, r); err == nil {
			added = true
			break
		} else if err != store.ErrCodeTaken {
			return CreateResult{}, err
		}
		r.Code = s.newCode()
	}
	if !added {
		return CreateResult{}, store.ErrCodeTaken
	}

	res := CreateResult{Snapshot: events.SnapshotFromRoom(r, "")}
	if host != nil {
		res.Host = &SeatClaim{
			RoomCode: r.Code,
			PlayerID: host.ID,
			Slot:     host.Slot,
			Snapshot: events.SnapshotFromRoom(r, host.ID),
		}
	}
	log.Info().
		Str("room", r.Code).
		Int("mode", r.Mode).
		Int("maxPlayers", r.MaxPlayers).
		Bool("private", r.Private()).
		Msg("room created")

	s.publishRoomList(ctx)
	return res, nil
}

// JoinRoom seats a player in an existing room. Private rooms require the
// password that was set at creation.
func (s *Service) JoinRoom(ctx context.Context, code, name, avatar, password string) (SeatClaim, error) {
	r, err := s.reg.Get(ctx, code)
	if err != nil {
		return SeatClaim{}, err
	}

	r.RLock()
	hash := r.PasswordHash
	r.RUnlock()
	if len(hash) > 0 {
		if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
			return SeatClaim{}, game.ErrWrongPassword
		}
	}

	now := s.now()
	r.Lock()
	p, err := r.Join(s.newID(), name, avatar, now)
	if err != nil {
		r.Unlock()
		return SeatClaim{}, err
	}
	claim := SeatClaim{
		RoomCode: r.Code,
		PlayerID: p.ID,
		Slot:     p.Slot,
		Snapshot: events.SnapshotFromRoom(r, p.ID),
	}
	pub := events.SnapshotFromRoom(r, "")
	r.Unlock()

	log.Info().Str("room", code).Str("player", p.ID).Int("slot", claim.Slot).Msg("player joined")
	s.hub.Publish(code, events.NewEnvelope(events.EventRoomState, code, now, pub))
	s.publishRoomList(ctx)
	return claim, nil
}

// ListRooms returns lobby summaries for every room that has not finished,
// newest first.
func (s *Service) ListRooms(ctx context.Context) (events.RoomList, error) {
	rooms, err := s.reg.List(ctx)
	if err != nil {
		return events.RoomList{}, err
	}
	list := events.RoomList{Rooms: make([]events.RoomSummary, 0, len(rooms))}
	for _, r := range rooms {
		r.RLock()
		if r.Phase != game.PhaseFinished {
			list.Rooms = append(list.Rooms, events.SummaryFromRoom(r))
		}
		r.RUnlock()
	}
	sort.Slice(list.Rooms, func(i, j int) bool {
		return list.Rooms[i].CreatedAt.After(list.Rooms[j].CreatedAt)
	})
	return list, nil
}

// SetSecret commits a player's secret. The last secret starts the game
// and announces it.
func (s *Service) SetSecret(ctx context.Context, code, playerID, secret string) (events.Snapshot, error) {
	r, err := s.reg.Get(ctx, code)
	if err != nil {
		return events.Snapshot{}, err
	}

	now := s.now()
	r.Lock()
	if err := r.SetSecret(playerID, secret, now); err != nil {
		r.Unlock()
		return events.Snapshot{}, err
	}
	started := r.Phase == game.PhaseActive
	view := events.SnapshotFromRoom(r, playerID)
	pub := events.SnapshotFromRoom(r, "")
	var start events.GameStart
	if started {
		start = events.GameStart{
			Code:      code,
			TurnSlot:  r.TurnSlot,
			StartedAt: r.StartedAt,
		}
		if turn := r.PlayerBySlot(r.TurnSlot); turn != nil {
			start.TurnPlayerID = turn.ID
		}
	}
	r.Unlock()

	if started {
		log.Info().Str("room", code).Str("firstTurn", start.TurnPlayerID).Msg("game started")
		s.hub.Publish(code, events.NewEnvelope(events.EventGameStart, code, now, start))
	}
	s.hub.Publish(code, events.NewEnvelope(events.EventRoomState, code, now, pub))
	return view, nil
}

// GuessOutcome is what a committed guess hands back to the caller.
type GuessOutcome struct {
	Event    game.GuessEvent
	Result   events.MoveResult
	Snapshot events.Snapshot
}

// SubmitGuess validates and applies one guess. expectSeq > 0 makes the
// submit idempotent: a retry of an already-applied guess is rejected with
// ErrStaleSequence instead of being scored again.
func (s *Service) SubmitGuess(ctx context.Context, code, playerID, targetID, guess string, expectSeq int) (GuessOutcome, error) {
	r, err := s.reg.Get(ctx, code)
	if err != nil {
		return GuessOutcome{}, err
	}

	now := s.now()
	r.Lock()
	ev, err := r.ApplyGuess(playerID, targetID, guess, expectSeq, now)
	if err != nil {
		r.Unlock()
		return GuessOutcome{}, err
	}
	out := GuessOutcome{
		Event:    ev,
		Result:   events.MoveResultFromEvent(r, ev),
		Snapshot: events.SnapshotFromRoom(r, playerID),
	}
	finished := r.Phase == game.PhaseFinished
	var pub events.Snapshot
	if ev.Eliminated || finished {
		pub = events.SnapshotFromRoom(r, "")
	}
	var end events.GameEnd
	var match archive.Match
	if finished {
		end = events.GameEndFromRoom(r)
		match = archive.MatchFromRoom(r)
	}
	r.Unlock()

	env := events.NewEnvelope(events.EventMoveResult, code, now, out.Result)
	env.Seq = ev.Seq
	s.hub.Publish(code, env)
	if ev.Eliminated || finished {
		s.hub.Publish(code, events.NewEnvelope(events.EventRoomState, code, now, pub))
	}
	if finished {
		log.Info().
			Str("room", code).
			Str("winner", end.WinnerID).
			Int("guesses", ev.Seq).
			Msg("game finished")
		s.hub.Publish(code, events.NewEnvelope(events.EventGameEnd, code, now, end))
		s.archiveMatch(ctx, match)
		s.publishRoomList(ctx)
	}
	return out, nil
}

// Snapshot renders the room's public view, personalized when viewerID
// names a seat.
func (s *Service) Snapshot(ctx context.Context, code, viewerID string) (events.Snapshot, error) {
	r, err := s.reg.Get(ctx, code)
	if err != nil {
		return events.Snapshot{}, err
	}
	r.RLock()
	defer r.RUnlock()
	return events.SnapshotFromRoom(r, viewerID), nil
}

// LeaveRoom removes or forfeits a player. The last player out of a
// pre-start room takes the room with them.
func (s *Service) LeaveRoom(ctx context.Context, code, playerID string) error {
	r, err := s.reg.Get(ctx, code)
	if err != nil {
		return err
	}

	now := s.now()
	r.Lock()
	wasFinished := r.Phase == game.PhaseFinished
	if err := r.Leave(playerID, now); err != nil {
		r.Unlock()
		return err
	}
	empty := len(r.Players) == 0
	finished := !wasFinished && r.Phase == game.PhaseFinished
	pub := events.SnapshotFromRoom(r, "")
	var end events.GameEnd
	var match archive.Match
	if finished {
		end = events.GameEndFromRoom(r)
		match = archive.MatchFromRoom(r)
	}
	r.Unlock()

	log.Info().Str("room", code).Str("player", playerID).Msg("player left")
	if empty {
		if err := s.reg.Delete(ctx, code); err != nil {
			log.Warn().Err(err).Str("room", code).Msg("delete empty room")
		}
	} else {
		s.hub.Publish(code, events.NewEnvelope(events.EventRoomState, code, now, pub))
	}
	if finished {
		s.hub.Publish(code, events.NewEnvelope(events.EventGameEnd, code, now, end))
		s.archiveMatch(ctx, match)
	}
	s.publishRoomList(ctx)
	return nil
}

// Heartbeat refreshes a player's presence window.
func (s *Service) Heartbeat(ctx context.Context, code, playerID string) error {
	r, err := s.reg.Get(ctx, code)
	if err != nil {
		return err
	}
	r.Lock()
	defer r.Unlock()
	return r.Heartbeat(playerID, s.now())
}

// Reveal discloses the winner's secret to a losing participant after the
// game is over. The winner already knows it and is refused; outsiders
// never see it.
func (s *Service) Reveal(ctx context.Context, code, requesterID string) (events.Reveal, error) {
	r, err := s.reg.Get(ctx, code)
	if err != nil {
		return events.Reveal{}, err
	}
	r.RLock()
	defer r.RUnlock()

	if r.Phase != game.PhaseFinished {
		return events.Reveal{}, game.ErrGameNotFinished
	}
	requester := r.PlayerByID(requesterID)
	if requester == nil {
		return events.Reveal{}, game.ErrPlayerNotFound
	}
	if r.WinnerID == "" {
		return events.Reveal{}, game.ErrNoWinner
	}
	if requester.ID == r.WinnerID {
		return events.Reveal{}, game.ErrRequesterIsWinner
	}
	winner := r.PlayerByID(r.WinnerID)
	if winner == nil {
		return events.Reveal{}, game.ErrNoWinner
	}
	return events.Reveal{
		Code:         code,
		WinnerID:     winner.ID,
		WinnerName:   winner.Name,
		WinnerSecret: winner.Secret,
		FinishedAt:   r.FinishedAt,
	}, nil
}

// archiveMatch hands a finished match to the archive, if one is wired.
func (s *Service) archiveMatch(ctx context.Context, m archive.Match) {
	if s.archive == nil {
		return
	}
	if err := s.archive.SaveMatch(ctx, m); err != nil {
		log.Warn().Err(err).Str("room", m.Code).Msg("archive match failed")
	}
}

// publishRoomList pushes the current lobby listing to lobby subscribers.
func (s *Service) publishRoomList(ctx context.Context) {
	list, err := s.ListRooms(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("build room list")
		return
	}
	s.hub.Publish(hub.TopicLobby, events.NewEnvelope(events.EventRoomList, "", s.now(), list))
}
