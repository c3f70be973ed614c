// internal/archive/store.go
//
// SQLite-backed match archive. Live rooms are in-memory only; when one
// finishes, the session layer hands the archive a self-contained Match
// record (roster with secrets, full guess log, outcome) and this package
// persists it. Writes are best-effort from the caller's point of view: a
// failed insert must never fail the guess that ended the game.
//
// Victory matches are run through the deterministic replay before being
// written. A mismatch points at log corruption and is logged loudly, but
// the record is still saved; a suspicious audit trail beats none.

package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/digitclash/server/internal/game"
)

// MatchPlayer is one archived seat, secret included. Secrets are public
// once the match is over; the archive is server-side history, not a
// client payload.
type MatchPlayer struct {
	ID         string
	Name       string
	Slot       int
	Secret     string
	Eliminated bool
}

// Match is the archival record of one finished room.
type Match struct {
	Code       string
	Mode       int
	MaxPlayers int
	WinnerID   string
	WinnerName string
	Reason     string
	StartedAt  time.Time
	FinishedAt time.Time
	Players    []MatchPlayer
	Events     []game.GuessEvent
}

// Summary is one row of the recent-matches listing.
type Summary struct {
	Code       string    `json:"code"`
	Mode       int       `json:"mode"`
	Players    int       `json:"players"`
	WinnerName string    `json:"winnerName,omitempty"`
	Reason     string    `json:"reason"`
	Guesses    int       `json:"guesses"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Store wraps the SQL handle for archive reads and writes.
type Store struct {
	db *sql.DB
}

// New constructs a Store. The schema is applied by the caller's migration
// step, not here.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// MatchFromRoom flattens a finished room into its archival record.
// Callers hold at least the room's read lock.
func MatchFromRoom(r *game.Room) Match {
	m := Match{
		Code:       r.Code,
		Mode:       r.Mode,
		MaxPlayers: r.MaxPlayers,
		WinnerID:   r.WinnerID,
		Reason:     string(r.EndReason),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Players:    make([]MatchPlayer, 0, len(r.Players)),
		Events:     append([]game.GuessEvent(nil), r.Events...),
	}
	for _, p := range r.Players {
		if p.ID == r.WinnerID {
			m.WinnerName = p.Name
		}
		m.Players = append(m.Players, MatchPlayer{
			ID:         p.ID,
			Name:       p.Name,
			Slot:       p.Slot,
			Secret:     p.Secret,
			Eliminated: p.Eliminated,
		})
	}
	return m
}

// SaveMatch writes one finished match inside a transaction.
func (s *Store) SaveMatch(ctx context.Context, m Match) error {
	verifyReplay(m)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
        INSERT INTO matches
            (code, mode, max_players, winner_id, winner_name, reason, started_at, finished_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Code, m.Mode, m.MaxPlayers, m.WinnerID, m.WinnerName, m.Reason, m.StartedAt, m.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	matchID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("match id: %w", err)
	}

	for _, p := range m.Players {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO match_players
                (match_id, player_id, name, slot, secret, eliminated)
            VALUES (?, ?, ?, ?, ?, ?)`,
			matchID, p.ID, p.Name, p.Slot, p.Secret, p.Eliminated,
		); err != nil {
			return fmt.Errorf("insert player %s: %w", p.ID, err)
		}
	}
	for _, ev := range m.Events {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO match_guesses
                (match_id, seq, guesser_id, target_id, guess, hits, crack, at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			matchID, ev.Seq, ev.GuesserID, ev.TargetID, ev.Guess, ev.Hits, ev.Crack, ev.At,
		); err != nil {
			return fmt.Errorf("insert guess %d: %w", ev.Seq, err)
		}
	}
	return tx.Commit()
}

// verifyReplay checks a victory log against the deterministic replay.
// Forfeit and abandoned endings are settled outside the guess log, so
// only victories are checkable.
func verifyReplay(m Match) {
	if m.Reason != string(game.FinishVictory) {
		return
	}
	roster := make([]string, len(m.Players))
	for _, p := range m.Players {
		if p.Slot >= 0 && p.Slot < len(roster) {
			roster[p.Slot] = p.ID
		}
	}
	replayed, err := game.Replay(m.Mode, roster, m.Events)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("room", m.Code).Msg("archive: match log failed replay check")
	case replayed.WinnerID != m.WinnerID:
		log.Warn().
			Str("room", m.Code).
			Str("recorded", m.WinnerID).
			Str("replayed", replayed.WinnerID).
			Msg("archive: replay disagrees on winner")
	}
}

// RecentMatches lists the latest finished matches, newest first.
// Default limit is 20 if not specified.
func (s *Store) RecentMatches(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT m.code, m.mode, m.winner_name, m.reason, m.finished_at,
               (SELECT COUNT(1) FROM match_players p WHERE p.match_id = m.id),
               (SELECT COUNT(1) FROM match_guesses g WHERE g.match_id = m.id)
        FROM matches m
        ORDER BY m.finished_at DESC, m.id DESC
        LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Summary, 0, limit)
	for rows.Next() {
		var s Summary
		var winner sql.NullString
		if err := rows.Scan(&s.Code, &s.Mode, &winner, &s.Reason, &s.FinishedAt, &s.Players, &s.Guesses); err != nil {
			return nil, err
		}
		s.WinnerName = winner.String
		out = append(out, s)
	}
	return out, rows.Err()
}
