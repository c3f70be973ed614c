// internal/store/memory.go
//
// In-memory implementation of the room Registry. Rooms are ephemeral by
// design: the registry holds live sessions only, and finished matches are
// persisted separately by the archive. State is lost on restart.
//
// Characteristics:
//   - Stores *game.Room keyed by room code in a map.
//   - Concurrency-safe via RWMutex (the registry lock orders strictly
//     before any room lock; nothing here touches room internals).
//   - Add is insert-only so code collisions surface as ErrCodeTaken and
//     the caller can retry with a fresh code.

package store

import (
	"context"
	"errors"
	"sync"

	"github.com/digitclash/server/internal/game"
)

// ErrCodeTaken is returned by Add when the code is already registered.
// Callers generate a new code and retry; it never reaches a client.
var ErrCodeTaken = errors.New("room code taken")

// Registry is the lookup surface for live rooms. Implementations may be
// backed by memory (this package) or something shared when rooms need to
// survive restarts.
type Registry interface {
	// Add registers a new room. Fails with ErrCodeTaken on collision.
	Add(ctx context.Context, r *game.Room) error

	// Get retrieves a room by code.
	// Returns game.ErrRoomNotFound if the code is unknown.
	Get(ctx context.Context, code string) (*game.Room, error)

	// Delete removes a room. Removing an unknown code is a no-op.
	Delete(ctx context.Context, code string) error

	// List returns all live rooms in unspecified order.
	List(ctx context.Context) ([]*game.Room, error)
}

// memory is an in-memory map-based Registry implementation.
type memory struct {
	mu    sync.RWMutex          // guards rooms map
	rooms map[string]*game.Room // keyed by Room.Code
}

// NewMemoryRegistry constructs a new in-memory Registry.
func NewMemoryRegistry() Registry {
	return &memory{rooms: make(map[string]*game.Room)}
}

func (m *memory) Add(ctx context.Context, r *game.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[r.Code]; ok {
		return ErrCodeTaken
	}
	m.rooms[r.Code] = r
	return nil
}

func (m *memory) Get(ctx context.Context, code string) (*game.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.rooms[code]; ok {
		return r, nil
	}
	return nil, game.ErrRoomNotFound
}

func (m *memory) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, code)
	return nil
}

func (m *memory) List(ctx context.Context) ([]*game.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*game.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	return out, nil
}
