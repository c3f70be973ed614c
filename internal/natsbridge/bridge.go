// internal/natsbridge/bridge.go
//
// Optional NATS fanout. When a NATS URL is configured, the bridge taps
// the in-process hub and republishes every envelope onto subjects other
// services can subscribe to:
//
//   <prefix>.room.<code>.events   per-room frames
//   <prefix>.lobby.rooms          room-list updates
//
// The bridge is one-way by design: game commands only enter through the
// HTTP API, so a compromised broker cannot move a turn.

package natsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/digitclash/server/internal/events"
	"github.com/digitclash/server/internal/hub"
)

// Bridge republishes hub envelopes to a NATS connection.
type Bridge struct {
	nc     *nats.Conn
	hub    *hub.Hub
	prefix string
}

// Connect dials NATS and builds a bridge. The connection retries in the
// background, so a broker that is briefly down does not block startup.
func Connect(url, prefix string, h *hub.Hub) (*Bridge, error) {
	opts := []nats.Option{
		nats.Name("digitclash-server"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2 * time.Second),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if prefix == "" {
		prefix = "digitclash"
	}
	return &Bridge{nc: nc, hub: h, prefix: prefix}, nil
}

// Run taps the hub and relays until ctx is cancelled, then drains the
// connection. Run it on its own goroutine.
func (b *Bridge) Run(ctx context.Context) {
	tap := b.hub.SubscribeAll()
	defer b.hub.Unsubscribe(tap)
	log.Info().Str("prefix", b.prefix).Msg("nats bridge running")

	for {
		select {
		case <-ctx.Done():
			if err := b.nc.Drain(); err != nil {
				log.Warn().Err(err).Msg("nats drain")
			}
			return
		case env := <-tap.C():
			b.relay(env)
		}
	}
}

// relay publishes one envelope. Failures are logged and dropped; NATS
// consumers are observers, never the source of truth.
func (b *Bridge) relay(env events.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("event", env.Event).Msg("nats: marshal envelope")
		return
	}
	if err := b.nc.Publish(b.subjectFor(env), data); err != nil {
		log.Warn().Err(err).Str("event", env.Event).Msg("nats: publish")
	}
}

func (b *Bridge) subjectFor(env events.Envelope) string {
	if env.Room == "" {
		return b.prefix + ".lobby.rooms"
	}
	return fmt.Sprintf("%s.room.%s.events", b.prefix, env.Room)
}
