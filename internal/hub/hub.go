// internal/hub/hub.go
//
// In-process fanout for session events. Topics are room codes plus the
// fixed lobby topic; taps receive every envelope regardless of topic (the
// NATS bridge rides a tap). Subscribers get buffered channels and slow
// ones are dropped-from, never blocked on, so one stalled SSE connection
// cannot hold up a turn.
//
// Channel ownership: the hub never closes subscriber channels. A reader
// leaves by calling Unsubscribe and abandoning the channel; publishes
// that raced the removal land in the buffer and get collected with it.

package hub

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/digitclash/server/internal/events"
)

// TopicLobby carries room-list updates. Room codes are uppercase, so the
// lowercase name cannot collide with one.
const TopicLobby = "lobby"

const defaultBuffer = 16

// Subscriber is one attached consumer. Read frames from C.
type Subscriber struct {
	topic string
	all   bool
	ch    chan events.Envelope
}

// C returns the subscriber's frame channel.
func (s *Subscriber) C() <-chan events.Envelope { return s.ch }

// Topic returns the topic the subscriber is attached to ("*" for taps).
func (s *Subscriber) Topic() string {
	if s.all {
		return "*"
	}
	return s.topic
}

// Hub routes envelopes from the session layer to attached subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscriber]struct{}
	taps map[*Subscriber]struct{}
}

// New builds an empty hub.
func New() *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscriber]struct{}),
		taps: make(map[*Subscriber]struct{}),
	}
}

// Subscribe attaches a consumer to one topic.
func (h *Hub) Subscribe(topic string) *Subscriber {
	s := &Subscriber{topic: topic, ch: make(chan events.Envelope, defaultBuffer)}
	h.mu.Lock()
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[topic] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// SubscribeAll attaches a tap that sees every published envelope.
func (h *Hub) SubscribeAll() *Subscriber {
	s := &Subscriber{all: true, ch: make(chan events.Envelope, defaultBuffer)}
	h.mu.Lock()
	h.taps[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe detaches a consumer. Safe to call more than once. The
// channel stays open; see the package note on ownership.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	if s.all {
		delete(h.taps, s)
	} else if set, ok := h.subs[s.topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.topic)
		}
	}
	h.mu.Unlock()
}

// Publish fans an envelope out to the topic's subscribers and every tap.
// Channel sends happen after the lock is released and never block: a full
// buffer means the frame is dropped for that subscriber, who is expected
// to resync from a snapshot.
func (h *Hub) Publish(topic string, env events.Envelope) {
	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subs[topic])+len(h.taps))
	for s := range h.subs[topic] {
		targets = append(targets, s)
	}
	for s := range h.taps {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- env:
		default:
			log.Warn().
				Str("topic", topic).
				Str("event", env.Event).
				Msg("hub: subscriber buffer full, frame dropped")
		}
	}
}

// SubscriberCount reports attached consumers for a topic, taps excluded.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
