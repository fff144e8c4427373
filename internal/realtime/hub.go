package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DefaultBuffer is the per-session queue length.  A session whose queue is
// full is disconnected instead of slowing the publisher down.
const DefaultBuffer = 64

// Hub fans events out to the sessions subscribed to their channel.  It is
// the in-process Broadcaster and the sink the AMQP relay feeds.
type Hub struct {
	log    *zap.Logger
	buffer int

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewHub(log *zap.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{log: log, buffer: buffer, subs: make(map[string]map[*Subscription]struct{})}
}

// Subscription receives the encoded envelopes published on its channels.
// C is closed when the subscription ends, either by Close or because the
// session fell behind.
type Subscription struct {
	C        <-chan []byte
	ch       chan []byte
	channels []string
	hub      *Hub
	closed   bool
}

// Subscribe registers a new session on channels.
func (h *Hub) Subscribe(channels ...string) *Subscription {
	ch := make(chan []byte, h.buffer)
	s := &Subscription{C: ch, ch: ch, channels: channels, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range channels {
		set, ok := h.subs[c]
		if !ok {
			set = make(map[*Subscription]struct{})
			h.subs[c] = set
		}
		set[s] = struct{}{}
	}
	return s
}

// Close unregisters the subscription; it is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscription) {
	if s.closed {
		return
	}
	s.closed = true
	for _, c := range s.channels {
		if set, ok := h.subs[c]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, c)
			}
		}
	}
	close(s.ch)
}

// Publish encodes ev and delivers it to local subscribers.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	msg, err := Encode(ev)
	if err != nil {
		return err
	}
	h.deliver(ev.Channel(), msg)
	return nil
}

// Forward delivers an already encoded envelope, as received from the
// broker.  Malformed or unknown envelopes are rejected.
func (h *Hub) Forward(msg []byte) error {
	env, _, err := Decode(msg)
	if err != nil {
		return err
	}
	h.deliver(env.Channel, msg)
	return nil
}

func (h *Hub) deliver(channel string, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[channel] {
		select {
		case s.ch <- msg:
		default:
			h.log.Warn("realtime session too slow, disconnecting", zap.String("channel", channel))
			h.removeLocked(s)
		}
	}
}

// Subscribers returns the number of sessions listening on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[channel])
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subs {
		for s := range set {
			h.removeLocked(s)
		}
	}
}
