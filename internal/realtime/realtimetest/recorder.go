// Package realtimetest provides a recording Broadcaster for tests.
package realtimetest

import (
	"context"
	"sync"

	"github.com/iliyamo/taskflow/internal/realtime"
)

// Recorder keeps every published event in order.  Err, when set, is
// returned from Publish after the event has been recorded.
type Recorder struct {
	mu     sync.Mutex
	events []realtime.Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, ev realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.Err
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]realtime.Event(nil), r.events...)
}

// Named returns the recorded events with the given wire name.
func (r *Recorder) Named(name string) []realtime.Event {
	var out []realtime.Event
	for _, ev := range r.Events() {
		if ev.Name() == name {
			out = append(out, ev)
		}
	}
	return out
}

// On returns the recorded events published on channel.
func (r *Recorder) On(channel string) []realtime.Event {
	var out []realtime.Event
	for _, ev := range r.Events() {
		if ev.Channel() == channel {
			out = append(out, ev)
		}
	}
	return out
}

// Reset forgets every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
