package realtime

import "context"

// Broadcaster publishes events after a mutation has committed.  There is
// no acknowledgement and no replay: sessions that are not connected miss
// the event.
type Broadcaster interface {
	Publish(ctx context.Context, ev Event) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
