package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire form of an event.
type Envelope struct {
	ID      string          `json:"id"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
	SentAt  time.Time       `json:"sent_at"`
}

// ErrUnknownEvent is returned by Decode for event names outside the closed
// set of variants.
var ErrUnknownEvent = errors.New("unknown realtime event")

// Encode wraps ev in a fresh envelope.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ev.Name(), err)
	}
	return json.Marshal(Envelope{
		ID:      uuid.NewString(),
		Channel: ev.Channel(),
		Event:   ev.Name(),
		Data:    data,
		SentAt:  time.Now().UTC(),
	})
}

// Decode parses an envelope and its payload.
func Decode(b []byte) (Envelope, Event, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("decode envelope: %w", err)
	}
	if !ValidChannel(env.Channel) {
		return env, nil, fmt.Errorf("decode envelope: invalid channel %q", env.Channel)
	}
	ev, err := decodeData(env.Event, env.Data)
	if err != nil {
		return env, nil, err
	}
	if n, ok := ev.(NewNotification); ok {
		n.Recipient, _ = NotificationRecipient(env.Channel)
		ev = n
	}
	if ev.Channel() != env.Channel {
		return env, nil, fmt.Errorf("decode envelope: %s does not belong on channel %q", env.Event, env.Channel)
	}
	return env, ev, nil
}

func decodeData(name string, data json.RawMessage) (Event, error) {
	switch name {
	case EventTaskCreated:
		return as[TaskCreated](data)
	case EventTaskUpdated:
		return as[TaskUpdated](data)
	case EventTaskDeleted:
		return as[TaskDeleted](data)
	case EventTaskAssigned:
		return as[TaskAssigned](data)
	case EventTaskCompleted:
		return as[TaskCompleted](data)
	case EventProjectCreated:
		return as[ProjectCreated](data)
	case EventProjectUpdated:
		return as[ProjectUpdated](data)
	case EventProjectDeleted:
		return as[ProjectDeleted](data)
	case EventProjectProgressUpdated:
		return as[ProjectProgressUpdated](data)
	case EventMemberAdded:
		return as[MemberAdded](data)
	case EventMemberRemoved:
		return as[MemberRemoved](data)
	case EventMemberRoleUpdated:
		return as[MemberRoleUpdated](data)
	case EventNewNotification:
		return as[NewNotification](data)
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownEvent, name)
}

func as[T Event](data json.RawMessage) (Event, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ev.Name(), err)
	}
	return ev, nil
}
