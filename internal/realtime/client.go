package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client subscribes to the realtime endpoint of a running server.
type Client struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8080/v1/realtime.
	URL      string
	Token    string
	Channels []string
	Dialer   *websocket.Dialer
	Log      *zap.Logger
}

// Run dials the endpoint and calls handle for every decoded event until
// ctx is cancelled or the connection drops.  Envelopes that fail to decode
// are logged and skipped.  Missed events are not replayed after a drop.
func (c *Client) Run(ctx context.Context, handle func(Envelope, Event)) error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("realtime url: %w", err)
	}
	q := u.Query()
	q.Set("channels", strings.Join(c.Channels, ","))
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.Token != "" {
		header.Set("Authorization", "Bearer "+c.Token)
	}
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("realtime dial: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("realtime dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("realtime read: %w", err)
		}
		env, ev, err := Decode(msg)
		if err != nil {
			if errors.Is(err, ErrUnknownEvent) {
				log.Warn("realtime: unknown event", zap.String("event", env.Event))
			} else {
				log.Warn("realtime: bad envelope", zap.Error(err))
			}
			continue
		}
		handle(env, ev)
	}
}
