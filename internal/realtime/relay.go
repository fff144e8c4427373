package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Relay consumes the realtime exchange and forwards every event to a Hub,
// so sessions connected to any instance see events published by all of
// them.  Each instance binds its own exclusive, auto-deleted queue; events
// published while it is disconnected are lost.
type Relay struct {
	url      string
	exchange string
	hub      *Hub
	log      *zap.Logger

	// MaxBackoff caps the delay between reconnect attempts.
	MaxBackoff time.Duration
}

func NewRelay(url, exchange string, hub *Hub, log *zap.Logger) *Relay {
	return &Relay{url: url, exchange: exchange, hub: hub, log: log, MaxBackoff: 30 * time.Second}
}

// Run connects and consumes until ctx is cancelled, reconnecting with
// exponential backoff whenever the broker goes away.
func (r *Relay) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := dial(r.url, DialTimeout)
		if err != nil {
			r.log.Warn("realtime relay: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < r.MaxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = r.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.Warn("realtime relay: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (r *Relay) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declareExchange(ch, r.exchange); err != nil {
		return err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, "#", r.exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	r.log.Info("realtime relay consuming", zap.String("exchange", r.exchange), zap.String("queue", q.Name))

	for d := range msgs {
		if err := r.hub.Forward(d.Body); err != nil {
			r.log.Warn("realtime relay: dropped message", zap.String("routing_key", d.RoutingKey), zap.Error(err))
		}
	}
	return errors.New("deliveries channel closed")
}

// sleep waits for d or until ctx is done and reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
