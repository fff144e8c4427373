package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ExchangeKind is the exchange type used for realtime events.  Routing keys
// are "<channel>.<event>", so a consumer can bind to a subset such as
// "tasks.*".
const ExchangeKind = "topic"

// RoutingKey returns the broker routing key of ev.
func RoutingKey(ev Event) string { return ev.Channel() + "." + ev.Name() }

// Broker connection bounds.  Publishes run on the request path, so a dead
// broker must fail fast; after a failed dial, publishes fail immediately
// until RedialDelay has passed.
const (
	DialTimeout = 3 * time.Second
	RedialDelay = 5 * time.Second
)

// dial opens a broker connection whose TCP connect and handshake are
// bounded by timeout.
func dial(url string, timeout time.Duration) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp.DefaultDial(timeout),
	})
}

// AMQPBroadcaster publishes events to a RabbitMQ topic exchange.  The
// connection is opened on first use and dropped after any failure so the
// next publish redials; a failed publish is not retried.
type AMQPBroadcaster struct {
	url      string
	exchange string
	log      *zap.Logger

	dialTimeout time.Duration
	redialDelay time.Duration

	mu        sync.Mutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	nextDial  time.Time
	lastError error
}

func NewAMQPBroadcaster(url, exchange string, log *zap.Logger) *AMQPBroadcaster {
	return &AMQPBroadcaster{url: url, exchange: exchange, log: log,
		dialTimeout: DialTimeout, redialDelay: RedialDelay}
}

func (b *AMQPBroadcaster) Publish(ctx context.Context, ev Event) error {
	body, err := Encode(ev)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch, err := b.channelLocked()
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient, // no replay, nothing to keep on disk
		Timestamp:    time.Now().UTC(),
		Type:         ev.Name(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, b.exchange, RoutingKey(ev), false, false, pub); err != nil {
		b.resetLocked()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (b *AMQPBroadcaster) channelLocked() (*amqp.Channel, error) {
	if b.ch != nil && !b.ch.IsClosed() {
		return b.ch, nil
	}
	b.resetLocked()
	if time.Now().Before(b.nextDial) {
		return nil, fmt.Errorf("rabbitmq unavailable: %w", b.lastError)
	}

	conn, err := dial(b.url, b.dialTimeout)
	if err != nil {
		b.nextDial = time.Now().Add(b.redialDelay)
		b.lastError = err
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := declareExchange(ch, b.exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	b.conn, b.ch = conn, ch
	b.log.Info("realtime publisher connected", zap.String("exchange", b.exchange))
	return ch, nil
}

func (b *AMQPBroadcaster) resetLocked() {
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		_ = b.conn.Close()
	}
	b.conn, b.ch = nil, nil
}

// Close releases the broker connection.
func (b *AMQPBroadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
	return nil
}

// declareExchange ensures the exchange exists (idempotent).
func declareExchange(ch *amqp.Channel, name string) error {
	if err := ch.ExchangeDeclare(
		name,         // name
		ExchangeKind, // kind
		true,         // durable
		false,        // autoDelete
		false,        // internal
		false,        // noWait
		nil,          // args
	); err != nil {
		return fmt.Errorf("rabbitmq exchange declare: %w", err)
	}
	return nil
}
