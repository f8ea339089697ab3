package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/fitness-entitlements/internal/logger"
	"github.com/iliyamo/fitness-entitlements/internal/metrics"
)

// Publisher keeps one connection and channel open and publishes messages to
// a durable topic exchange with the pattern as routing key. A failed publish
// drops the channel; the next call reconnects.
type Publisher struct {
	url      string
	exchange string
	log      *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url, exchange string, log *slog.Logger) *Publisher {
	return &Publisher{url: url, exchange: exchange, log: log}
}

// Publish sends msg. The broker confirms nothing here; the outbox relay
// treats a nil error as delivered.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureChannel(ctx); err != nil {
		metrics.RecordPublish(msg.Pattern, err)
		return err
	}

	ts := msg.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	err := p.ch.PublishWithContext(ctx,
		p.exchange,
		msg.Pattern, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Type:         msg.Pattern,
			Timestamp:    ts,
			Body:         msg.Payload,
		},
	)
	metrics.RecordPublish(msg.Pattern, err)
	if err != nil {
		p.log.Warn("publish failed", slog.String("pattern", msg.Pattern), slog.String("message_id", msg.ID), logger.Err(err))
		p.reset()
		return fmt.Errorf("publish %s: %w", msg.Pattern, err)
	}
	return nil
}

func (p *Publisher) ensureChannel(ctx context.Context) error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.reset()
	return retry.Do(
		func() error {
			conn, err := amqp.Dial(p.url)
			if err != nil {
				return fmt.Errorf("dial broker: %w", err)
			}
			ch, err := conn.Channel()
			if err != nil {
				_ = conn.Close()
				return fmt.Errorf("channel open: %w", err)
			}
			if err := declareExchange(ch, p.exchange); err != nil {
				_ = ch.Close()
				_ = conn.Close()
				return err
			}
			p.conn, p.ch = conn, ch
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.log.Warn("broker connect retry", slog.Uint64("attempt", uint64(n+1)), logger.Err(err))
		}),
	)
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Close releases the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	p.ch, p.conn = nil, nil
	return err
}

func declareExchange(ch *amqp.Channel, name string) error {
	if err := ch.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare %s: %w", name, err)
	}
	return nil
}
