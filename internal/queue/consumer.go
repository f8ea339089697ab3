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

// Delivery is what a Handler sees of an AMQP delivery.
type Delivery struct {
	MessageID string
	Pattern   string
	Body      []byte
}

// Handler processes one delivery. Returning an error wrapped with
// retry.Unrecoverable skips the remaining attempts.
type Handler func(ctx context.Context, d Delivery) error

// Binding attaches a handler to a durable queue bound to patterns.
type Binding struct {
	Queue    string
	Patterns []string
	Handler  Handler
}

// ConsumerConfig tunes delivery handling.
type ConsumerConfig struct {
	URL         string
	Exchange    string
	Prefetch    int
	MaxAttempts uint
	RetryDelay  time.Duration
}

// Consumer runs every registered binding on one connection and reconnects
// with backoff when the broker goes away. Each queue dead-letters into
// <queue>.dlq through the <exchange>.dlx exchange.
type Consumer struct {
	cfg      ConsumerConfig
	log      *slog.Logger
	bindings []Binding
}

func NewConsumer(cfg ConsumerConfig, log *slog.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 50
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	return &Consumer{cfg: cfg, log: log}
}

func (c *Consumer) Register(b Binding) { c.bindings = append(c.bindings, b) }

func (c *Consumer) deadLetterExchange() string { return c.cfg.Exchange + ".dlx" }

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.cfg.URL)
		if err != nil {
			c.log.Warn("consumer: dial failed", logger.Err(err), slog.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consumer: loop ended, reconnecting", logger.Err(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		c.log.Warn("consumer: set QoS failed", logger.Err(err))
	}
	if err := c.declare(ch); err != nil {
		return err
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(c.bindings))
	for _, b := range c.bindings {
		msgs, err := ch.Consume(b.Queue, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", b.Queue, err)
		}
		wg.Add(1)
		go func(b Binding, msgs <-chan amqp.Delivery) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-msgs:
					if !ok {
						errs <- fmt.Errorf("deliveries closed for %s", b.Queue)
						return
					}
					c.dispatch(ctx, b, d)
				}
			}
		}(b, msgs)
	}

	select {
	case <-ctx.Done():
	case err = <-errs:
	}
	_ = ch.Close()
	wg.Wait()
	if err == nil {
		err = errors.New("consumer stopped")
	}
	return err
}

func (c *Consumer) declare(ch *amqp.Channel) error {
	if err := declareExchange(ch, c.cfg.Exchange); err != nil {
		return err
	}
	dlx := c.deadLetterExchange()
	if err := ch.ExchangeDeclare(dlx, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare %s: %w", dlx, err)
	}
	for _, b := range c.bindings {
		dlq := b.Queue + ".dlq"
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, b.Queue, dlx, false, nil); err != nil {
			return fmt.Errorf("queue bind %s: %w", dlq, err)
		}
		args := amqp.Table{
			"x-dead-letter-exchange":    dlx,
			"x-dead-letter-routing-key": b.Queue,
		}
		if _, err := ch.QueueDeclare(b.Queue, true, false, false, false, args); err != nil {
			return fmt.Errorf("queue declare %s: %w", b.Queue, err)
		}
		for _, pattern := range b.Patterns {
			if err := ch.QueueBind(b.Queue, pattern, c.cfg.Exchange, false, nil); err != nil {
				return fmt.Errorf("queue bind %s to %s: %w", b.Queue, pattern, err)
			}
		}
	}
	return nil
}

// dispatch runs the handler with retries and settles the delivery: ack on
// success, nack without requeue (dead letter) once attempts are exhausted.
func (c *Consumer) dispatch(ctx context.Context, b Binding, d amqp.Delivery) {
	start := time.Now()
	in := Delivery{MessageID: d.MessageId, Pattern: d.RoutingKey, Body: d.Body}
	log := c.log.With(slog.String("queue", b.Queue), slog.String("pattern", in.Pattern), slog.String("message_id", in.MessageID))

	err := retry.Do(
		func() error { return safeHandle(ctx, b.Handler, in) },
		retry.Context(ctx),
		retry.Attempts(c.cfg.MaxAttempts),
		retry.Delay(c.cfg.RetryDelay),
		retry.MaxDelay(10*c.cfg.RetryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("listener attempt failed", slog.Uint64("attempt", uint64(n+1)), logger.Err(err))
		}),
	)
	if err != nil && ctx.Err() != nil {
		_ = d.Nack(false, true)
		metrics.RecordDelivery(b.Queue, "requeued", time.Since(start))
		return
	}
	if err != nil {
		log.Error("listener gave up, dead-lettering", logger.Err(err))
		_ = d.Nack(false, false)
		metrics.RecordDelivery(b.Queue, "dead_letter", time.Since(start))
		return
	}
	_ = d.Ack(false)
	metrics.RecordDelivery(b.Queue, "ack", time.Since(start))
}

// safeHandle turns a panic into an unrecoverable error so one bad message
// cannot take the worker down.
func safeHandle(ctx context.Context, h Handler, d Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = retry.Unrecoverable(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h(ctx, d)
}

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
