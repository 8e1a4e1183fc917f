// Package amqp publishes and consumes transaction change events over
// RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rabbitmq/amqp091-go"

	"gastos/internal/log"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxDialTime    = 2 * time.Minute
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Publisher is what writers need from the client.
type Publisher interface {
	Publish(ctx context.Context, e *TransactionEvent) error
}

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
	failMu       sync.Mutex
}

var _ Publisher = (*Client)(nil)

// NewClient dials with exponential backoff until ctx ends or the dial budget
// runs out, then declares the exchange, queue and binding.
func NewClient(ctx context.Context, url, exchangeName, queueName string) (*Client, error) {
	c := &Client{url: url, exchangeName: exchangeName, queueName: queueName}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func dialBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = maxDialTime
	return backoff.WithContext(b, ctx)
}

func (c *Client) connect(ctx context.Context) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentAMQP)

	var conn *amqp091.Connection
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var err error
		conn, err = amqp091.Dial(c.url)
		if err != nil {
			logger.WarnContext(ctx, "AMQP dial failed", "attempt", attempt, "error", err)
		}
		return err
	}, dialBackoff(ctx))
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()

	if err := c.setup(channel); err != nil {
		c.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	logger.InfoContext(ctx, "AMQP connected", "exchange", c.exchangeName, "queue", c.queueName, "attempts", attempt)
	return nil
}

func (c *Client) setup(ch *amqp091.Channel) error {
	if err := ch.ExchangeDeclare(c.exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(c.queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// The routing key is the queue name on the direct exchange.
	if err := ch.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// liveChannel returns the open channel, reconnecting if the broker dropped us.
func (c *Client) liveChannel(ctx context.Context) (*amqp091.Channel, error) {
	c.mu.Lock()
	ch, conn := c.channel, c.conn
	c.mu.Unlock()
	if ch != nil && !ch.IsClosed() && conn != nil && !conn.IsClosed() {
		return ch, nil
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel, nil
}

// Publish sends one persistent event. While the breaker is open it fails
// fast with ErrCircuitOpen.
func (c *Client) Publish(ctx context.Context, e *TransactionEvent) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish event %s: %w", e.ID, ErrCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	ch, err := c.liveChannel(ctx)
	if err != nil {
		c.recordFailure()
		return err
	}

	err = ch.PublishWithContext(ctx, c.exchangeName, c.queueName, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    e.Timestamp,
		MessageId:    e.ID,
		Body:         body,
	})
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.dropConnection()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	log.FromContext(ctx).WithComponent(log.ComponentAMQP).DebugContext(ctx, "Published transaction event",
		log.FieldTransactionID, e.ID,
		"op", string(e.Op),
		log.FieldPeriod, e.Month)
	return nil
}

// Handler processes one event. Returning an error requeues the delivery.
type Handler func(ctx context.Context, e *TransactionEvent) error

// Consume delivers events to handler until ctx ends. Malformed bodies are
// dropped; handler errors requeue.
func (c *Client) Consume(ctx context.Context, prefetch int, handler Handler) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentAMQP)

	ch, err := c.liveChannel(ctx)
	if err != nil {
		return err
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return fmt.Errorf("set prefetch: %w", err)
		}
	}
	msgs, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	logger.InfoContext(ctx, "Started consuming transaction events", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}

			msg, err := TransactionEventFromJSON(delivery.Body)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to decode event", log.FieldError, err)
				_ = delivery.Nack(false, false)
				continue
			}

			if err := handler(ctx, msg); err != nil {
				logger.ErrorContext(ctx, "Failed to handle event",
					log.FieldError, err,
					log.FieldTransactionID, msg.ID,
					"op", string(msg.Op))
				_ = delivery.Nack(false, !delivery.Redelivered)
				continue
			}

			_ = delivery.Ack(false)
			logger.DebugContext(ctx, "Processed transaction event", log.FieldTransactionID, msg.ID, "op", string(msg.Op))
		}
	}
}

func (c *Client) dropConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.failMu.Lock()
	defer c.failMu.Unlock()
	if time.Since(c.lastFailure) > openTimeout {
		atomic.StoreInt32(&c.state, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.failMu.Lock()
	c.lastFailure = time.Now()
	c.failMu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection closed", "eof", "broken pipe", "closed network connection", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
