// Package mq provides a RabbitMQ queue client with automatic reconnection,
// publisher confirms and bounded retry.
package mq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"agrispy.dev/agrispy/pkg/metrics"
)

const (
	// Delay between dial attempts after a connection failure.
	reconnectDelay = 5 * time.Second

	// Delay before re-opening a channel after a channel exception.
	reInitDelay = 2 * time.Second

	initialBackoff    = 100 * time.Millisecond
	maxBackoff        = 10 * time.Second
	backoffMultiplier = 2
	maxRetryAttempts  = 5
)

var (
	// ErrNotConnected is returned when no channel is ready.
	ErrNotConnected = errors.New("mq: not connected to a server")
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("mq: client is closed")
	// ErrMaxRetriesExceeded is returned when Push gives up.
	ErrMaxRetriesExceeded = errors.New("mq: maximum retry attempts exceeded")
	// ErrNacked is returned by a single publish attempt the broker refused.
	ErrNacked = errors.New("mq: publish not acknowledged")
)

// Config configures a Client.
type Config struct {
	// URL is the AMQP connection string.
	URL string
	// Queue is declared on every (re)connect and used as routing key.
	Queue string
	// Durable declares the queue durable and publishes persistent messages.
	Durable bool
	Logger  *slog.Logger
	// Metrics is optional.
	Metrics *metrics.MQMetrics
}

// Client publishes to and consumes from a single queue. It keeps reconnecting
// in the background until Close is called.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu              sync.Mutex
	connection      *amqp.Connection
	channel         *amqp.Channel
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	ready           bool

	// publishMu serialises publish+confirm pairs on the shared channel.
	publishMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a client and starts connecting in the background.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("queue", cfg.Queue)),
		done:   make(chan struct{}),
	}
	go c.handleReconnect()
	return c
}

// Queue returns the queue name this client is bound to.
func (c *Client) Queue() string {
	return c.cfg.Queue
}

// Ready reports whether a channel is currently usable.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *Client) setReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()

	if c.cfg.Metrics != nil {
		if ready {
			c.cfg.Metrics.ConnectionStatus.Set(1)
		} else {
			c.cfg.Metrics.ConnectionStatus.Set(0)
		}
	}
}

// handleReconnect dials until it succeeds, then hands the connection to
// handleReInit; it starts over whenever the connection drops.
func (c *Client) handleReconnect() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.setReady(false)
		c.logger.Info("attempting to connect")

		if c.cfg.Metrics != nil {
			c.cfg.Metrics.ReconnectAttempts.Inc()
		}

		conn, err := amqp.Dial(c.cfg.URL)
		if err != nil {
			c.logger.Error("failed to connect, retrying", "error", err, "delay", reconnectDelay)

			select {
			case <-c.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		c.mu.Lock()
		select {
		case <-c.done:
			// Close ran while we were dialing.
			c.mu.Unlock()
			_ = conn.Close()
			return
		default:
		}
		c.connection = conn
		c.notifyConnClose = make(chan *amqp.Error, 1)
		conn.NotifyClose(c.notifyConnClose)
		c.mu.Unlock()

		c.logger.Info("connected")

		if closed := c.handleReInit(conn); closed {
			return
		}
	}
}

// handleReInit opens and re-opens the channel on conn. It returns true when
// the client is shutting down and false when the connection was lost.
func (c *Client) handleReInit(conn *amqp.Connection) bool {
	for {
		c.setReady(false)

		if err := c.init(conn); err != nil {
			c.logger.Error("failed to initialise channel, retrying", "error", err)

			select {
			case <-c.done:
				return true
			case <-c.notifyConnClose:
				c.logger.Info("connection closed, reconnecting")
				return false
			case <-time.After(reInitDelay):
			}
			continue
		}

		select {
		case <-c.done:
			return true
		case <-c.notifyConnClose:
			c.logger.Info("connection closed, reconnecting")
			return false
		case <-c.notifyChanClose:
			c.logger.Info("channel closed, re-initialising")
		}
	}
}

func (c *Client) init(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	if err := ch.Confirm(false); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		c.cfg.Queue,
		c.cfg.Durable, // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		nil,           // arguments
	); err != nil {
		return err
	}

	c.mu.Lock()
	c.channel = ch
	c.notifyChanClose = make(chan *amqp.Error, 1)
	c.notifyConfirm = make(chan amqp.Confirmation, 1)
	ch.NotifyClose(c.notifyChanClose)
	ch.NotifyPublish(c.notifyConfirm)
	c.mu.Unlock()

	c.setReady(true)
	c.logger.Info("channel ready")
	return nil
}

// Push publishes data and waits for the broker's confirmation. While the
// client is disconnected or the broker nacks, it retries with exponential
// backoff up to maxRetryAttempts times.
func (c *Client) Push(ctx context.Context, data []byte) error {
	if c.cfg.Metrics != nil {
		timer := prometheus.NewTimer(c.cfg.Metrics.PushDuration.WithLabelValues(c.cfg.Queue))
		defer timer.ObserveDuration()
	}

	backoff := initialBackoff

	for attempt := 0; ; attempt++ {
		if attempt >= maxRetryAttempts {
			c.logger.Error("giving up on publish", "attempts", attempt)
			c.countFailure("max_retries_exceeded")
			return ErrMaxRetriesExceeded
		}

		err := c.publishConfirmed(ctx, data)
		if err == nil {
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.MessagesPushed.WithLabelValues(c.cfg.Queue).Inc()
			}
			if attempt > 0 {
				c.logger.Info("publish confirmed after retries", "attempts", attempt+1)
			}
			return nil
		}

		switch {
		case errors.Is(err, ErrClosed):
			return err
		case ctx.Err() != nil:
			c.countFailure("context_canceled")
			return ctx.Err()
		}

		c.logger.Warn("publish failed, backing off", "error", err, "backoff", backoff, "attempt", attempt+1)

		select {
		case <-ctx.Done():
			c.countFailure("context_canceled")
			return ctx.Err()
		case <-c.done:
			return ErrClosed
		case <-time.After(backoff):
		}

		backoff *= backoffMultiplier
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// publishConfirmed performs one publish and waits for its confirmation.
func (c *Client) publishConfirmed(ctx context.Context, data []byte) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	if err := c.UnsafePush(ctx, data); err != nil {
		return err
	}

	c.mu.Lock()
	confirms := c.notifyConfirm
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	case confirm, ok := <-confirms:
		if !ok {
			return ErrNotConnected
		}
		if !confirm.Ack {
			return ErrNacked
		}
		return nil
	}
}

// UnsafePush publishes data without waiting for a confirmation.
func (c *Client) UnsafePush(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.mu.Lock()
	ready, ch := c.ready, c.channel
	c.mu.Unlock()

	if !ready || ch == nil {
		return ErrNotConnected
	}

	mode := amqp.Transient
	if c.cfg.Durable {
		mode = amqp.Persistent
	}

	return ch.PublishWithContext(
		ctx,
		"",          // exchange
		c.cfg.Queue, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/x-protobuf",
			DeliveryMode: mode,
			Timestamp:    time.Now().UTC(),
			Body:         data,
		},
	)
}

// Consume subscribes to the queue with manual acknowledgement and a prefetch
// of one. Callers must Ack or Nack every delivery.
func (c *Client) Consume() (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	ready, ch := c.ready, c.channel
	c.mu.Unlock()

	if !ready || ch == nil {
		return nil, ErrNotConnected
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return nil, err
	}

	deliveries, err := ch.Consume(
		c.cfg.Queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, err
	}

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ConsumeStarts.WithLabelValues(c.cfg.Queue).Inc()
	}
	return deliveries, nil
}

// Close stops the reconnect loop and closes the channel and connection.
// It is safe to call more than once.
func (c *Client) Close() error {
	var err error

	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		close(c.done)

		if c.channel != nil && !c.channel.IsClosed() {
			err = c.channel.Close()
		}
		if c.connection != nil && !c.connection.IsClosed() {
			if cerr := c.connection.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		c.ready = false
	})

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ConnectionStatus.Set(0)
	}
	return err
}

func (c *Client) countFailure(reason string) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.PushFailures.WithLabelValues(c.cfg.Queue, reason).Inc()
	}
}
