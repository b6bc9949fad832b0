package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"agrispy.dev/agrispy/internal/telemetry"
	"agrispy.dev/agrispy/pkg/metrics"
	"agrispy.dev/agrispy/pkg/mq"
)

const (
	defaultStartTimeout = 30 * time.Second
	defaultRequeueDelay = time.Second
	consumeRetryDelay   = 250 * time.Millisecond
)

// ConsumerConfig holds the configuration for the Consumer.
type ConsumerConfig struct {
	Logger     *slog.Logger
	Repository Repository
	Client     mq.ClientInterface
	// Metrics is optional.
	Metrics *metrics.ArchiveMetrics
	// StartTimeout bounds how long Start waits for the queue. Zero selects 30s.
	StartTimeout time.Duration
	// RequeueDelay is the pause before a reading that failed to save is
	// handed back to the broker. Zero selects 1s.
	RequeueDelay time.Duration
}

// Consumer reads telemetry from the queue and saves it through a Repository.
type Consumer struct {
	logger       *slog.Logger
	repo         Repository
	client       mq.ClientInterface
	metrics      *metrics.ArchiveMetrics
	startTimeout time.Duration
	requeueDelay time.Duration

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// NewConsumer creates a new Consumer instance.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg == nil {
		return nil, errors.New("consumer config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Repository == nil {
		return nil, errors.New("repository cannot be nil")
	}

	if cfg.Client == nil {
		return nil, errors.New("mq client cannot be nil")
	}

	timeout := cfg.StartTimeout
	if timeout <= 0 {
		timeout = defaultStartTimeout
	}

	requeueDelay := cfg.RequeueDelay
	if requeueDelay <= 0 {
		requeueDelay = defaultRequeueDelay
	}

	return &Consumer{
		logger:       cfg.Logger,
		repo:         cfg.Repository,
		client:       cfg.Client,
		metrics:      cfg.Metrics,
		startTimeout: timeout,
		requeueDelay: requeueDelay,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}, nil
}

// Start subscribes to the queue, retrying until the client is connected, and
// processes deliveries in the background until ctx ends or Stop is called.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting consumer")

	deliveries, err := c.subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.mu.Lock()
	select {
	case <-c.stop:
		c.mu.Unlock()
		return mq.ErrClosed
	default:
	}
	c.started = true
	c.mu.Unlock()

	c.logger.Info("consumer started, waiting for messages")

	go c.processMessages(ctx, deliveries)
	return nil
}

func (c *Consumer) subscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	deadline := time.NewTimer(c.startTimeout)
	defer deadline.Stop()

	for {
		deliveries, err := c.client.Consume()
		if err == nil {
			return deliveries, nil
		}
		if !errors.Is(err, mq.ErrNotConnected) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.stop:
			return nil, mq.ErrClosed
		case <-deadline.C:
			return nil, err
		case <-time.After(consumeRetryDelay):
		}
	}
}

// resubscribe waits for the client to hand out a new deliveries channel. It
// only gives up when ctx ends, Stop is called or the client is closed.
func (c *Consumer) resubscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	for {
		// Wait before each attempt
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.stop:
			return nil, mq.ErrClosed
		case <-time.After(consumeRetryDelay):
		}

		deliveries, err := c.client.Consume()
		switch {
		case err == nil:
			return deliveries, nil
		case errors.Is(err, mq.ErrClosed):
			return nil, err
		case !errors.Is(err, mq.ErrNotConnected):
			c.logger.Warn("failed to resubscribe, retrying", "error", err)
		}
	}
}

func (c *Consumer) processMessages(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context canceled, stopping message processing")
			return

		case <-c.stop:
			return

		case delivery, ok := <-deliveries:
			if !ok {
				// The client closes the channel when the connection drops.
				c.logger.Warn("deliveries channel closed, resubscribing")
				next, err := c.resubscribe(ctx)
				if err != nil {
					c.logger.Info("stopped resubscribing", "error", err)
					return
				}
				deliveries = next
				c.logger.Info("consumer resubscribed")
				continue
			}

			c.handleDelivery(ctx, delivery)
		}
	}
}

// handleDelivery acks stored and undecodable messages and requeues messages
// that failed to save.
func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	// Decode message
	msg, err := telemetry.Decode(delivery.Body)
	if err != nil {
		c.logger.Error("failed to decode telemetry reading", "error", err)
		c.count("undecodable")
		if ackErr := delivery.Ack(false); ackErr != nil {
			c.logger.Error("failed to ack message", "error", ackErr)
		}
		return
	}

	// Save to database
	record := NewArchivedReading(msg)
	if err := c.repo.Save(ctx, &record); err != nil {
		c.logger.Error("failed to save telemetry reading", "source", msg.Source, "error", err)
		c.count("store_error")

		// Back off before requeueing
		c.pause(ctx)
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			c.logger.Error("failed to nack message", "error", nackErr)
		}
		return
	}

	// Acknowledge message
	c.count("stored")
	if err := delivery.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "error", err)
		return
	}

	c.logger.Debug("telemetry reading archived", "id", record.ID, "source", record.Source)
}

// pause sleeps for the requeue delay, cut short by ctx or Stop.
func (c *Consumer) pause(ctx context.Context) {
	timer := time.NewTimer(c.requeueDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-c.stop:
	case <-timer.C:
	}
}

func (c *Consumer) count(status string) {
	if c.metrics != nil {
		c.metrics.ConsumedTotal.WithLabelValues(status).Inc()
	}
}

// Stop stops processing, closes the MQ client and waits for the in-flight
// delivery to finish.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping consumer")

	c.mu.Lock()
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	started := c.started
	c.mu.Unlock()

	if started {
		<-c.done
	}

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close mq client: %w", err)
	}

	c.logger.Info("consumer stopped")
	return nil
}
