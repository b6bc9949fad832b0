// Package mock provides an in-memory mq.ClientInterface for tests.
package mock

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"agrispy.dev/agrispy/pkg/mq"
)

// Client records calls and returns configurable results.
type Client struct {
	mu sync.Mutex

	// PushFunc overrides Push when set; otherwise PushError is returned.
	PushFunc  func(ctx context.Context, data []byte) error
	PushError error
	pushed    [][]byte

	// Deliveries is returned by Consume together with ConsumeError.
	Deliveries   chan amqp.Delivery
	ConsumeError error
	consumeCalls int

	CloseError error
	closeCalls int
}

// NewClient returns a mock whose Consume hands out a buffered channel.
func NewClient() *Client {
	return &Client{
		Deliveries: make(chan amqp.Delivery, 16),
	}
}

// Push implements mq.ClientInterface.
func (c *Client) Push(ctx context.Context, data []byte) error {
	c.mu.Lock()
	c.pushed = append(c.pushed, append([]byte(nil), data...))
	fn, err := c.PushFunc, c.PushError
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, data)
	}
	return err
}

// UnsafePush implements mq.ClientInterface and behaves like Push.
func (c *Client) UnsafePush(ctx context.Context, data []byte) error {
	return c.Push(ctx, data)
}

// Consume implements mq.ClientInterface.
func (c *Client) Consume() (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consumeCalls++
	if c.ConsumeError != nil {
		return nil, c.ConsumeError
	}
	return c.Deliveries, nil
}

// SwapDeliveries installs a fresh deliveries channel for later Consume calls
// and returns the previous one, the way a reconnect replaces the channel.
func (c *Client) SwapDeliveries() (old chan amqp.Delivery) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old = c.Deliveries
	c.Deliveries = make(chan amqp.Delivery, cap(old))
	return old
}

// Close implements mq.ClientInterface.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeCalls++
	return c.CloseError
}

// Pushed returns copies of every payload passed to Push or UnsafePush.
func (c *Client) Pushed() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]byte, len(c.pushed))
	copy(out, c.pushed)
	return out
}

// ConsumeCalls returns how many times Consume was called.
func (c *Client) ConsumeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumeCalls
}

// CloseCalls returns how many times Close was called.
func (c *Client) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// Acknowledger records Ack/Nack/Reject calls made on deliveries.
type Acknowledger struct {
	mu      sync.Mutex
	Acks    []uint64
	Nacks   []uint64
	Requeue []bool
}

// Ack implements amqp.Acknowledger.
func (a *Acknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Acks = append(a.Acks, tag)
	return nil
}

// Nack implements amqp.Acknowledger.
func (a *Acknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Nacks = append(a.Nacks, tag)
	a.Requeue = append(a.Requeue, requeue)
	return nil
}

// Reject implements amqp.Acknowledger.
func (a *Acknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

// Counts returns the number of acks and nacks seen so far.
func (a *Acknowledger) Counts() (acks, nacks int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Acks), len(a.Nacks)
}

// Delivery builds a delivery acknowledged through ack.
func Delivery(ack *Acknowledger, tag uint64, body []byte) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		Body:         body,
	}
}

var (
	_ mq.ClientInterface = (*Client)(nil)
	_ amqp.Acknowledger  = (*Acknowledger)(nil)
)
