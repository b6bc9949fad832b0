package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the publishing half of a queue client.
type Publisher interface {
	// Push publishes data and blocks until the broker confirms it,
	// ctx is done, or retries are exhausted.
	Push(ctx context.Context, data []byte) error
}

// ClientInterface is implemented by Client and by mock.Client.
type ClientInterface interface {
	Publisher

	// UnsafePush publishes without waiting for a confirmation.
	UnsafePush(ctx context.Context, data []byte) error

	// Consume delivers queue items on the returned channel. Every delivery
	// must be acknowledged with Ack or Nack.
	Consume() (<-chan amqp.Delivery, error)

	// Close shuts down the channel and connection.
	Close() error
}

var _ ClientInterface = (*Client)(nil)
