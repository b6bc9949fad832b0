package telemetry

import (
	"context"
	"errors"
	"fmt"

	"agrispy.dev/agrispy/pkg/mq"
)

// MQPublisher pushes encoded readings onto a RabbitMQ queue.
type MQPublisher struct {
	client mq.Publisher
	source string
}

// NewMQPublisher wraps client. An empty source selects DefaultSource.
func NewMQPublisher(client mq.Publisher, source string) (*MQPublisher, error) {
	if client == nil {
		return nil, errors.New("mq client cannot be nil")
	}
	if source == "" {
		source = DefaultSource
	}
	return &MQPublisher{client: client, source: source}, nil
}

// Publish implements Publisher.
func (p *MQPublisher) Publish(ctx context.Context, r Reading) error {
	data, err := Encode(Message{Source: p.source, Reading: r})
	if err != nil {
		return fmt.Errorf("telemetry: encode reading: %w", err)
	}
	return p.client.Push(ctx, data)
}

var _ Publisher = (*MQPublisher)(nil)
