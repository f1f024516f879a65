package broker

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// EventProducer forwards raw webhook payloads to the events topic.
type EventProducer struct {
	w Writer
}

// NewEventProducer creates a producer writing to w.
func NewEventProducer(w Writer) *EventProducer {
	return &EventProducer{w: w}
}

// PublishEvent writes body verbatim, unkeyed, with the GitHub event headers.
func (p *EventProducer) PublishEvent(ctx context.Context, delivery, eventType string, body []byte) error {
	msg := kafka.Message{
		Value: body,
		Headers: []kafka.Header{
			{Key: HeaderGitHubEvent, Value: []byte(eventType)},
			{Key: HeaderGitHubDelivery, Value: []byte(delivery)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event %s: %w", eventType, delivery, err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *EventProducer) Close() error {
	return p.w.Close()
}
