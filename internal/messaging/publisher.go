package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// CorrelationIDKey is the metadata key carrying the correlation id,
// compatible with watermill's router middleware.
const CorrelationIDKey = "correlation_id"

// Publish publishes a typed event.
type Publish[T any] func(ctx context.Context, event *T) error

// Correlated is implemented by events that carry a correlation id, such as
// the id of the HTTP request that produced them.
type Correlated interface {
	CorrelationID() string
}

// NewPublishFunc creates a typed publish function for a topic. Events are
// JSON encoded; correlated events get the watermill correlation id set.
func NewPublishFunc[T any](publisher message.Publisher, topic string) Publish[T] {
	return func(ctx context.Context, event *T) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", topic, err)
		}

		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.SetContext(ctx)

		if c, ok := any(event).(Correlated); ok && c.CorrelationID() != "" {
			msg.Metadata.Set(CorrelationIDKey, c.CorrelationID())
		}

		return publisher.Publish(topic, msg)
	}
}

// PublisherGroup owns the underlying publisher so the container can close it.
type PublisherGroup struct {
	publisher message.Publisher
}

// NewPublisherGroup wraps publisher.
func NewPublisherGroup(publisher message.Publisher) *PublisherGroup {
	return &PublisherGroup{publisher: publisher}
}

// Publisher returns the underlying message publisher for creating typed publish functions.
func (g *PublisherGroup) Publisher() message.Publisher {
	return g.publisher
}

// Shutdown closes the underlying publisher.
func (g *PublisherGroup) Shutdown() error {
	return g.publisher.Close()
}
