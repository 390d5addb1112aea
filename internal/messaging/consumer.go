package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// ErrAlreadyStarted is returned by Start on a running consumer.
var ErrAlreadyStarted = errors.New("consumer already started")

// Handler processes a single decoded event.
type Handler[T any] func(ctx context.Context, event *T) error

// Consumer subscribes to one topic and feeds JSON-decoded events to a Handler.
// Undecodable messages and handler failures are nacked so the transport can
// redeliver them.
type Consumer[T any] struct {
	subscriber message.Subscriber
	topic      string
	handler    Handler[T]
	logger     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer creates a consumer for topic. Nothing is subscribed until Start.
func NewConsumer[T any](
	subscriber message.Subscriber,
	topic string,
	handler Handler[T],
	logger *zap.Logger,
) *Consumer[T] {
	return &Consumer[T]{
		subscriber: subscriber,
		topic:      topic,
		handler:    handler,
		logger:     logger.With(zap.String("topic", topic)),
	}
}

// Topic returns the subscribed topic.
func (c *Consumer[T]) Topic() string {
	return c.topic
}

// Start subscribes and processes messages on a background goroutine until
// ctx is cancelled or Shutdown is called. A failed Start leaves the consumer
// idle, so it may be retried.
func (c *Consumer[T]) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)

	msgs, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		cancel()

		return fmt.Errorf("subscribe to %s: %w", c.topic, err)
	}

	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(ctx, msgs, c.done)

	return nil
}

func (c *Consumer[T]) run(ctx context.Context, msgs <-chan *message.Message, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Debug("subscription closed")

				return
			}

			c.dispatch(ctx, msg)
		}
	}
}

func (c *Consumer[T]) dispatch(ctx context.Context, msg *message.Message) {
	logger := c.logger.With(
		zap.String("message_id", msg.UUID),
		zap.String("correlation_id", msg.Metadata.Get(CorrelationIDKey)),
	)

	event := new(T)
	if err := json.Unmarshal(msg.Payload, event); err != nil {
		logger.Error("dropping undecodable event", zap.Error(err))
		msg.Nack()

		return
	}

	if err := c.handler(ctx, event); err != nil {
		logger.Warn("event handler failed, requesting redelivery", zap.Error(err))
		msg.Nack()

		return
	}

	msg.Ack()
	logger.Debug("event processed")
}

// Shutdown stops a running consumer and waits for the in-flight message.
// It returns immediately on a consumer that was never started and is safe to
// call more than once. The subscriber is left open for its owner to close.
func (c *Consumer[T]) Shutdown() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done

	return nil
}
