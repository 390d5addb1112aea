package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/serroba/numbers-window/internal/messaging"
	"go.uber.org/zap"
)

// NewConsumer creates a consumer that persists every window event to store.
// Events the store rejects are nacked and redelivered.
func NewConsumer(subscriber message.Subscriber, store Store, logger *zap.Logger) *messaging.Consumer[WindowEvent] {
	handle := func(ctx context.Context, event *WindowEvent) error {
		if err := store.SaveWindowEvent(ctx, event); err != nil {
			return err
		}

		logger.Debug("window event stored",
			zap.String("event_id", event.ID),
			zap.String("category", event.Category),
			zap.Bool("degraded", event.Degraded),
		)

		return nil
	}

	return messaging.NewConsumer(subscriber, TopicWindowUpdated, handle, logger)
}
