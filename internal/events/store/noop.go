package store

import (
	"context"

	"github.com/serroba/numbers-window/internal/events"
	"go.uber.org/zap"
)

// Noop is an events.Store that only logs what it receives.
type Noop struct {
	logger *zap.Logger
}

// NewNoop creates a logging no-op store.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) SaveWindowEvent(_ context.Context, event *events.WindowEvent) error {
	n.logger.Info("window event received",
		zap.String("id", event.ID),
		zap.String("category", event.Category),
		zap.Float64s("current", event.Current),
		zap.Float64("average", event.Average),
		zap.Bool("degraded", event.Degraded),
		zap.Time("occurredAt", event.OccurredAt),
	)

	return nil
}
