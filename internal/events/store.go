package events

import "context"

// Store persists window events.
type Store interface {
	SaveWindowEvent(ctx context.Context, event *WindowEvent) error
}
