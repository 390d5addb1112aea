package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/serroba/numbers-window/internal/numbers"
)

// TopicWindowUpdated carries one WindowEvent per numbers request.
const TopicWindowUpdated = "numbers.window"

// WindowEvent records what a numbers request did to a category's window.
// Degraded events are emitted when the upstream fetch failed and the response
// was served from the existing window; Previous and Current are then equal.
type WindowEvent struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"requestId,omitempty"`
	Category   string    `json:"category"`
	Previous   []float64 `json:"previous"`
	Current    []float64 `json:"current"`
	Fetched    []float64 `json:"fetched"`
	Average    float64   `json:"average"`
	Admitted   int       `json:"admitted"`
	Evicted    int       `json:"evicted"`
	Degraded   bool      `json:"degraded"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewWindowEvent creates an event with a fresh id and the given occurrence time.
func NewWindowEvent(c numbers.Category, requestID string, at time.Time) *WindowEvent {
	return &WindowEvent{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		Category:   c.Code(),
		OccurredAt: at,
	}
}

// CorrelationID ties the event to the HTTP request that produced it.
func (e WindowEvent) CorrelationID() string {
	return e.RequestID
}
