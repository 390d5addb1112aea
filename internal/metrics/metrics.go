package metrics

import (
	"time"

	"github.com/serroba/numbers-window/internal/numbers"
)

// Fetch outcomes used as the "outcome" label.
const (
	OutcomeSuccess   = "success"
	OutcomeTimeout   = "timeout"
	OutcomeNotFound  = "not_found"
	OutcomeStatus    = "bad_status"
	OutcomeMalformed = "malformed"
	OutcomeError     = "error"
)

// Response kinds used as the "kind" label.
const (
	ResponseOK          = "ok"
	ResponseDegraded    = "degraded"
	ResponseUnavailable = "unavailable"
)

// Recorder receives observations from the window store and the numbers handler.
type Recorder interface {
	ObserveFetch(category numbers.Category, outcome string, elapsed time.Duration)
	ObserveWindow(category numbers.Category, admitted, evicted, duplicates, size int)
	ObserveResponse(category numbers.Category, kind string)
}

// Noop discards every observation.
type Noop struct{}

func (Noop) ObserveFetch(numbers.Category, string, time.Duration) {}

func (Noop) ObserveWindow(numbers.Category, int, int, int, int) {}

func (Noop) ObserveResponse(numbers.Category, string) {}
