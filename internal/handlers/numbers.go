package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/serroba/numbers-window/internal/events"
	"github.com/serroba/numbers-window/internal/messaging"
	"github.com/serroba/numbers-window/internal/metrics"
	"github.com/serroba/numbers-window/internal/numbers"
	"github.com/serroba/numbers-window/internal/upstream"
	"github.com/serroba/numbers-window/internal/window"
	"go.uber.org/zap"
)

// WindowStore is the part of window.Store the handler depends on.
type WindowStore interface {
	Apply(c numbers.Category, values []float64) (window.Result, error)
	View(c numbers.Category) ([]float64, float64, error)
	Inspect(c numbers.Category) ([]window.Entry, float64, error)
}

// DefaultPublishTimeout bounds the delivery of one window event.
const DefaultPublishTimeout = 2 * time.Second

// NumbersHandler serves the sliding window endpoints.
type NumbersHandler struct {
	windows    WindowStore
	fetcher    upstream.Fetcher
	timeout    time.Duration
	windowSize int
	publish    messaging.Publish[events.WindowEvent]
	recorder   metrics.Recorder
	logger     *zap.Logger
	now        func() time.Time

	publishTimeout time.Duration
	publishing     sync.WaitGroup
}

// NumbersOption configures a NumbersHandler.
type NumbersOption func(*NumbersHandler)

// WithTimeout bounds each fetch. Zero leaves the deadline to the fetcher.
func WithTimeout(d time.Duration) NumbersOption {
	return func(h *NumbersHandler) {
		h.timeout = d
	}
}

// WithWindowSize sets the size reported by the window endpoint.
func WithWindowSize(size int) NumbersOption {
	return func(h *NumbersHandler) {
		h.windowSize = size
	}
}

// WithRecorder sets where fetch and response metrics go.
func WithRecorder(r metrics.Recorder) NumbersOption {
	return func(h *NumbersHandler) {
		h.recorder = r
	}
}

// WithPublishTimeout bounds each event publish.
func WithPublishTimeout(d time.Duration) NumbersOption {
	return func(h *NumbersHandler) {
		h.publishTimeout = d
	}
}

// WithClock sets the time source for event timestamps and durations.
func WithClock(now func() time.Time) NumbersOption {
	return func(h *NumbersHandler) {
		h.now = now
	}
}

// NewNumbersHandler creates a new numbers handler.
func NewNumbersHandler(
	windows WindowStore,
	fetcher upstream.Fetcher,
	publish messaging.Publish[events.WindowEvent],
	logger *zap.Logger,
	opts ...NumbersOption,
) *NumbersHandler {
	h := &NumbersHandler{
		windows:    windows,
		fetcher:    fetcher,
		timeout:    upstream.DefaultTimeout,
		windowSize: window.DefaultSize,
		publish:    publish,
		recorder:   metrics.Noop{},
		logger:     logger,
		now:        time.Now,

		publishTimeout: DefaultPublishTimeout,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// GetNumbers fetches fresh numbers for a category, folds them into its window
// and returns the window before and after together with the mean. When the
// fetch fails the existing window is served unchanged, or a 500 is returned
// if there is nothing to serve.
func (h *NumbersHandler) GetNumbers(ctx context.Context, req *NumbersRequest) (*NumbersResponse, error) {
	start := h.now()

	category, err := numbers.ParseCategory(req.Code)
	if err != nil {
		h.logger.Debug("invalid category requested", zap.String("code", req.Code))

		return nil, ErrInvalidCategory()
	}

	meta := RequestMetaFromContext(ctx)
	logger := h.logger.With(
		zap.String("category", category.Name()),
		zap.String("request_id", meta.RequestID),
	)

	fetched, fetchErr := h.fetch(ctx, category)
	outcome := fetchOutcome(fetchErr)
	h.recorder.ObserveFetch(category, outcome, h.now().Sub(start))

	event := events.NewWindowEvent(category, meta.RequestID, h.now())

	var (
		resp    *NumbersResponse
		respErr error
	)

	if fetchErr != nil {
		logger.Warn("upstream fetch failed", zap.String("outcome", outcome), zap.Error(fetchErr))
		resp, respErr = h.fallback(category, fetchErr, event)
	} else {
		resp, respErr = h.apply(category, fetched, event)
	}

	if respErr != nil {
		h.recorder.ObserveResponse(category, metrics.ResponseUnavailable)
	} else {
		h.publishEvent(ctx, logger, event)
	}

	logger.Info("numbers request processed",
		zap.String("outcome", outcome),
		zap.Bool("degraded", event.Degraded),
		zap.Int("fetched", len(fetched)),
		zap.Duration("processing_time", h.now().Sub(start)),
	)

	return resp, respErr
}

// fetch calls the fetcher under the handler deadline. A result arriving after
// the deadline is dropped so it can never reach the window.
func (h *NumbersHandler) fetch(ctx context.Context, c numbers.Category) ([]float64, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	values, err := h.fetcher.Fetch(ctx, c)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, upstream.ErrTimeout
	}

	if err != nil {
		return nil, err
	}

	return values, nil
}

func (h *NumbersHandler) apply(c numbers.Category, fetched []float64, event *events.WindowEvent) (*NumbersResponse, error) {
	res, err := h.windows.Apply(c, fetched)
	if err != nil {
		return nil, ErrFetchFailed(err)
	}

	event.Previous = res.Previous
	event.Current = res.Current
	event.Fetched = fetched
	event.Average = res.Average
	event.Admitted = res.Stats.Admitted
	event.Evicted = res.Stats.Evicted

	h.recorder.ObserveResponse(c, metrics.ResponseOK)

	return &NumbersResponse{Body: NumbersBody{
		WindowPrevState: res.Previous,
		WindowCurrState: res.Current,
		Numbers:         fetched,
		Avg:             roundAvg(res.Average),
	}}, nil
}

func (h *NumbersHandler) fallback(c numbers.Category, cause error, event *events.WindowEvent) (*NumbersResponse, error) {
	snapshot, avg, err := h.windows.View(c)
	if err != nil {
		return nil, ErrFetchFailed(err)
	}

	if len(snapshot) == 0 {
		return nil, ErrFetchFailed(cause)
	}

	event.Previous = snapshot
	event.Current = snapshot
	event.Fetched = []float64{}
	event.Average = avg
	event.Degraded = true
	event.Error = cause.Error()

	h.recorder.ObserveResponse(c, metrics.ResponseDegraded)

	return &NumbersResponse{Body: NumbersBody{
		WindowPrevState: snapshot,
		WindowCurrState: snapshot,
		Numbers:         []float64{},
		Avg:             roundAvg(avg),
		Error:           cause.Error(),
	}}, nil
}

// publishEvent hands the event to the publisher without holding up the
// response. The publish outlives the request but not publishTimeout.
func (h *NumbersHandler) publishEvent(ctx context.Context, logger *zap.Logger, event *events.WindowEvent) {
	if h.publish == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.publishTimeout)

	h.publishing.Go(func() {
		defer cancel()

		if err := h.publish(ctx, event); err != nil {
			logger.Error("failed to publish window event",
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
		}
	})
}

// Shutdown waits for in-flight event publishes.
func (h *NumbersHandler) Shutdown() error {
	h.publishing.Wait()

	return nil
}

// GetWindow returns the current window of a category without calling the provider.
func (h *NumbersHandler) GetWindow(_ context.Context, req *WindowRequest) (*WindowResponse, error) {
	category, err := numbers.ParseCategory(req.Code)
	if err != nil {
		return nil, ErrInvalidCategory()
	}

	entries, mean, err := h.windows.Inspect(category)
	if err != nil {
		return nil, NewAPIError(http.StatusInternalServerError, "Failed to read window", err.Error())
	}

	resp := &WindowResponse{}
	resp.Body.Category = category.Code()
	resp.Body.Name = category.Name()
	resp.Body.Size = h.windowSize
	resp.Body.Entries = entries
	resp.Body.Avg = roundAvg(mean)
	resp.Body.Mean = mean

	return resp, nil
}

func fetchOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, upstream.ErrTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, upstream.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, upstream.ErrUnexpectedStatus):
		return metrics.OutcomeStatus
	case errors.Is(err, upstream.ErrMalformedPayload):
		return metrics.OutcomeMalformed
	default:
		return metrics.OutcomeError
	}
}

// roundAvg rounds to 2 decimal places, half away from zero.
func roundAvg(v float64) float64 {
	return math.Round(v*100) / 100
}
