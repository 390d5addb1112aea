package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/serroba/numbers-window/internal/events"
	"github.com/serroba/numbers-window/internal/handlers"
	"github.com/serroba/numbers-window/internal/metrics"
	"github.com/serroba/numbers-window/internal/numbers"
	"github.com/serroba/numbers-window/internal/upstream"
	"github.com/serroba/numbers-window/internal/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errPublish = errors.New("publish error")

type fakeFetcher struct {
	mu     sync.Mutex
	values map[numbers.Category][]float64
	err    error
	block  bool
	late   time.Duration
	calls  int
}

func (f *fakeFetcher) Fetch(ctx context.Context, c numbers.Category) ([]float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()

		return nil, ctx.Err()
	}

	if f.late > 0 {
		// Ignores the deadline and answers anyway.
		time.Sleep(f.late)
	}

	if f.err != nil {
		return nil, f.err
	}

	return append([]float64{}, f.values[c]...), nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

type capturedEvents struct {
	mu     sync.Mutex
	events []events.WindowEvent
}

func (c *capturedEvents) publish(_ context.Context, e *events.WindowEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, *e)

	return nil
}

func (c *capturedEvents) All() []events.WindowEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]events.WindowEvent(nil), c.events...)
}

type recordedResponse struct {
	category numbers.Category
	kind     string
}

type fakeRecorder struct {
	metrics.Noop

	mu        sync.Mutex
	outcomes  []string
	responses []recordedResponse
}

func (r *fakeRecorder) ObserveFetch(_ numbers.Category, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) ObserveResponse(c numbers.Category, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.responses = append(r.responses, recordedResponse{category: c, kind: kind})
}

type fixture struct {
	store    *window.Store
	fetcher  *fakeFetcher
	events   *capturedEvents
	recorder *fakeRecorder
	handler  *handlers.NumbersHandler
}

func newFixture(t *testing.T, opts ...handlers.NumbersOption) *fixture {
	t.Helper()

	f := &fixture{
		store:    window.NewStore(window.DefaultSize),
		fetcher:  &fakeFetcher{values: map[numbers.Category][]float64{}},
		events:   &capturedEvents{},
		recorder: &fakeRecorder{},
	}

	opts = append([]handlers.NumbersOption{handlers.WithRecorder(f.recorder)}, opts...)
	f.handler = handlers.NewNumbersHandler(f.store, f.fetcher, f.events.publish, zap.NewNop(), opts...)

	return f
}

func (f *fixture) seed(t *testing.T, c numbers.Category, values ...float64) {
	t.Helper()

	_, err := f.store.Apply(c, values)
	require.NoError(t, err)
}

// published waits for in-flight publishes and returns every event seen so far.
func (f *fixture) published(t *testing.T) []events.WindowEvent {
	t.Helper()

	require.NoError(t, f.handler.Shutdown())

	return f.events.All()
}

func (f *fixture) get(code string) (*handlers.NumbersResponse, error) {
	return f.handler.GetNumbers(context.Background(), &handlers.NumbersRequest{Code: code})
}

func TestGetNumbers(t *testing.T) {
	t.Run("admits all values into an empty window", func(t *testing.T) {
		f := newFixture(t)
		f.fetcher.values[numbers.Even] = []float64{2, 4, 6, 8, 10, 12}

		resp, err := f.get("e")

		require.NoError(t, err)
		assert.Equal(t, []float64{}, resp.Body.WindowPrevState)
		assert.Equal(t, []float64{2, 4, 6, 8, 10, 12}, resp.Body.WindowCurrState)
		assert.Equal(t, []float64{2, 4, 6, 8, 10, 12}, resp.Body.Numbers)
		assert.InDelta(t, 7.0, resp.Body.Avg, 1e-9)
		assert.Empty(t, resp.Body.Error)
	})

	t.Run("replaces the oldest value of a full window", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, numbers.Random, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
		f.fetcher.values[numbers.Random] = []float64{11}

		resp, err := f.get("r")

		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, resp.Body.WindowPrevState)
		assert.Equal(t, []float64{11, 2, 3, 4, 5, 6, 7, 8, 9, 10}, resp.Body.WindowCurrState)
		assert.InDelta(t, 6.5, resp.Body.Avg, 1e-9)
	})

	t.Run("leaves the window unchanged for known values", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, numbers.Even, 4, 6, 8)
		f.fetcher.values[numbers.Even] = []float64{4, 6}

		resp, err := f.get("e")

		require.NoError(t, err)
		assert.Equal(t, []float64{4, 6, 8}, resp.Body.WindowPrevState)
		assert.Equal(t, []float64{4, 6, 8}, resp.Body.WindowCurrState)
		assert.Equal(t, []float64{4, 6}, resp.Body.Numbers)
		assert.InDelta(t, 6.0, resp.Body.Avg, 1e-9)
	})

	t.Run("rejects an unknown category without fetching", func(t *testing.T) {
		f := newFixture(t)

		resp, err := f.get("x")

		assert.Nil(t, resp)

		var apiErr *handlers.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.GetStatus())
		assert.Equal(t, "Invalid number type. Use p, f, e, or r.", apiErr.Message)
		assert.Zero(t, f.fetcher.Calls())
		assert.Empty(t, f.published(t))
	})

	t.Run("serves the existing window when the fetch times out", func(t *testing.T) {
		f := newFixture(t, handlers.WithTimeout(20*time.Millisecond))
		f.seed(t, numbers.Even, 2, 4, 6)
		f.fetcher.block = true

		start := time.Now()
		resp, err := f.get("e")

		require.NoError(t, err)
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, []float64{2, 4, 6}, resp.Body.WindowPrevState)
		assert.Equal(t, []float64{2, 4, 6}, resp.Body.WindowCurrState)
		assert.Equal(t, []float64{}, resp.Body.Numbers)
		assert.InDelta(t, 4.0, resp.Body.Avg, 1e-9)
		assert.Equal(t, upstream.ErrTimeout.Error(), resp.Body.Error)
	})

	t.Run("returns 500 when the fetch fails and the window is empty", func(t *testing.T) {
		f := newFixture(t)
		f.fetcher.err = upstream.ErrNotFound

		resp, err := f.get("p")

		assert.Nil(t, resp)

		var apiErr *handlers.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.GetStatus())
		assert.Equal(t, "Failed to fetch or process numbers", apiErr.Message)
		assert.Equal(t, "upstream endpoint not found", apiErr.Details)

		snapshot, err := f.store.Snapshot(numbers.Prime)
		require.NoError(t, err)
		assert.Empty(t, snapshot)
	})

	t.Run("discards a result that arrives after the deadline", func(t *testing.T) {
		f := newFixture(t, handlers.WithTimeout(10*time.Millisecond))
		f.seed(t, numbers.Fibonacci, 1, 2, 3)
		f.fetcher.values[numbers.Fibonacci] = []float64{5, 8, 13}
		f.fetcher.late = 40 * time.Millisecond

		resp, err := f.get("f")

		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3}, resp.Body.WindowCurrState)
		assert.Equal(t, upstream.ErrTimeout.Error(), resp.Body.Error)

		snapshot, err := f.store.Snapshot(numbers.Fibonacci)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3}, snapshot)
	})

	t.Run("rounds the average to two decimals", func(t *testing.T) {
		f := newFixture(t)
		f.fetcher.values[numbers.Prime] = []float64{1, 2, 2.5}

		resp, err := f.get("p")

		require.NoError(t, err)
		assert.InDelta(t, 1.83, resp.Body.Avg, 1e-9)
	})

	t.Run("keeps categories apart", func(t *testing.T) {
		f := newFixture(t)
		f.fetcher.values[numbers.Prime] = []float64{2, 3}
		f.fetcher.values[numbers.Fibonacci] = []float64{1, 1, 2}

		_, err := f.get("p")
		require.NoError(t, err)

		resp, err := f.get("f")

		require.NoError(t, err)
		assert.Equal(t, []float64{}, resp.Body.WindowPrevState)
		assert.Equal(t, []float64{1, 2}, resp.Body.WindowCurrState)
	})
}

func TestGetNumbers_Events(t *testing.T) {
	t.Run("publishes the applied update", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, numbers.Even, 2)
		f.fetcher.values[numbers.Even] = []float64{2, 4}

		ctx := handlers.ContextWithRequestMeta(context.Background(), handlers.RequestMeta{RequestID: "req-1"})
		_, err := f.handler.GetNumbers(ctx, &handlers.NumbersRequest{Code: "e"})
		require.NoError(t, err)

		published := f.published(t)
		require.Len(t, published, 1)

		e := published[0]
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, "req-1", e.RequestID)
		assert.Equal(t, "e", e.Category)
		assert.Equal(t, []float64{2}, e.Previous)
		assert.Equal(t, []float64{2, 4}, e.Current)
		assert.Equal(t, []float64{2, 4}, e.Fetched)
		assert.Equal(t, 1, e.Admitted)
		assert.False(t, e.Degraded)
		assert.InDelta(t, 3.0, e.Average, 1e-9)
	})

	t.Run("publishes degraded responses", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, numbers.Random, 7)
		f.fetcher.err = upstream.ErrMalformedPayload

		_, err := f.get("r")
		require.NoError(t, err)

		published := f.published(t)
		require.Len(t, published, 1)
		assert.True(t, published[0].Degraded)
		assert.Equal(t, upstream.ErrMalformedPayload.Error(), published[0].Error)
		assert.Equal(t, []float64{7}, published[0].Current)
	})

	t.Run("does not publish failed requests", func(t *testing.T) {
		f := newFixture(t)
		f.fetcher.err = upstream.ErrTimeout

		_, err := f.get("r")

		require.Error(t, err)
		assert.Empty(t, f.published(t))
	})

	t.Run("ignores publish failures", func(t *testing.T) {
		store := window.NewStore(window.DefaultSize)
		fetcher := &fakeFetcher{values: map[numbers.Category][]float64{numbers.Prime: {2, 3}}}
		failing := func(context.Context, *events.WindowEvent) error { return errPublish }
		h := handlers.NewNumbersHandler(store, fetcher, failing, zap.NewNop())

		resp, err := h.GetNumbers(context.Background(), &handlers.NumbersRequest{Code: "p"})

		require.NoError(t, err)
		assert.Equal(t, []float64{2, 3}, resp.Body.WindowCurrState)
		assert.NoError(t, h.Shutdown())
	})

	t.Run("a stalled publisher does not delay the response", func(t *testing.T) {
		store := window.NewStore(window.DefaultSize)
		fetcher := &fakeFetcher{values: map[numbers.Category][]float64{numbers.Fibonacci: {1, 2}}}
		release := make(chan struct{})
		stalled := func(context.Context, *events.WindowEvent) error {
			select {
			case <-release:
			case <-time.After(2 * time.Second):
			}

			return nil
		}
		h := handlers.NewNumbersHandler(store, fetcher, stalled, zap.NewNop(),
			handlers.WithTimeout(upstream.DefaultTimeout))
		t.Cleanup(func() {
			close(release)
			_ = h.Shutdown()
		})

		start := time.Now()
		resp, err := h.GetNumbers(context.Background(), &handlers.NumbersRequest{Code: "f"})
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2}, resp.Body.WindowCurrState)
		assert.Less(t, elapsed, upstream.DefaultTimeout)
	})

	t.Run("publish outlives the request but not the publish timeout", func(t *testing.T) {
		store := window.NewStore(window.DefaultSize)
		fetcher := &fakeFetcher{values: map[numbers.Category][]float64{numbers.Even: {2}}}
		ended := make(chan error, 1)
		waitForCtx := func(ctx context.Context, _ *events.WindowEvent) error {
			<-ctx.Done()
			ended <- ctx.Err()

			return ctx.Err()
		}
		h := handlers.NewNumbersHandler(store, fetcher, waitForCtx, zap.NewNop(),
			handlers.WithPublishTimeout(30*time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		_, err := h.GetNumbers(ctx, &handlers.NumbersRequest{Code: "e"})
		require.NoError(t, err)
		cancel()

		require.NoError(t, h.Shutdown())
		assert.ErrorIs(t, <-ended, context.DeadlineExceeded)
	})
}

func TestGetNumbers_Metrics(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		seed    bool
		outcome string
		kind    string
	}{
		{name: "success", outcome: metrics.OutcomeSuccess, kind: metrics.ResponseOK},
		{name: "timeout", err: upstream.ErrTimeout, seed: true, outcome: metrics.OutcomeTimeout, kind: metrics.ResponseDegraded},
		{name: "not found", err: upstream.ErrNotFound, outcome: metrics.OutcomeNotFound, kind: metrics.ResponseUnavailable},
		{name: "bad status", err: upstream.ErrUnexpectedStatus, seed: true, outcome: metrics.OutcomeStatus, kind: metrics.ResponseDegraded},
		{name: "malformed", err: upstream.ErrMalformedPayload, outcome: metrics.OutcomeMalformed, kind: metrics.ResponseUnavailable},
		{name: "transport", err: errors.New("connection refused"), seed: true, outcome: metrics.OutcomeError, kind: metrics.ResponseDegraded},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.fetcher.err = tc.err
			f.fetcher.values[numbers.Prime] = []float64{2}

			if tc.seed {
				f.seed(t, numbers.Prime, 3)
			}

			_, _ = f.get("p")

			assert.Equal(t, []string{tc.outcome}, f.recorder.outcomes)
			assert.Equal(t, []recordedResponse{{category: numbers.Prime, kind: tc.kind}}, f.recorder.responses)
		})
	}
}

func TestGetWindow(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := window.NewStore(4, window.WithClock(func() time.Time { return at }))
	h := handlers.NewNumbersHandler(store, &fakeFetcher{}, nil, zap.NewNop(), handlers.WithWindowSize(4))

	t.Run("returns an empty window", func(t *testing.T) {
		resp, err := h.GetWindow(context.Background(), &handlers.WindowRequest{Code: "f"})

		require.NoError(t, err)
		assert.Equal(t, "f", resp.Body.Category)
		assert.Equal(t, "fibonacci", resp.Body.Name)
		assert.Equal(t, 4, resp.Body.Size)
		assert.Empty(t, resp.Body.Entries)
		assert.Zero(t, resp.Body.Avg)
	})

	t.Run("returns entries with insertion times", func(t *testing.T) {
		_, err := store.Apply(numbers.Prime, []float64{2, 3, 5})
		require.NoError(t, err)

		resp, err := h.GetWindow(context.Background(), &handlers.WindowRequest{Code: "p"})

		require.NoError(t, err)
		require.Len(t, resp.Body.Entries, 3)
		assert.InDelta(t, 2.0, resp.Body.Entries[0].Value, 1e-9)
		assert.Equal(t, at, resp.Body.Entries[0].InsertedAt)
		assert.InDelta(t, 10.0/3, resp.Body.Mean, 1e-9)
		assert.InDelta(t, 3.33, resp.Body.Avg, 1e-9)
	})

	t.Run("rejects an unknown category", func(t *testing.T) {
		_, err := h.GetWindow(context.Background(), &handlers.WindowRequest{Code: "z"})

		var apiErr *handlers.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	})
}

func newTestServer(t *testing.T, f *fixture) *chi.Mux {
	t.Helper()

	router := chi.NewMux()

	cfg := huma.DefaultConfig("Test", "1.0.0")
	cfg.CreateHooks = nil

	api := humachi.New(router, cfg)
	handlers.RegisterRoutes(api, f.handler)

	return router
}

func TestRoutes(t *testing.T) {
	f := newFixture(t)
	f.fetcher.values[numbers.Even] = []float64{2, 4, 6, 8, 10, 12}
	router := newTestServer(t, f)

	serve := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		return w
	}

	t.Run("numbers", func(t *testing.T) {
		w := serve("/numbers/e")

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{
			"windowPrevState": [],
			"windowCurrState": [2, 4, 6, 8, 10, 12],
			"numbers": [2, 4, 6, 8, 10, 12],
			"avg": 7
		}`, w.Body.String())
	})

	t.Run("invalid category", func(t *testing.T) {
		w := serve("/numbers/x")

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error": "Invalid number type. Use p, f, e, or r."}`, w.Body.String())
	})

	t.Run("fetch failure on empty window", func(t *testing.T) {
		f.fetcher.err = upstream.ErrNotFound
		defer func() { f.fetcher.err = nil }()

		w := serve("/numbers/p")

		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{
			"error": "Failed to fetch or process numbers",
			"details": "upstream endpoint not found"
		}`, w.Body.String())
	})

	t.Run("degraded response", func(t *testing.T) {
		f.fetcher.err = upstream.ErrTimeout
		defer func() { f.fetcher.err = nil }()

		w := serve("/numbers/e")

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{
			"windowPrevState": [2, 4, 6, 8, 10, 12],
			"windowCurrState": [2, 4, 6, 8, 10, 12],
			"numbers": [],
			"avg": 7,
			"error": "request timed out"
		}`, w.Body.String())
	})

	t.Run("window", func(t *testing.T) {
		w := serve("/windows/e")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"insertedAt"`)
		assert.Contains(t, w.Body.String(), `"size":10`)
	})
}
