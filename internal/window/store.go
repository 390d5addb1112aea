package window

import (
	"sync"
	"time"

	"github.com/serroba/numbers-window/internal/metrics"
	"github.com/serroba/numbers-window/internal/numbers"
)

// Result is the outcome of Apply: the window before and after the update,
// the mean of the updated window and what the update did.
type Result struct {
	Previous []float64
	Current  []float64
	Average  float64
	Stats    Stats
}

// Store holds one window per category. Each window has its own lock, so
// requests for different categories never contend.
type Store struct {
	windows  map[numbers.Category]*guarded
	recorder metrics.Recorder
}

type guarded struct {
	mu sync.Mutex
	w  *Window
}

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	now      func() time.Time
	recorder metrics.Recorder
}

// WithClock sets the time source used to stamp admitted entries.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		o.now = now
	}
}

// WithRecorder sets where admission statistics are reported.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *storeOptions) {
		o.recorder = r
	}
}

// NewStore creates a store with an empty window of the given size for every category.
func NewStore(size int, opts ...Option) *Store {
	o := storeOptions{now: time.Now, recorder: metrics.Noop{}}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{
		windows:  make(map[numbers.Category]*guarded, len(numbers.Categories())),
		recorder: o.recorder,
	}

	for _, c := range numbers.Categories() {
		s.windows[c] = &guarded{w: New(size, o.now)}
	}

	return s
}

// Update folds values into the category's window.
func (s *Store) Update(c numbers.Category, values []float64) (Stats, error) {
	g, err := s.window(c)
	if err != nil {
		return Stats{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	stats := g.w.Add(values)
	s.recorder.ObserveWindow(c, stats.Admitted, stats.Evicted, stats.Duplicates, g.w.Len())

	return stats, nil
}

// Snapshot returns a copy of the category's values in slot order.
func (s *Store) Snapshot(c numbers.Category) ([]float64, error) {
	g, err := s.window(c)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.w.Values(), nil
}

// Entries returns a copy of the category's entries, including insertion times.
func (s *Store) Entries(c numbers.Category) ([]Entry, error) {
	g, err := s.window(c)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.w.Entries(), nil
}

// Average returns the unrounded mean of the category's window, 0 when empty.
func (s *Store) Average(c numbers.Category) (float64, error) {
	g, err := s.window(c)
	if err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.w.Average(), nil
}

// View returns the current values and their mean as one consistent read.
func (s *Store) View(c numbers.Category) ([]float64, float64, error) {
	g, err := s.window(c)
	if err != nil {
		return nil, 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.w.Values(), g.w.Average(), nil
}

// Inspect returns the entries of a category together with their mean, read
// under one lock so the two always agree.
func (s *Store) Inspect(c numbers.Category) ([]Entry, float64, error) {
	g, err := s.window(c)
	if err != nil {
		return nil, 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.w.Entries(), g.w.Average(), nil
}

// Apply snapshots, updates, re-snapshots and averages the category's window
// while holding its lock, so concurrent requests for the same category see
// consistent before/after pairs.
func (s *Store) Apply(c numbers.Category, values []float64) (Result, error) {
	g, err := s.window(c)
	if err != nil {
		return Result{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	res := Result{Previous: g.w.Values()}
	res.Stats = g.w.Add(values)
	res.Current = g.w.Values()
	res.Average = g.w.Average()

	s.recorder.ObserveWindow(c, res.Stats.Admitted, res.Stats.Evicted, res.Stats.Duplicates, len(res.Current))

	return res, nil
}

func (s *Store) window(c numbers.Category) (*guarded, error) {
	g, ok := s.windows[c]
	if !ok {
		return nil, numbers.ErrInvalidCategory
	}

	return g, nil
}
