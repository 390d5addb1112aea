package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/serroba/numbers-window/internal/numbers"
)

// Prom is a Recorder backed by Prometheus collectors.
type Prom struct {
	fetches    *prometheus.CounterVec
	fetchTime  *prometheus.HistogramVec
	admitted   *prometheus.CounterVec
	evicted    *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	windowSize *prometheus.GaugeVec
	responses  *prometheus.CounterVec
}

// NewProm creates the collectors and registers them with reg.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	category := []string{"category"}

	p := &Prom{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_fetches_total",
			Help:      "Upstream fetches by category and outcome",
		}, []string{"category", "outcome"}),
		fetchTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_fetch_seconds",
			Help:      "Upstream fetch latency",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1},
		}, category),
		admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_admitted_total",
			Help:      "Values admitted into a window",
		}, category),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_evicted_total",
			Help:      "Values evicted from a full window",
		}, category),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_duplicates_total",
			Help:      "Incoming values skipped because they were already present",
		}, category),
		windowSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_size",
			Help:      "Current number of values held per category",
		}, category),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Numbers responses by category and kind",
		}, []string{"category", "kind"}),
	}

	reg.MustRegister(p.fetches, p.fetchTime, p.admitted, p.evicted, p.duplicates, p.windowSize, p.responses)

	return p
}

func (p *Prom) ObserveFetch(c numbers.Category, outcome string, elapsed time.Duration) {
	p.fetches.WithLabelValues(c.Name(), outcome).Inc()
	p.fetchTime.WithLabelValues(c.Name()).Observe(elapsed.Seconds())
}

func (p *Prom) ObserveWindow(c numbers.Category, admitted, evicted, duplicates, size int) {
	name := c.Name()

	if admitted > 0 {
		p.admitted.WithLabelValues(name).Add(float64(admitted))
	}

	if evicted > 0 {
		p.evicted.WithLabelValues(name).Add(float64(evicted))
	}

	if duplicates > 0 {
		p.duplicates.WithLabelValues(name).Add(float64(duplicates))
	}

	p.windowSize.WithLabelValues(name).Set(float64(size))
}

func (p *Prom) ObserveResponse(c numbers.Category, kind string) {
	p.responses.WithLabelValues(c.Name(), kind).Inc()
}

// Compile-time check.
var _ Recorder = (*Prom)(nil)
