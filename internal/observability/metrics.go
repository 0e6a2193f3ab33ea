package observability

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Provider outcome labels.
const (
	OutcomeOK     = "ok"
	OutcomeEmpty  = "empty"
	OutcomeFailed = "failed"
)

// Batch result labels.
const (
	BatchCommitted = "committed"
	BatchDiscarded = "discarded"
)

// Collector bundles the Prometheus metrics of the aggregation pipeline. A nil
// *Collector is valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	ProviderCalls     *prometheus.CounterVec
	ProviderDurations *prometheus.HistogramVec
	Batches           *prometheus.CounterVec
	SnapshotUpdates   prometheus.Counter
	PressureReadings  prometheus.Counter
}

// NewCollector registers the pipeline metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	calls, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_calls_total",
		Help: "Provider lookups, labeled by provider and outcome (ok, empty, failed).",
	}, []string{"provider", "outcome"}), "provider_calls_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provider_call_duration_seconds",
		Help:    "Provider lookup latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"provider"}), "provider_call_duration_seconds")
	if err != nil {
		return nil, err
	}

	batches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregation_batches_total",
		Help: "Position batches, labeled by whether their merge was committed or discarded.",
	}, []string{"result"}), "aggregation_batches_total")
	if err != nil {
		return nil, err
	}

	updates, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snapshot_updates_total",
		Help: "Number of snapshot replacements written by the engine.",
	}), "snapshot_updates_total")
	if err != nil {
		return nil, err
	}

	pressure, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pressure_readings_total",
		Help: "Number of pressure readings merged into the snapshot.",
	}), "pressure_readings_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		ProviderCalls:     calls,
		ProviderDurations: durations,
		Batches:           batches,
		SnapshotUpdates:   updates,
		PressureReadings:  pressure,
	}, nil
}

// ObserveProviderCall records one provider lookup.
func (c *Collector) ObserveProviderCall(provider, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.ProviderCalls.WithLabelValues(provider, outcome).Inc()
	c.ProviderDurations.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveBatch records the fate of one position batch.
func (c *Collector) ObserveBatch(result string) {
	if c == nil {
		return
	}
	c.Batches.WithLabelValues(result).Inc()
}

// ObserveSnapshotUpdate counts one snapshot replacement.
func (c *Collector) ObserveSnapshotUpdate() {
	if c == nil {
		return
	}
	c.SnapshotUpdates.Inc()
}

// ObservePressureReading counts one merged pressure reading.
func (c *Collector) ObservePressureReading() {
	if c == nil {
		return
	}
	c.PressureReadings.Inc()
}

// Handler exposes the collector's gatherer over HTTP.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return c, nil
}

func registerHistogramVec(reg prometheus.Registerer, h *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(h); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return h, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return c, nil
}
