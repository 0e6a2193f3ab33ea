package location

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/location-data-aggregation/internal/logging"
	"github.com/i474232898/location-data-aggregation/internal/observability"
)

const (
	// DefaultInterval is the position update interval.
	DefaultInterval = 60 * time.Second
	// DefaultStationLimit bounds the nearest-station list.
	DefaultStationLimit = 5
)

// Sources bundles the collaborators the engine reads from.
type Sources struct {
	Positions PositionObserver
	Pressure  PressureObserver
	Elevation ElevationProvider
	Address   AddressProvider
	Stations  StationProvider
}

// Engine subscribes to position and pressure updates and, for every fix,
// queries the elevation, address and station providers concurrently and
// merges the results into the store.
//
// Batches for overlapping fixes are not serialised. If a new fix arrives
// before the previous batch has resolved, both run to completion and the one
// whose merge lands last wins the snapshot. With the default one-minute
// interval this is rare and accepted.
type Engine struct {
	sources      Sources
	store        Store
	interval     time.Duration
	stationLimit int
	log          logging.Logger
	metrics      *observability.Collector

	mu         sync.Mutex
	running    bool
	generation uint64
	cancel     context.CancelFunc

	// inflight tracks observer loops, batches and their provider calls.
	inflight sync.WaitGroup
}

// Option customises an Engine.
type Option func(*Engine)

// WithInterval sets the position update interval.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithStationLimit sets how many nearest stations are kept.
func WithStationLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.stationLimit = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		e.log = logging.OrNoop(l)
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *observability.Collector) Option {
	return func(e *Engine) {
		e.metrics = c
	}
}

// NewEngine creates a new Engine in the idle state.
func NewEngine(store Store, sources Sources, opts ...Option) *Engine {
	e := &Engine{
		sources:      sources,
		store:        store,
		interval:     DefaultInterval,
		stationLimit: DefaultStationLimit,
		log:          logging.Noop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Running reports whether the engine is subscribed to its observers.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start subscribes to the position and pressure observers. It is a no-op
// while the engine is already running.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.running = true
	e.generation++
	e.cancel = cancel
	gen := e.generation

	e.log.Info(ctx, "starting location updates",
		logging.String("interval", e.interval.String()),
		logging.Int("station_limit", e.stationLimit))

	if e.sources.Positions != nil {
		positions := e.sources.Positions.Observe(ctx, e.interval)
		e.inflight.Add(1)
		go e.consumePositions(ctx, gen, positions)
	}
	if e.sources.Pressure != nil {
		readings := e.sources.Pressure.Observe(ctx)
		e.inflight.Add(1)
		go e.consumePressure(ctx, gen, readings)
	}
}

// Stop cancels both subscriptions and every in-flight batch. Results of
// batches that resolve afterwards are discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}
	e.running = false
	e.generation++
	e.cancel()
	e.cancel = nil

	e.log.Info(context.Background(), "location updates stopped")
}

// Wait blocks until the observer loops, batches and provider calls started
// by previous runs have all returned.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// commit applies fn to the store if gen is still the current run. The check
// and the write happen under the engine lock so a concurrent Stop cannot slip
// in between.
func (e *Engine) commit(gen uint64, fn func(Snapshot) Snapshot) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || e.generation != gen {
		return false
	}
	e.store.Update(fn)
	e.metrics.ObserveSnapshotUpdate()
	return true
}

func (e *Engine) consumePositions(ctx context.Context, gen uint64, positions <-chan Position) {
	defer e.inflight.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case pos, ok := <-positions:
			if !ok {
				return
			}
			e.handleFix(ctx, gen, pos)
		}
	}
}

func (e *Engine) consumePressure(ctx context.Context, gen uint64, readings <-chan *PressureReading) {
	defer e.inflight.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case reading, ok := <-readings:
			if !ok {
				return
			}
			if e.commit(gen, func(s Snapshot) Snapshot { return applyPressure(s, reading) }) {
				e.metrics.ObservePressureReading()
			}
		}
	}
}

func (e *Engine) handleFix(ctx context.Context, gen uint64, pos Position) {
	e.log.Debug(ctx, "position update",
		logging.Float64("lat", pos.Latitude),
		logging.Float64("lon", pos.Longitude))

	if !e.commit(gen, func(s Snapshot) Snapshot { return applyPosition(s, pos) }) {
		return
	}

	e.inflight.Add(1)
	go e.runBatch(ctx, gen, pos)
}

// runBatch queries the three providers concurrently, waits for all of them
// and merges the result in one write.
func (e *Engine) runBatch(ctx context.Context, gen uint64, pos Position) {
	defer e.inflight.Done()

	log := e.log.With(logging.String("batch_id", uuid.NewString()))
	result := BatchResult{Position: pos}

	var wg sync.WaitGroup
	e.spawn(&wg, func() {
		result.Elevation = timed(e, providerName(e.sources.Elevation), func() Outcome[*ElevationReading] {
			if e.sources.Elevation == nil {
				return Ok[*ElevationReading](nil)
			}
			return e.sources.Elevation.Fetch(ctx, pos)
		})
	})
	e.spawn(&wg, func() {
		result.Address = timed(e, providerName(e.sources.Address), func() Outcome[*AddressInfo] {
			if e.sources.Address == nil {
				return Ok[*AddressInfo](nil)
			}
			return e.sources.Address.Fetch(ctx, pos)
		})
	})
	e.spawn(&wg, func() {
		result.Stations = timed(e, providerName(e.sources.Stations), func() Outcome[[]StationInfo] {
			if e.sources.Stations == nil {
				return Ok[[]StationInfo](nil)
			}
			return e.sources.Stations.FetchNearest(ctx, pos, e.stationLimit)
		})
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		log.Debug(ctx, "batch abandoned")
		e.metrics.ObserveBatch(observability.BatchDiscarded)
		return
	case <-done:
	}

	if !e.commit(gen, result.Apply) {
		log.Debug(ctx, "batch discarded after stop")
		e.metrics.ObserveBatch(observability.BatchDiscarded)
		return
	}
	e.metrics.ObserveBatch(observability.BatchCommitted)

	if msg := result.StatusMessage(); msg != "" {
		log.Warn(ctx, "batch merged with errors", logging.String("status", msg))
	} else {
		log.Debug(ctx, "batch merged")
	}
}

func (e *Engine) spawn(wg *sync.WaitGroup, fn func()) {
	wg.Add(1)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		defer wg.Done()
		fn()
	}()
}

type namer interface {
	Name() string
}

func providerName(p namer) string {
	if p == nil {
		return "none"
	}
	return p.Name()
}

func timed[T any](e *Engine, provider string, call func() Outcome[T]) Outcome[T] {
	start := time.Now()
	out := call()
	e.metrics.ObserveProviderCall(provider, classify(out), time.Since(start))
	return out
}

func classify[T any](o Outcome[T]) string {
	v, ok := o.Value()
	if !ok {
		return observability.OutcomeFailed
	}
	switch x := any(v).(type) {
	case []StationInfo:
		if len(x) == 0 {
			return observability.OutcomeEmpty
		}
	case *ElevationReading:
		if x == nil {
			return observability.OutcomeEmpty
		}
	case *AddressInfo:
		if x == nil {
			return observability.OutcomeEmpty
		}
	case *StationInfo:
		if x == nil {
			return observability.OutcomeEmpty
		}
	}
	return observability.OutcomeOK
}
