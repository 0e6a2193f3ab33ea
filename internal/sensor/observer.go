package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/location-data-aggregation/internal/location"
	"github.com/i474232898/location-data-aggregation/internal/logging"
)

// DefaultInterval is the polling period when none is configured.
const DefaultInterval = time.Second

// PressureObserver polls a Source and streams readings. A nil source means
// the device has no barometer.
type PressureObserver struct {
	source   Source
	interval time.Duration
	log      logging.Logger
}

// NewPressureObserver creates an observer polling source every interval,
// or DefaultInterval when interval is not positive.
func NewPressureObserver(source Source, interval time.Duration, log logging.Logger) *PressureObserver {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &PressureObserver{source: source, interval: interval, log: logging.OrNoop(log)}
}

// Observe streams readings until ctx is cancelled. Without a sensor it sends
// a single nil and closes the stream. A consumer that falls behind only sees
// the newest reading.
func (p *PressureObserver) Observe(ctx context.Context) <-chan *location.PressureReading {
	ch := make(chan *location.PressureReading, 1)

	if p.source == nil {
		p.log.Info(ctx, "pressure: no sensor available")
		ch <- nil
		close(ch)
		return ch
	}

	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	var (
		mu     sync.Mutex
		closed bool
		last   *float32
	)
	_, err := scheduler.Every(p.interval).Do(func() {
		if ctx.Err() != nil {
			return
		}
		hpa, err := p.source.Read()
		if err != nil {
			p.log.Warn(ctx, "pressure: read failed",
				logging.String("source", p.source.Name()),
				logging.Err(err),
			)
			return
		}
		if last != nil && *last == hpa {
			return
		}
		last = &hpa

		mu.Lock()
		defer mu.Unlock()
		if !closed {
			offer(ch, &location.PressureReading{Hectopascals: hpa})
		}
	})
	if err != nil {
		p.log.Error(ctx, "pressure: schedule failed", logging.Err(err))
		close(ch)
		return ch
	}

	scheduler.StartAsync()
	p.log.Info(ctx, "pressure: observing", logging.String("source", p.source.Name()))

	go func() {
		<-ctx.Done()
		scheduler.Stop()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()

	return ch
}

// offer replaces any unread reading with r. Callers serialise sends.
func offer(ch chan *location.PressureReading, r *location.PressureReading) {
	select {
	case ch <- r:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- r:
	default:
	}
}
