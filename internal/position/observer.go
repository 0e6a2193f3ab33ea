package position

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/location-data-aggregation/internal/location"
	"github.com/i474232898/location-data-aggregation/internal/logging"
)

// Observer polls a Reader on a gocron schedule and streams valid fixes.
// Only one subscription is active at a time.
type Observer struct {
	reader Reader
	log    logging.Logger

	mu     sync.Mutex
	active *subscription
	last   *location.Position

	connMu    sync.Mutex
	connected bool
}

type subscription struct {
	ctx       context.Context
	scheduler *gocron.Scheduler

	mu     sync.Mutex
	ch     chan location.Position
	closed bool
}

// NewObserver creates an Observer for reader.
func NewObserver(reader Reader, log logging.Logger) *Observer {
	return &Observer{reader: reader, log: logging.OrNoop(log)}
}

// Observe starts polling every interval and returns the position stream.
// While a subscription is active further calls return the same stream. The
// last known position, if any, is delivered first. Cancelling ctx stops the
// schedule and closes the stream.
func (o *Observer) Observe(ctx context.Context, interval time.Duration) <-chan location.Position {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active != nil && o.active.ctx.Err() == nil {
		return o.active.ch
	}
	if interval <= 0 {
		interval = location.DefaultInterval
	}

	sub := &subscription{
		ctx:       ctx,
		scheduler: gocron.NewScheduler(time.UTC),
		ch:        make(chan location.Position, 1),
	}
	if o.last != nil {
		sub.ch <- *o.last
	}

	sub.scheduler.SingletonModeAll()
	if _, err := sub.scheduler.Every(interval).Do(o.poll, sub); err != nil {
		o.log.Error(ctx, "position: schedule failed", logging.Err(err))
		sub.close()
		return sub.ch
	}

	o.active = sub
	sub.scheduler.StartAsync()
	o.log.Info(ctx, "position: observing",
		logging.String("reader", o.reader.Name()),
		logging.String("interval", interval.String()),
	)

	go func() {
		<-ctx.Done()
		o.release(sub)
	}()

	return sub.ch
}

// Last returns the most recent valid position seen by any subscription.
func (o *Observer) Last() (location.Position, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return location.Position{}, false
	}
	return *o.last, true
}

func (o *Observer) poll(sub *subscription) {
	if sub.ctx.Err() != nil {
		return
	}

	fix, err := o.read(sub.ctx)
	if err != nil {
		o.log.Warn(sub.ctx, "position: read failed",
			logging.String("reader", o.reader.Name()),
			logging.Err(err),
		)
		return
	}
	if fix == nil || !fix.Valid {
		o.log.Debug(sub.ctx, "position: no fix")
		return
	}

	pos := fix.Position()
	o.mu.Lock()
	o.last = &pos
	o.mu.Unlock()

	sub.emit(pos)
}

// read connects on demand, so a receiver that is unplugged at start-up is
// picked up on a later tick.
func (o *Observer) read(ctx context.Context) (*Fix, error) {
	o.connMu.Lock()
	defer o.connMu.Unlock()

	if !o.connected {
		if err := o.reader.Connect(); err != nil {
			return nil, err
		}
		o.connected = true
		o.log.Info(ctx, "position: reader connected", logging.String("reader", o.reader.Name()))
	}
	return o.reader.Read()
}

func (o *Observer) release(sub *subscription) {
	sub.scheduler.Stop()
	sub.close()

	o.mu.Lock()
	if o.active == sub {
		o.active = nil
	}
	o.mu.Unlock()

	o.disconnect()
	o.log.Info(context.Background(), "position: stopped observing")
}

func (o *Observer) disconnect() {
	o.connMu.Lock()
	defer o.connMu.Unlock()

	o.mu.Lock()
	busy := o.active != nil
	o.mu.Unlock()
	if busy || !o.connected {
		return
	}

	if err := o.reader.Close(); err != nil {
		o.log.Warn(context.Background(), "position: close reader", logging.Err(err))
	}
	o.connected = false
}

func (s *subscription) emit(pos location.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- pos:
	case <-s.ctx.Done():
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
