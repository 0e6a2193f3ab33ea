package location

import (
	"context"
	"time"
)

// ElevationProvider looks up the ground elevation at a position.
type ElevationProvider interface {
	Name() string
	Fetch(ctx context.Context, pos Position) Outcome[*ElevationReading]
}

// AddressProvider reverse-geocodes a position.
type AddressProvider interface {
	Name() string
	Fetch(ctx context.Context, pos Position) Outcome[*AddressInfo]
}

// StationProvider finds railway stations near a position.
type StationProvider interface {
	Name() string
	// Fetch returns the single nearest station, if any.
	Fetch(ctx context.Context, pos Position) Outcome[*StationInfo]
	// FetchNearest returns up to limit stations in the source's own order.
	FetchNearest(ctx context.Context, pos Position, limit int) Outcome[[]StationInfo]
}

// PositionObserver streams position fixes until ctx is cancelled, at which
// point the channel is closed.
type PositionObserver interface {
	Observe(ctx context.Context, interval time.Duration) <-chan Position
}

// PressureObserver streams pressure readings until ctx is cancelled. A nil
// reading means the device has no pressure sensor; in that case it is the
// only value sent before the channel is closed.
type PressureObserver interface {
	Observe(ctx context.Context) <-chan *PressureReading
}

// Store is the contract the snapshot store must satisfy for the engine.
type Store interface {
	Current() Snapshot
	Update(fn func(Snapshot) Snapshot) Snapshot
}
