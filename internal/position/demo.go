package position

import (
	"math"
	"sync"
	"time"
)

// DemoReader circles Tokyo Station so the pipeline can run without hardware.
type DemoReader struct {
	mu   sync.Mutex
	step float64
}

// NewDemoReader creates a simulated receiver.
func NewDemoReader() *DemoReader { return &DemoReader{} }

func (d *DemoReader) Name() string   { return "demo" }
func (d *DemoReader) Connect() error { return nil }
func (d *DemoReader) Close() error   { return nil }

// Read advances the simulated receiver one step around the circle.
func (d *DemoReader) Read() (*Fix, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.step++

	const (
		centerLat = 35.6812
		centerLon = 139.7671
		radius    = 0.01
	)
	angle := d.step * math.Pi / 18
	return &Fix{
		Valid:      true,
		Latitude:   centerLat + radius*math.Sin(angle),
		Longitude:  centerLon + radius*math.Cos(angle),
		Altitude:   3,
		Satellites: 10,
		Quality:    1,
		Time:       time.Now().UTC().Format("150405.00"),
	}, nil
}

// FixedReader always reports the same coordinates.
type FixedReader struct {
	fix Fix
}

// NewFixedReader creates a reader that always reports lat, lon.
func NewFixedReader(lat, lon float64) *FixedReader {
	return &FixedReader{fix: Fix{Valid: true, Latitude: lat, Longitude: lon, Quality: 1}}
}

func (f *FixedReader) Name() string   { return "fixed" }
func (f *FixedReader) Connect() error { return nil }
func (f *FixedReader) Close() error   { return nil }

// Read returns the fixed coordinates stamped with the current time.
func (f *FixedReader) Read() (*Fix, error) {
	fix := f.fix
	fix.Time = time.Now().UTC().Format("150405.00")
	return &fix, nil
}

// Disabled never produces a fix.
type Disabled struct{}

func (Disabled) Name() string        { return "disabled" }
func (Disabled) Connect() error      { return nil }
func (Disabled) Close() error        { return nil }
func (Disabled) Read() (*Fix, error) { return nil, nil }
