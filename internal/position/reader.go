package position

import "github.com/i474232898/location-data-aggregation/internal/location"

// Reader is a source of GPS fixes.
type Reader interface {
	Name() string
	Connect() error
	Close() error
	// Read returns the most recent fix. It may block briefly.
	Read() (*Fix, error)
}

// Fix is one reading from a receiver.
type Fix struct {
	Valid      bool    `json:"valid"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Altitude   float64 `json:"altitude"`
	Satellites int     `json:"satellites"`
	Quality    int     `json:"quality"`
	Time       string  `json:"time"`
}

// Position converts the fix into the aggregation model.
func (f Fix) Position() location.Position {
	return location.Position{Latitude: f.Latitude, Longitude: f.Longitude}
}
