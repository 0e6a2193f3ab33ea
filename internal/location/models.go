package location

// Position is a single device fix in WGS84 decimal degrees.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ElevationReading is the ground elevation at a position.
type ElevationReading struct {
	Meters float64 `json:"meters"`
}

// AddressInfo is a reverse-geocoded address. FullAddress is prefecture, city
// and town concatenated in that order without separators.
type AddressInfo struct {
	FullAddress string `json:"fullAddress"`
}

// StationInfo describes one nearby railway station as ranked by the source.
// An empty Line means the source did not report one.
type StationInfo struct {
	Name          string  `json:"name"`
	DistanceLabel string  `json:"distance"`
	Line          string  `json:"line,omitempty"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
}

// GravityReading is the computed local gravitational acceleration.
type GravityReading struct {
	MetersPerSecondSquared float64 `json:"metersPerSecondSquared"`
}

// PressureReading is an ambient pressure sample from the local sensor.
type PressureReading struct {
	Hectopascals float32 `json:"hectopascals"`
}

const (
	StatusWaiting         = "Waiting..."
	StatusLocationUpdated = "Location Updated"
)

// Snapshot is the aggregated view of everything known about the current
// position. A Snapshot is never modified after it has been handed to the
// store; every change produces a new value. Nil pointers mean "absent".
type Snapshot struct {
	Position  *Position         `json:"position,omitempty"`
	Address   *AddressInfo      `json:"address,omitempty"`
	Elevation *ElevationReading `json:"elevation,omitempty"`
	Stations  []StationInfo     `json:"stations"`
	Gravity   *GravityReading   `json:"gravity,omitempty"`
	Pressure  *PressureReading  `json:"pressure,omitempty"`

	// StatusMessage holds the newline-joined errors of the latest batch.
	// Empty means no outstanding error.
	StatusMessage string `json:"statusMessage,omitempty"`

	LocationStatus      string `json:"locationStatus"`
	StationListExpanded bool   `json:"stationListExpanded"`
}

// InitialSnapshot is the value a store holds before the first fix.
func InitialSnapshot() Snapshot {
	return Snapshot{
		Stations:       []StationInfo{},
		LocationStatus: StatusWaiting,
	}
}

// HasError reports whether the snapshot carries an outstanding status message.
func (s Snapshot) HasError() bool {
	return s.StatusMessage != ""
}
