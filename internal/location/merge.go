package location

import "strings"

// BatchResult holds the three provider outcomes for one fix.
type BatchResult struct {
	Position  Position
	Elevation Outcome[*ElevationReading]
	Address   Outcome[*AddressInfo]
	Stations  Outcome[[]StationInfo]
}

// StatusMessage joins the failure messages of the batch, elevation first,
// then address, then stations. It is empty when nothing failed.
func (b BatchResult) StatusMessage() string {
	var msgs []string
	if b.Elevation.IsFailed() {
		msgs = append(msgs, b.Elevation.Message())
	}
	if b.Address.IsFailed() {
		msgs = append(msgs, b.Address.Message())
	}
	if b.Stations.IsFailed() {
		msgs = append(msgs, b.Stations.Message())
	}
	return strings.Join(msgs, "\n")
}

// Apply builds the snapshot that replaces current once the batch has
// resolved. Only the pressure reading and the station list view flag are
// carried over from current; everything else comes from the batch.
func (b BatchResult) Apply(current Snapshot) Snapshot {
	pos := b.Position
	next := Snapshot{
		Position:            &pos,
		Stations:            []StationInfo{},
		Pressure:            current.Pressure,
		StatusMessage:       b.StatusMessage(),
		LocationStatus:      StatusLocationUpdated,
		StationListExpanded: current.StationListExpanded,
	}

	if elev, ok := b.Elevation.Value(); ok && elev != nil {
		e := *elev
		next.Elevation = &e
		g := GravityAt(pos.Latitude, e.Meters)
		next.Gravity = &g
	}
	if addr, ok := b.Address.Value(); ok && addr != nil {
		a := *addr
		next.Address = &a
	}
	if stations, ok := b.Stations.Value(); ok && len(stations) > 0 {
		next.Stations = append([]StationInfo(nil), stations...)
	}

	return next
}

// applyPosition is the optimistic update made as soon as a fix arrives:
// the position moves and the previous status message is cleared, all other
// fields stay as they are until the batch resolves.
func applyPosition(current Snapshot, pos Position) Snapshot {
	next := current
	next.Position = &pos
	next.StatusMessage = ""
	next.LocationStatus = StatusLocationUpdated
	return next
}

// applyPressure replaces only the pressure reading.
func applyPressure(current Snapshot, reading *PressureReading) Snapshot {
	next := current
	if reading != nil {
		r := *reading
		next.Pressure = &r
	} else {
		next.Pressure = nil
	}
	return next
}
