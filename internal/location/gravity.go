package location

import "math"

// GRS80 normal gravity series and the free-air gradient.
const (
	grs80BaseGravity      = 9.780327
	grs80FirstCorrection  = 0.0053024
	grs80SecondCorrection = 0.0000058
	freeAirCorrection     = -3.086e-6
)

// CalculateGravity returns the gravitational acceleration in m/s² at the given
// latitude (degrees) and elevation (meters), using GRS80 normal gravity with a
// free-air correction.
func CalculateGravity(latitudeDegrees, elevationMeters float64) float64 {
	phi := latitudeDegrees * math.Pi / 180
	sinPhi := math.Sin(phi)
	sin2Phi := math.Sin(2 * phi)

	g0 := grs80BaseGravity * (1 + grs80FirstCorrection*sinPhi*sinPhi - grs80SecondCorrection*sin2Phi*sin2Phi)

	return g0 + freeAirCorrection*elevationMeters
}

// GravityAt wraps CalculateGravity into a reading.
func GravityAt(latitudeDegrees, elevationMeters float64) GravityReading {
	return GravityReading{MetersPerSecondSquared: CalculateGravity(latitudeDegrees, elevationMeters)}
}
