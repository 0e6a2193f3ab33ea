package location

import (
	"math"
	"testing"
)

func TestCalculateGravity(t *testing.T) {
	tests := []struct {
		name      string
		lat, elev float64
		want, tol float64
	}{
		{"equator sea level", 0, 0, 9.780327, 1e-6},
		{"mid latitude sea level", 45, 0, 9.806199, 1e-4},
		{"equator 1000m", 0, 1000, 9.777241, 1e-6},
		{"pole sea level", 90, 0, 9.780327 * 1.0053024, 1e-6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateGravity(tt.lat, tt.elev)
			if math.Abs(got-tt.want) > tt.tol {
				t.Fatalf("CalculateGravity(%v, %v) = %.7f, want %.7f ± %g", tt.lat, tt.elev, got, tt.want, tt.tol)
			}
		})
	}
}

func TestCalculateGravityIsDeterministic(t *testing.T) {
	for lat := -90.0; lat <= 90; lat += 7.5 {
		for _, elev := range []float64{-400, 0, 40.5, 3776, 8848} {
			if CalculateGravity(lat, elev) != CalculateGravity(lat, elev) {
				t.Fatalf("CalculateGravity(%v, %v) not deterministic", lat, elev)
			}
		}
	}
}

func TestGravityDecreasesWithElevation(t *testing.T) {
	low := CalculateGravity(35.6812, 0)
	high := CalculateGravity(35.6812, 3776)
	if high >= low {
		t.Fatalf("expected gravity at 3776m (%v) to be below sea level value (%v)", high, low)
	}
}
