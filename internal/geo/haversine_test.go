package geo

import (
	"math"
	"testing"
)

// metersToLatDegrees converts a north-south distance to degrees of latitude.
// Along a meridian the haversine distance reduces to R * delta, so this gives
// exact control over the test distances.
func metersToLatDegrees(m float64) float64 {
	return (m / earthRadiusMeters) * 180 / math.Pi
}

func TestDistanceZero(t *testing.T) {
	p := Coordinate{Latitude: 40.4237, Longitude: -86.9212}
	if d := Distance(p, p); d != 0 {
		t.Errorf("Distance(p, p) = %v, want 0", d)
	}
}

func TestDistanceSymmetry(t *testing.T) {
	a := Coordinate{Latitude: 51.5007, Longitude: -0.1246}
	b := Coordinate{Latitude: 48.8566, Longitude: 2.3522}
	d1 := Distance(a, b)
	d2 := Distance(b, a)
	if d1 != d2 {
		t.Errorf("Distance not symmetric: %v vs %v", d1, d2)
	}
	if d1 < 300000 || d1 > 400000 {
		t.Errorf("London-Paris distance = %v m, expected roughly 340 km", d1)
	}
}

func TestDistanceOneDegreeAtEquator(t *testing.T) {
	a := Coordinate{Latitude: 0, Longitude: 0}
	b := Coordinate{Latitude: 0, Longitude: 1}
	want := earthRadiusMeters * math.Pi / 180
	if d := Distance(a, b); math.Abs(d-want) > 1 {
		t.Errorf("Distance = %v, want %v", d, want)
	}
}

func TestWithinRadiusBoundary(t *testing.T) {
	center := Coordinate{Latitude: 40.0, Longitude: -86.0}

	near := Coordinate{Latitude: 40.0 + metersToLatDegrees(49.99), Longitude: -86.0}
	if !WithinRadius(center, near, 50) {
		t.Error("point just inside 50m radius should be within")
	}

	far := Coordinate{Latitude: 40.0 + metersToLatDegrees(51), Longitude: -86.0}
	if WithinRadius(center, far, 50) {
		t.Error("point 51m away should be outside a 50m radius")
	}
}

// The boundary is inclusive: standing exactly at the radius unlocks.  Using
// the computed distance as the radius makes the equality exact regardless of
// floating-point rounding in the trigonometry.
func TestWithinRadiusInclusiveAtExactBoundary(t *testing.T) {
	center := Coordinate{Latitude: 40.0, Longitude: -86.0}
	edge := Coordinate{Latitude: 40.0 + metersToLatDegrees(50), Longitude: -86.0}

	d := Distance(center, edge)
	if d < 49 || d > 51 {
		t.Fatalf("edge point distance = %v m, expected about 50 m", d)
	}
	if !WithinRadius(center, edge, d) {
		t.Errorf("point at exactly the radius (%v m) must be within", d)
	}
}

func TestWithinRadiusAtCenter(t *testing.T) {
	p := Coordinate{Latitude: -33.8688, Longitude: 151.2093}
	if !WithinRadius(p, p, 10) {
		t.Error("anchor coordinate itself must always be within radius")
	}
}
