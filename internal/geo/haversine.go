// Package geo provides great-circle distance computation between two
// coordinates.  Anchors may be placed anywhere on the globe, so a planar
// approximation is not used.  Reported coordinates are client-asserted and
// unverified; this package only answers "how far apart" and "inside the
// radius", so a stronger verification scheme can be substituted in front of
// it later without touching callers.
package geo

import "math"

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// Coordinate is a WGS84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Distance returns the great-circle distance between a and b in meters using
// the haversine formula.  Distance(a, a) is 0 and the function is symmetric.
func Distance(a, b Coordinate) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// WithinRadius reports whether point lies inside the circle of radiusMeters
// around center.  The boundary is inclusive: a point exactly radiusMeters
// away passes.
func WithinRadius(center, point Coordinate, radiusMeters float64) bool {
	return Distance(center, point) <= radiusMeters
}
