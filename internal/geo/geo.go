// Package geo holds the distance and matching primitives shared by discovery and storage.
package geo

import (
	"math"
	"strings"

	"SpotFinder/internal/domain"
)

const (
	earthRadiusMeters = 6371000.0
	metersPerDegree   = earthRadiusMeters * math.Pi / 180

	// ProximityMeters is the distance under which two places are considered the same spot.
	ProximityMeters = 100.0
	// MetersPerMile converts the user-facing radius unit.
	MetersPerMile = 1609.344
)

// Distance returns the great-circle distance in meters.
func Distance(a, b domain.Coordinate) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return earthRadiusMeters * 2 * math.Asin(math.Min(1, math.Sqrt(h)))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Box is a lat/lng rectangle. It is a prefilter only; callers still check true distance.
type Box struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// BoundingBox returns a box that contains every point within radiusMeters of center.
// Longitudes are clamped to [-180, 180]; a box crossing the antimeridian is not wrapped,
// so spots on the far side of it are not returned.
func BoundingBox(center domain.Coordinate, radiusMeters float64) Box {
	latDelta := radiusMeters / metersPerDegree
	// widest longitude span is at the box edge closest to a pole
	cosLat := cosDeg(math.Min(90, math.Abs(center.Lat)+latDelta))
	lngDelta := 180.0
	if cosLat > 1e-6 {
		lngDelta = math.Min(180, radiusMeters/(metersPerDegree*cosLat))
	}

	return Box{
		MinLat: math.Max(-90, center.Lat-latDelta),
		MaxLat: math.Min(90, center.Lat+latDelta),
		MinLng: math.Max(-180, center.Lng-lngDelta),
		MaxLng: math.Min(180, center.Lng+lngDelta),
	}
}

// Contains reports whether c lies inside the box, edges included.
func (b Box) Contains(c domain.Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lng >= b.MinLng && c.Lng <= b.MaxLng
}

// CompositeKey is the lowercased, trimmed (name, address) pair used for exact dedup.
func CompositeKey(name, address string) string {
	return normalize(name) + "|" + normalize(address)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Near reports whether two coordinates are strictly closer than ProximityMeters.
func Near(a, b domain.Coordinate) bool {
	return Distance(a, b) < ProximityMeters
}

// SamePlace applies the discovery match rule: equal composite key or within proximity.
func SamePlace(nameA, addrA string, a domain.Coordinate, nameB, addrB string, b domain.Coordinate) bool {
	if CompositeKey(nameA, addrA) == CompositeKey(nameB, addrB) {
		return true
	}
	return Near(a, b)
}

// FindMatch returns the index of the first record matching the candidate, or -1.
func FindMatch(c domain.Candidate, records []domain.PlaceRecord) int {
	for i := range records {
		r := &records[i]
		if SamePlace(c.Name, c.Address, c.Coordinate, r.Name, r.Address, r.Coordinate) {
			return i
		}
	}
	return -1
}

func cosDeg(deg float64) float64 {
	return math.Cos(toRadians(deg))
}
