// Package geo provides great-circle distance, radius checks, bounding boxes
// and geohash encoding for user locations. Every function is pure.
package geo

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// EarthRadiusKm is the mean Earth radius used by the Haversine formula.
const EarthRadiusKm = 6371.0

// ErrInvalidCoordinate is returned by Validate for out-of-range values.
var ErrInvalidCoordinate = errors.New("geo: invalid coordinate")

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Validate checks latitude ∈ [-90,90] and longitude ∈ [-180,180].
// The distance functions never call it; validation belongs to the caller.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v must be between -90 and 90", ErrInvalidCoordinate, c.Latitude)
	}
	if math.IsNaN(c.Longitude) || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v must be between -180 and 180", ErrInvalidCoordinate, c.Longitude)
	}
	return nil
}

// Location is a user's last known position. It is replaced wholesale on
// update, never mutated in place.
type Location struct {
	Coordinate `yaml:",inline"`
	Geohash   string    `json:"geohash,omitempty" yaml:"geohash,omitempty"`
	Accuracy  *float64  `json:"accuracy,omitempty" yaml:"accuracy,omitempty"` // meters
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// NewLocation builds a Location stamped with the given time and its
// default-precision geohash.
func NewLocation(lat, lon float64, at time.Time) Location {
	return Location{
		Coordinate: Coordinate{Latitude: lat, Longitude: lon},
		Geohash:    Geohash(lat, lon, DefaultGeohashPrecision),
		UpdatedAt:  at,
	}
}

func toRadians(deg float64) float64 {
	return deg * (math.Pi / 180)
}

func toDegrees(rad float64) float64 {
	return rad * (180 / math.Pi)
}

// Distance returns the Haversine great-circle distance in kilometers
// between two points given in degrees.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push a a hair past 1 near antipodes.
	a = math.Min(1, math.Max(0, a))

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// LocationDistance returns the distance in kilometers between two locations.
func LocationDistance(a, b Location) float64 {
	return Distance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// WithinRadius reports whether b lies within radiusKm of a. The boundary
// is inclusive.
func WithinRadius(a, b Location, radiusKm float64) bool {
	return LocationDistance(a, b) <= radiusKm
}

// BoundingBox is an axis-aligned latitude/longitude box in degrees.
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// NewBoundingBox returns the approximate square box of half-side radiusKm
// around (lat, lon). It uses a planar-degree approximation; the longitude
// span is widened by 1/cos(lat), so the error grows towards the poles.
func NewBoundingBox(lat, lon, radiusKm float64) BoundingBox {
	latDelta := toDegrees(radiusKm / EarthRadiusKm)
	lonDelta := latDelta / math.Cos(toRadians(lat))

	return BoundingBox{
		North: lat + latDelta,
		South: lat - latDelta,
		East:  lon + lonDelta,
		West:  lon - lonDelta,
	}
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Coordinate {
	return Coordinate{
		Latitude:  (b.North + b.South) / 2,
		Longitude: (b.East + b.West) / 2,
	}
}

// Contains reports whether c lies inside the box, edges included. A box
// overflowing ±180° wraps around the antimeridian.
func (b BoundingBox) Contains(c Coordinate) bool {
	if c.Latitude < b.South || c.Latitude > b.North {
		return false
	}
	for _, r := range b.LongitudeRanges() {
		if c.Longitude >= r[0] && c.Longitude <= r[1] {
			return true
		}
	}
	return false
}

// LongitudeRanges returns the box's longitude span as one or two
// [west, east] ranges inside [-180, 180]. A span crossing the antimeridian
// is split in two; a span of a full turn or more covers every longitude.
func (b BoundingBox) LongitudeRanges() [][2]float64 {
	span := b.East - b.West
	if span >= 360 || math.IsNaN(span) {
		return [][2]float64{{-180, 180}}
	}
	switch {
	case b.West < -180:
		return [][2]float64{{b.West + 360, 180}, {-180, b.East}}
	case b.East > 180:
		return [][2]float64{{b.West, 180}, {-180, b.East - 360}}
	}
	return [][2]float64{{b.West, b.East}}
}
