package geofence

import (
	"errors"
	"math"
)

// EarthRadiusMeters is the mean spherical earth radius used for every distance.
const EarthRadiusMeters = 6371000.0

var ErrCoordinatesOutOfBounds = errors.New("latitude must be within [-90,90] and longitude within [-180,180]")

type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p Point) Validate() error {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return ErrCoordinatesOutOfBounds
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return ErrCoordinatesOutOfBounds
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return ErrCoordinatesOutOfBounds
	}
	return nil
}

// Distance returns the great-circle distance in meters between two points
// given in signed degrees (haversine).
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*sinLon*sinLon

	// rounding can push a a hair outside [0,1] for antipodal points
	a = math.Min(1, math.Max(0, a))

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

func DistanceBetween(a, b Point) float64 {
	return Distance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Fence is a circle of RadiusMeters around Center.
type Fence struct {
	Center       Point
	RadiusMeters float64
}

func New(center Point, radiusMeters float64) Fence {
	return Fence{Center: center, RadiusMeters: radiusMeters}
}

// Contains reports whether p lies inside the fence. A point exactly on the
// boundary is inside.
func (f Fence) Contains(p Point) (bool, float64) {
	d := DistanceBetween(p, f.Center)
	return d <= f.RadiusMeters, d
}
