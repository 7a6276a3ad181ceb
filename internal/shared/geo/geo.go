package geo

import (
	"errors"
	"math"
)

const earthRadiusKm = 6371.0

// ErrNoCheckpoints is returned by Nearest when there is nothing to compare against.
var ErrNoCheckpoints = errors.New("no checkpoints defined")

// Locatable is anything with a fixed coordinate.
type Locatable interface {
	Coordinates() (lat, lng float64)
}

// HaversineKm returns the great-circle distance between two points in kilometres.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	return HaversineKm(lat1, lng1, lat2, lng2) * 1000
}

// Nearest returns the item closest to (lat, lng) and its distance in meters.
// Equidistant items resolve to the earliest one in the slice.
func Nearest[T Locatable](lat, lng float64, items []T) (T, float64, error) {
	var best T
	if len(items) == 0 {
		return best, 0, ErrNoCheckpoints
	}
	bestDist := math.Inf(1)
	for _, item := range items {
		itemLat, itemLng := item.Coordinates()
		d := HaversineMeters(lat, lng, itemLat, itemLng)
		if d < bestDist {
			best, bestDist = item, d
		}
	}
	return best, bestDist, nil
}

// ValidCoordinate reports whether lat/lng are finite and inside WGS84 bounds.
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
