package geo

import (
	"math"

	"github.com/krishop90/smart-airport-pooling/internal/models"
)

// Distance returns the great-circle distance between two coordinates in km.
func Distance(a, b models.Coord) float64 {
	const R = 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return R * c
}

// Detour is the extra distance an existing rider eats when a candidate
// pickup is inserted between their pickup and drop:
//
//	d(e.pickup, c.pickup) + d(c.pickup, e.drop) - d(e.pickup, e.drop)
//
// Non-negative by the triangle inequality (up to float rounding).
func Detour(existingPickup, existingDrop, candidatePickup models.Coord) float64 {
	return Distance(existingPickup, candidatePickup) +
		Distance(candidatePickup, existingDrop) -
		Distance(existingPickup, existingDrop)
}
