// Package fare prices a pooled seat. Pure arithmetic, no I/O.
package fare

import "math"

const (
	BaseFare     = 50.0 // currency units
	RatePerKm    = 12.0
	LuggageFee   = 20.0
	PoolDiscount = 0.2 // every pooled seat gets 20% off
)

// Surge maps the demand/supply ratio onto a step multiplier.
func Surge(demand, supply int) float64 {
	if supply <= 0 {
		supply = 1
	}
	ratio := float64(demand) / float64(supply)
	switch {
	case ratio > 5.0:
		return 2.0
	case ratio > 2.5:
		return 1.5
	case ratio > 1.5:
		return 1.2
	}
	return 1.0
}

// Calculate returns the fare for a pooled ride of distanceKm with
// luggageCount bags, rounded to the nearest currency unit.
func Calculate(distanceKm float64, luggageCount, demand, supply int) int {
	f := BaseFare + distanceKm*RatePerKm
	f *= Surge(demand, supply)
	if luggageCount > 0 {
		f += float64(luggageCount) * LuggageFee
	}
	f *= 1 - PoolDiscount
	return int(math.Round(f))
}
