package track

import "math"

// Unit conversions between the CTC's metric suggestions and the wayside's
// imperial commanded values. Speeds are mph internally, authorities yards.

const (
	mpsPerMph     = 0.44704
	metersPerYard = 0.9144
)

// MPSToMPH converts meters per second to whole miles per hour, rounding to
// the nearest integer.
func MPSToMPH(mps float64) int {
	return int(math.Round(mps / mpsPerMph))
}

// MPHToMPS converts miles per hour to meters per second.
func MPHToMPS(mph int) float64 {
	return float64(mph) * mpsPerMph
}

// MetersToYards converts meters to whole yards, rounding to the nearest
// integer.
func MetersToYards(m float64) int {
	return int(math.Round(m / metersPerYard))
}

// YardsToMeters converts yards to meters.
func YardsToMeters(yd int) float64 {
	return float64(yd) * metersPerYard
}
