// Beltline scoring: proximity of a location to the amenity corridor.
package world

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Beltline score radii, in meters from the corridor.
const (
	BeltlineHighMeters = 5000  // At or inside: full benefit
	BeltlineLowMeters  = 17500 // At or beyond: floor benefit
	BeltlineFloor      = 0.1
)

// BeltlineScore maps a distance from the corridor to a score: 1.0 inside
// BeltlineHighMeters, BeltlineFloor beyond BeltlineLowMeters, linear between.
func BeltlineScore(meters float64) float64 {
	switch {
	case meters <= BeltlineHighMeters:
		return 1.0
	case meters >= BeltlineLowMeters:
		return BeltlineFloor
	default:
		return 1.0 - (meters-BeltlineHighMeters)*(1.0-BeltlineFloor)/(BeltlineLowMeters-BeltlineHighMeters)
	}
}

// RingCorridor is a circular corridor approximating a loop trail around a
// city center.
type RingCorridor struct {
	Center       orb.Point
	RadiusMeters float64
}

// DistanceMeters returns the geodesic distance from p to the ring.
func (r RingCorridor) DistanceMeters(p orb.Point) float64 {
	return math.Abs(geo.Distance(r.Center, p) - r.RadiusMeters)
}

// Score returns the beltline score of p relative to the ring.
func (r RingCorridor) Score(p orb.Point) float64 {
	return BeltlineScore(r.DistanceMeters(p))
}
