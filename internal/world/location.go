// Package world provides location records, the static geography bundle the
// simulation runs on, and a synthetic city generator.
package world

import (
	"math"

	"github.com/paulmach/orb"
)

// BeltlineUnknown marks a location whose beltline score was never computed.
const BeltlineUnknown = -1.0

// Location is one discrete zone (a tract centroid) in the simulated area.
type Location struct {
	Position orb.Point `json:"position"` // lon, lat
	Name     string    `json:"name"`
	ID       string    `json:"id"` // External identifier (e.g. census GEOID)

	// Beltline proximity score in [0,1], or BeltlineUnknown.
	Beltline float64 `json:"beltline"`
}

// Lon returns the longitude of the location centroid.
func (l Location) Lon() float64 { return l.Position.Lon() }

// Lat returns the latitude of the location centroid.
func (l Location) Lat() float64 { return l.Position.Lat() }

// HasBeltline reports whether the beltline score was computed.
func (l Location) HasBeltline() bool {
	return l.Beltline >= 0 && !math.IsNaN(l.Beltline)
}
