package agents

import (
	"math"

	"github.com/mlim70/MPONC-Streamlined/internal/transport"
)

// CostTerms are the location statistics a cost evaluation reads.
type CostTerms struct {
	Endowment float64
	Alpha     float64
	Threshold float64
	Community float64
	Amenity   float64
	Upkeep    float64
	Beltline  float64
	Distance  float64 // Normalised distance from the previous location
	Mode      transport.Mode
}

// Cost evaluates
//
//	1 - affordability·upkeep·beltline·location·community·accessibility
//
// Transit riders scale distance by transitFactor, so the product can exceed
// 1 and the cost can be slightly negative. It is returned as is.
func Cost(t CostTerms, transitFactor float64) float64 {
	affordability := 0.0
	if t.Endowment >= t.Threshold {
		affordability = 1
	}
	community := math.Exp(-t.Alpha * math.Abs(t.Endowment-t.Community))
	accessibility := math.Exp(-(1 - t.Alpha) * t.Amenity)

	modeFactor := 1.0
	if t.Mode == transport.ModeTransit {
		modeFactor = transitFactor
	}
	location := t.Distance * modeFactor

	return 1 - affordability*t.Upkeep*t.Beltline*location*community*accessibility
}

// Terms gathers the cost inputs for the agent's current location.
func (a *Agent) Terms() CostTerms {
	u := a.Location
	return CostTerms{
		Endowment: a.Endowment,
		Alpha:     a.Alpha,
		Threshold: a.reg.Threshold(u),
		Community: a.reg.Community(u),
		Amenity:   a.reg.Amenity(u),
		Upkeep:    a.reg.Upkeep(u),
		Beltline:  a.reg.Beltline(u),
		Distance:  a.reg.Distance(a.Previous, u),
		Mode:      a.Mode,
	}
}

// Cost evaluates the cost at the agent's current location.
func (a *Agent) Cost(transitFactor float64) float64 {
	return Cost(a.Terms(), transitFactor)
}
