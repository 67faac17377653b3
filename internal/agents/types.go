// Package agents provides the relocating agent: its preference
// distribution over locations, candidate routes, the move draw, and the
// cost-driven learning rule.
package agents

import (
	"fmt"

	"github.com/mlim70/MPONC-Streamlined/internal/city"
	"github.com/mlim70/MPONC-Streamlined/internal/entropy"
	"github.com/mlim70/MPONC-Streamlined/internal/transport"
)

// AgentID is a unique identifier for an agent.
type AgentID = city.AgentID

// ErrDegenerateDistribution marks sampling weights that cannot be drawn
// from (zero sum, NaN, or Inf).
var ErrDegenerateDistribution = entropy.ErrDegenerateWeights

// WeightFloor is the smallest weight a location can be driven to by learning.
const WeightFloor = 2.220446049250313e-16

// Agent is one simulated household.
type Agent struct {
	ID    AgentID        `json:"id"`
	Alpha float64        `json:"alpha"` // Proximity vs. community trade-off, in [0,1]
	Mode  transport.Mode `json:"mode"`

	Endowment float64 `json:"endowment"`
	Location  int     `json:"location"`
	Previous  int     `json:"previous"`

	// Preference state, one entry per location.
	Weights       []float64 `json:"-"`
	Probabilities []float64 `json:"probabilities"`
	Cumulative    []float64 `json:"-"` // Sum of Probabilities after every Learn

	Routes []int `json:"-"` // Candidate destinations for (Location, Mode); shared, read-only

	reg     *city.Registry
	scratch []float64
}

// occupant returns the registry record for a at its current location.
func (a *Agent) occupant(from int) city.Occupant {
	return city.Occupant{ID: a.ID, Endowment: a.Endowment, From: from, Mode: a.Mode}
}

// AverageProbabilities returns Cumulative / steps, the running average of
// the preference distribution since the first learning step.
func (a *Agent) AverageProbabilities(steps int) []float64 {
	out := make([]float64, len(a.Cumulative))
	if steps <= 0 {
		return out
	}
	for i, c := range a.Cumulative {
		out[i] = c / float64(steps)
	}
	return out
}

func (a *Agent) String() string {
	return fmt.Sprintf("agent %d (%s, endowment %.2f, at %d)", a.ID, a.Mode, a.Endowment, a.Location)
}
