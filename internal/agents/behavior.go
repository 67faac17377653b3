// Per-round agent behavior: route refresh, move, and learn.
package agents

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/mlim70/MPONC-Streamlined/internal/entropy"
	"github.com/mlim70/MPONC-Streamlined/internal/transport"
)

// LearnParams controls the weight update.
type LearnParams struct {
	LearningRate  float64
	TransitFactor float64 // Distance multiplier for transit riders
}

// DefaultLearnParams returns the standard learning rate and transit factor.
func DefaultLearnParams() LearnParams {
	return LearnParams{LearningRate: 1e-3, TransitFactor: 1.5}
}

// AssignRoutes replaces the candidate list with the destinations routed
// from the agent's current location for its mode.
func (a *Agent) AssignRoutes(idx *transport.Index) {
	a.Routes = idx.Candidates(a.Location, a.Mode)
}

// Move relocates the agent. With candidates, the draw is proportional to
// probability × amenity over the candidate list (duplicates count once per
// slot); otherwise it is drawn from the full preference distribution. A
// failed draw leaves the agent and the registry untouched.
func (a *Agent) Move(rng *rand.Rand) error {
	from := a.Location
	dest, err := a.drawDestination(rng)
	if err != nil {
		return fmt.Errorf("move agent %d from %d: %w", a.ID, from, err)
	}

	if err := a.reg.RemoveOccupant(from, a.ID); err != nil {
		return fmt.Errorf("move agent %d: %w", a.ID, err)
	}
	if err := a.reg.AddOccupant(dest, a.occupant(from)); err != nil {
		// Put the agent back where it was.
		a.reg.AddOccupant(from, a.occupant(a.Previous))
		return fmt.Errorf("move agent %d: %w", a.ID, err)
	}
	a.Previous = from
	a.Location = dest
	return nil
}

func (a *Agent) drawDestination(rng *rand.Rand) (int, error) {
	if len(a.Routes) == 0 {
		k, err := entropy.Choose(a.Probabilities, rng)
		if err != nil {
			return 0, fmt.Errorf("preference distribution: %w", err)
		}
		return k, nil
	}
	amenity := a.reg.AmenityVector()
	a.scratch = a.scratch[:0]
	for _, c := range a.Routes {
		a.scratch = append(a.scratch, a.Probabilities[c]*amenity[c])
	}
	k, err := entropy.Choose(a.scratch, rng)
	if err != nil {
		return 0, fmt.Errorf("candidate weights: %w", err)
	}
	return a.Routes[k], nil
}

// Learn applies the cost at the current location to its weight,
// renormalises, and adds the new distribution to the running sum.
func (a *Agent) Learn(p LearnParams) error {
	cost := a.Cost(p.TransitFactor)
	u := a.Location
	a.Weights[u] *= 1 - p.LearningRate*cost
	if !(a.Weights[u] >= WeightFloor) {
		a.Weights[u] = WeightFloor
	}

	if err := entropy.CheckWeights(a.Weights); err != nil {
		return fmt.Errorf("learn agent %d: %w", a.ID, err)
	}
	total := floats.Sum(a.Weights)
	for i, w := range a.Weights {
		a.Probabilities[i] = w / total
	}
	floats.Add(a.Cumulative, a.Probabilities)
	return nil
}
