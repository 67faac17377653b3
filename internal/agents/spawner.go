// Agent spawning: mode draw, amenity-weighted initial preferences, and
// initial placement in the registry.
package agents

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/mlim70/MPONC-Streamlined/internal/city"
	"github.com/mlim70/MPONC-Streamlined/internal/entropy"
	"github.com/mlim70/MPONC-Streamlined/internal/transport"
)

// Spawner creates agents against one registry.
type Spawner struct {
	rng          *rand.Rand
	reg          *city.Registry
	carOwnership float64

	initial *entropy.Weighted
	prior   []float64 // Initial weights, normalised
}

// NewSpawner prepares the amenity-weighted initial distribution. rng is
// shared with the rest of the run and must not be used concurrently.
func NewSpawner(reg *city.Registry, carOwnership float64, rng *rand.Rand) (*Spawner, error) {
	if carOwnership < 0 || carOwnership > 1 {
		return nil, fmt.Errorf("spawner: car ownership %v outside [0,1]", carOwnership)
	}
	prior, err := InitialWeights(reg.AmenityVector())
	if err != nil {
		return nil, fmt.Errorf("spawner: %w", err)
	}
	w, err := entropy.NewWeighted(prior)
	if err != nil {
		return nil, fmt.Errorf("spawner: %w", err)
	}
	return &Spawner{rng: rng, reg: reg, carOwnership: carOwnership, initial: w, prior: prior}, nil
}

// InitialWeights returns a uniform prior scaled by normalised amenity
// density, floored at WeightFloor and renormalised.
func InitialWeights(amenity []float64) ([]float64, error) {
	if err := entropy.CheckWeights(amenity); err != nil {
		return nil, fmt.Errorf("initial distribution: %w", err)
	}
	total := floats.Sum(amenity)
	out := make([]float64, len(amenity))
	for i, a := range amenity {
		out[i] = a / total
		if out[i] < WeightFloor {
			out[i] = WeightFloor
		}
	}
	floats.Scale(1/floats.Sum(out), out)
	return out, nil
}

// Spawn draws a mode and an initial location for a new agent and registers
// it. The agent's From is its own location until its first move.
func (s *Spawner) Spawn(id AgentID, endowment, alpha float64) (*Agent, error) {
	mode := transport.ModeTransit
	if s.rng.Float64() < s.carOwnership {
		mode = transport.ModeCar
	}

	n := len(s.prior)
	a := &Agent{
		ID:            id,
		Alpha:         alpha,
		Mode:          mode,
		Endowment:     endowment,
		Weights:       make([]float64, n),
		Probabilities: make([]float64, n),
		Cumulative:    make([]float64, n),
		reg:           s.reg,
	}
	copy(a.Weights, s.prior)
	copy(a.Probabilities, s.prior)

	a.Location = s.initial.Draw(s.rng)
	a.Previous = a.Location
	if err := s.reg.AddOccupant(a.Location, a.occupant(a.Location)); err != nil {
		return nil, fmt.Errorf("spawn agent %d: %w", id, err)
	}
	return a, nil
}

// SpawnPopulation creates one agent per endowment, with ids 0..len-1.
func (s *Spawner) SpawnPopulation(endowments []float64, alpha float64) ([]*Agent, error) {
	out := make([]*Agent, 0, len(endowments))
	for i, e := range endowments {
		a, err := s.Spawn(AgentID(i), e, alpha)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
