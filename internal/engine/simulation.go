// Simulation runs one (capacity, alpha) configuration: a fresh registry, a
// fresh population, and a seeded RNG shared by every stochastic step.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/mlim70/MPONC-Streamlined/internal/agents"
	"github.com/mlim70/MPONC-Streamlined/internal/city"
	"github.com/mlim70/MPONC-Streamlined/internal/economy"
	"github.com/mlim70/MPONC-Streamlined/internal/entropy"
	"github.com/mlim70/MPONC-Streamlined/internal/logging"
	"github.com/mlim70/MPONC-Streamlined/internal/transport"
	"github.com/mlim70/MPONC-Streamlined/internal/world"
)

// Params is one point of the parameter sweep.
type Params struct {
	Rho   int     `json:"rho"`
	Alpha float64 `json:"alpha"`
}

func (p Params) String() string {
	return fmt.Sprintf("rho=%d alpha=%g", p.Rho, p.Alpha)
}

// Grid returns every (rho, alpha) combination, rho-major.
func Grid(rhos []int, alphas []float64) []Params {
	out := make([]Params, 0, len(rhos)*len(alphas))
	for _, r := range rhos {
		for _, a := range alphas {
			out = append(out, Params{Rho: r, Alpha: a})
		}
	}
	return out
}

// Inputs are the read-only data shared by every run.
type Inputs struct {
	Geography  world.Geography
	Routes     *transport.Index
	Endowments []float64 // One per agent; agent i gets Endowments[i]
	Incomes    economy.IncomeLookup
}

// Validate checks the inputs can seed a run.
func (in Inputs) Validate() error {
	if in.Geography.N() == 0 {
		return fmt.Errorf("%w: no locations", city.ErrConfiguration)
	}
	if len(in.Endowments) == 0 {
		return fmt.Errorf("%w: no endowments", city.ErrConfiguration)
	}
	return nil
}

// Options controls run length and the behavioral constants.
type Options struct {
	Steps         int
	LearningRate  float64
	CarOwnership  float64
	TransitFactor float64
	SeedOffset    int64
	Schedule      Schedule
}

// DefaultOptions returns the standard run settings.
func DefaultOptions() Options {
	learn := agents.DefaultLearnParams()
	return Options{
		Steps:         500,
		LearningRate:  learn.LearningRate,
		CarOwnership:  0.7,
		TransitFactor: learn.TransitFactor,
		Schedule:      EveryN(100, 500),
	}
}

// Simulation holds the complete state of one run.
type Simulation struct {
	Params   Params
	Registry *city.Registry
	Agents   []*agents.Agent

	opts  Options
	learn agents.LearnParams
	in    Inputs
	rng   *rand.Rand
	seed  int64
	step  int
}

// NewSimulation builds the registry, spawns one agent per endowment, and
// runs the initial registry update.
func NewSimulation(in Inputs, p Params, opts Options) (*Simulation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if opts.Steps < 0 {
		return nil, fmt.Errorf("%w: negative step count %d", city.ErrConfiguration, opts.Steps)
	}
	if p.Alpha < 0 || p.Alpha > 1 {
		return nil, fmt.Errorf("%w: alpha %v outside [0,1]", city.ErrConfiguration, p.Alpha)
	}

	reg, err := city.New(in.Geography, p.Rho, in.Incomes)
	if err != nil {
		return nil, err
	}

	seed := entropy.SeedFor(p.Rho, p.Alpha, opts.SeedOffset)
	rng := entropy.NewRand(seed)

	sp, err := agents.NewSpawner(reg, opts.CarOwnership, rng)
	if err != nil {
		return nil, err
	}
	ag, err := sp.SpawnPopulation(in.Endowments, p.Alpha)
	if err != nil {
		return nil, err
	}
	reg.Update()

	return &Simulation{
		Params:   p,
		Registry: reg,
		Agents:   ag,
		opts:     opts,
		learn:    agents.LearnParams{LearningRate: opts.LearningRate, TransitFactor: opts.TransitFactor},
		in:       in,
		rng:      rng,
		seed:     seed,
	}, nil
}

// Seed returns the RNG seed derived for this run.
func (s *Simulation) Seed() int64 { return s.seed }

// StepCount returns the number of completed rounds.
func (s *Simulation) StepCount() int { return s.step }

// Step runs one round: refresh routes, move everyone, update the registry,
// then let everyone learn. Each phase completes for all agents before the
// next begins.
func (s *Simulation) Step() error {
	for _, a := range s.Agents {
		a.AssignRoutes(s.in.Routes)
	}
	for _, a := range s.Agents {
		if err := a.Move(s.rng); err != nil {
			return fmt.Errorf("step %d: %w", s.step+1, err)
		}
	}
	s.Registry.Update()
	for _, a := range s.Agents {
		if err := a.Learn(s.learn); err != nil {
			return fmt.Errorf("step %d: %w", s.step+1, err)
		}
	}
	s.step++
	return nil
}

// Run advances the simulation to opts.Steps, handing a snapshot to emit at
// every scheduled step.
func (s *Simulation) Run(emit func(Snapshot) error) error {
	for s.step < s.opts.Steps {
		if err := s.Step(); err != nil {
			return err
		}
		slog.Log(context.Background(), logging.LevelTrace, "step",
			"params", s.Params.String(), "step", s.step)
		if s.opts.Schedule.Contains(s.step) {
			slog.Debug("benchmark", "params", s.Params.String(), "step", s.step,
				"occupied", s.occupied())
			if emit != nil {
				if err := emit(s.Snapshot()); err != nil {
					return fmt.Errorf("emit snapshot at step %d: %w", s.step, err)
				}
			}
		}
	}
	return nil
}

func (s *Simulation) occupied() int {
	n := 0
	for i := 0; i < s.Registry.N(); i++ {
		if s.Registry.Population(i) > 0 {
			n++
		}
	}
	return n
}
