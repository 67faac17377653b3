package agents

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/mlim70/MPONC-Streamlined/internal/city"
	"github.com/mlim70/MPONC-Streamlined/internal/transport"
	"github.com/mlim70/MPONC-Streamlined/internal/world"
)

func newRegistry(t *testing.T, amenity []float64, rho int) *city.Registry {
	t.Helper()
	n := len(amenity)
	locs := make([]world.Location, n)
	dist := mat.NewDense(n, n, nil)
	for i := range locs {
		locs[i] = world.Location{
			Position: orb.Point{-84.39, 33.75 + float64(i)*0.01},
			ID:       string(rune('A' + i)),
			Name:     "tract",
			Beltline: 1,
		}
		for j := 0; j < n; j++ {
			if i != j {
				dist.Set(i, j, 1)
			}
		}
	}
	reg, err := city.New(world.Geography{Locations: locs, Distances: dist, Amenity: amenity}, rho, nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func TestCostIsOneWhenUnaffordable(t *testing.T) {
	terms := CostTerms{
		Endowment: 10,
		Threshold: 50,
		Community: 10,
		Amenity:   1,
		Upkeep:    1,
		Beltline:  1,
		Distance:  1,
		Alpha:     0.3,
		Mode:      transport.ModeTransit,
	}
	if got := Cost(terms, 1.5); got != 1 {
		t.Fatalf("expected cost 1 below threshold, got %v", got)
	}
}

func TestCostCanGoNegative(t *testing.T) {
	terms := CostTerms{
		Endowment: 1,
		Threshold: 0,
		Community: 1,
		Amenity:   0,
		Upkeep:    1,
		Beltline:  1,
		Distance:  1,
		Alpha:     1,
		Mode:      transport.ModeTransit,
	}
	got := Cost(terms, 1.5)
	if math.Abs(got-(-0.5)) > 1e-12 {
		t.Fatalf("expected literal cost -0.5, got %v", got)
	}
	terms.Mode = transport.ModeCar
	if got := Cost(terms, 1.5); math.Abs(got) > 1e-12 {
		t.Fatalf("expected car cost 0, got %v", got)
	}
}

func TestSpawnRegistersAgent(t *testing.T) {
	reg := newRegistry(t, []float64{0, 0.5, 1}, 2)
	sp, err := NewSpawner(reg, 0.7, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("spawner: %v", err)
	}
	agents, err := sp.SpawnPopulation([]float64{1, 2, 3, 4, 5}, 0.5)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if reg.TotalPopulation() != len(agents) {
		t.Fatalf("expected %d registered, got %d", len(agents), reg.TotalPopulation())
	}
	for _, a := range agents {
		if a.Previous != a.Location {
			t.Fatalf("agent %d previous %d != location %d", a.ID, a.Previous, a.Location)
		}
		if math.Abs(floats.Sum(a.Probabilities)-1) > 1e-12 {
			t.Fatalf("initial distribution sums to %v", floats.Sum(a.Probabilities))
		}
		if a.Probabilities[0] <= 0 {
			t.Fatal("zero-amenity location should keep a floor weight")
		}
	}
}

func TestNewSpawnerRejectsZeroAmenity(t *testing.T) {
	reg := newRegistry(t, []float64{0, 0}, 1)
	if _, err := NewSpawner(reg, 0.5, rand.New(rand.NewSource(1))); !errors.Is(err, ErrDegenerateDistribution) {
		t.Fatalf("expected degenerate distribution, got %v", err)
	}
}

func TestMoveFollowsCandidateWeights(t *testing.T) {
	reg := newRegistry(t, []float64{0.25, 1}, 10)
	rng := rand.New(rand.NewSource(7))
	sp, err := NewSpawner(reg, 1, rng)
	if err != nil {
		t.Fatalf("spawner: %v", err)
	}
	a, err := sp.Spawn(1, 100, 0.5)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	a.Probabilities = []float64{0.5, 0.5}
	a.Routes = []int{0, 1}

	const draws = 10000
	counts := []float64{0, 0}
	for i := 0; i < draws; i++ {
		if err := a.Move(rng); err != nil {
			t.Fatalf("move: %v", err)
		}
		counts[a.Location]++
		if reg.TotalPopulation() != 1 {
			t.Fatalf("occupancy not conserved: %d", reg.TotalPopulation())
		}
	}

	// 0.5·0.25 : 0.5·1 = 0.2 : 0.8
	expected := []float64{0.2 * draws, 0.8 * draws}
	chi := stat.ChiSquare(counts, expected)
	p := distuv.ChiSquared{K: 1}.Survival(chi)
	if p < 0.001 {
		t.Fatalf("candidate draw deviates from weights: counts=%v chi2=%v p=%v", counts, chi, p)
	}
}

func TestMoveWithoutCandidatesUsesDistribution(t *testing.T) {
	reg := newRegistry(t, []float64{1, 1, 1}, 2)
	rng := rand.New(rand.NewSource(3))
	sp, _ := NewSpawner(reg, 0.5, rng)
	a, _ := sp.Spawn(1, 10, 0.5)
	a.Probabilities = []float64{0, 0, 1}
	a.Routes = nil
	for i := 0; i < 20; i++ {
		if err := a.Move(rng); err != nil {
			t.Fatalf("move: %v", err)
		}
		if a.Location != 2 {
			t.Fatalf("expected draw from full distribution to pick 2, got %d", a.Location)
		}
	}
}

func TestMoveReportsDegenerateCandidates(t *testing.T) {
	reg := newRegistry(t, []float64{0, 1}, 2)
	rng := rand.New(rand.NewSource(3))
	sp, _ := NewSpawner(reg, 0.5, rng)
	a, _ := sp.Spawn(9, 10, 0.5)
	a.Routes = []int{0, 0}
	err := a.Move(rng)
	if !errors.Is(err, ErrDegenerateDistribution) {
		t.Fatalf("expected degenerate distribution error, got %v", err)
	}
	if a.Location != 1 || a.Previous != 1 {
		t.Fatalf("failed move changed location: at %d, previous %d", a.Location, a.Previous)
	}
	if reg.TotalPopulation() != 1 || reg.OccupantCount(1) != 1 {
		t.Fatalf("failed move lost the occupant: total %d, at 1 %d", reg.TotalPopulation(), reg.OccupantCount(1))
	}

	// The agent is still registered, so a later move succeeds.
	a.Routes = []int{1}
	if err := a.Move(rng); err != nil {
		t.Fatalf("move after failed draw: %v", err)
	}
	if a.Location != 1 || reg.TotalPopulation() != 1 {
		t.Fatalf("unexpected state after retry: at %d, total %d", a.Location, reg.TotalPopulation())
	}
}

func TestLearnKeepsDistributionValid(t *testing.T) {
	reg := newRegistry(t, []float64{1, 1}, 1)
	rng := rand.New(rand.NewSource(11))
	sp, _ := NewSpawner(reg, 0, rng)
	a, _ := sp.Spawn(1, 10, 0.5)
	reg.Update()

	// A learning rate this large drives the weight negative before clamping.
	params := LearnParams{LearningRate: 5, TransitFactor: 1.5}
	for step := 1; step <= 5; step++ {
		if err := a.Learn(params); err != nil {
			t.Fatalf("learn: %v", err)
		}
		for i, p := range a.Probabilities {
			if p < 0 {
				t.Fatalf("step %d: negative probability at %d", step, i)
			}
		}
		if math.Abs(floats.Sum(a.Probabilities)-1) > 1e-9 {
			t.Fatalf("step %d: distribution sums to %v", step, floats.Sum(a.Probabilities))
		}
	}
	if a.Weights[a.Location] != WeightFloor {
		t.Fatalf("expected weight clamped to floor, got %v", a.Weights[a.Location])
	}
	avg := a.AverageProbabilities(5)
	if math.Abs(floats.Sum(avg)-1) > 1e-9 {
		t.Fatalf("average distribution sums to %v", floats.Sum(avg))
	}
}

func TestAssignRoutes(t *testing.T) {
	reg := newRegistry(t, []float64{1, 1}, 1)
	rng := rand.New(rand.NewSource(1))
	sp, _ := NewSpawner(reg, 1, rng)
	a, _ := sp.Spawn(1, 10, 0.5)

	table := transport.Table{
		{Origin: "A", Destination: "B", Mode: transport.ModeCar, Volume: 2.9},
		{Origin: "B", Destination: "A", Mode: transport.ModeCar, Volume: 1},
		{Origin: "A", Destination: "A", Mode: transport.ModeTransit, Volume: 4},
	}
	idx, err := transport.NewIndex(table, reg.IDs())
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	a.AssignRoutes(idx)
	switch a.Location {
	case 0:
		if len(a.Routes) != 2 || a.Routes[0] != 1 || a.Routes[1] != 1 {
			t.Fatalf("unexpected routes from A: %v", a.Routes)
		}
	case 1:
		if len(a.Routes) != 1 || a.Routes[0] != 0 {
			t.Fatalf("unexpected routes from B: %v", a.Routes)
		}
	}
}
