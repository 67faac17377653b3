// Package city provides the location registry: static per-location
// attributes, the occupant sets agents move between, and the statistics
// recomputed from those occupants every round.
package city

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mlim70/MPONC-Streamlined/internal/economy"
	"github.com/mlim70/MPONC-Streamlined/internal/transport"
	"github.com/mlim70/MPONC-Streamlined/internal/world"
)

var (
	// ErrConfiguration marks malformed or mismatched construction inputs.
	ErrConfiguration = errors.New("configuration error")

	// ErrOccupancy marks an occupant-set operation that would break the
	// one-location-per-agent invariant.
	ErrOccupancy = errors.New("occupancy error")
)

// AgentID is a unique identifier for an agent within one run.
type AgentID uint64

// Occupant is the registry's record of an agent living at a location.
type Occupant struct {
	ID        AgentID        `json:"id"`
	Endowment float64        `json:"endowment"`
	From      int            `json:"from"` // Location held before arriving here
	Mode      transport.Mode `json:"mode"`
}

// occupantSet is an ordered arena with O(1) insert and swap-remove.
// Iteration order depends only on the sequence of operations, which keeps
// floating-point sums reproducible under a seed.
type occupantSet struct {
	members []Occupant
	slot    map[AgentID]int
}

// Registry holds one record per location.
type Registry struct {
	rho       int
	locations []world.Location
	index     map[string]int
	distances *mat.Dense
	amenity   []float64
	incomes   economy.IncomeLookup

	// Dynamic state, recomputed by Update.
	occupants  []occupantSet
	population []int
	threshold  []float64
	upkeep     []float64
	community  []float64

	// History, one entry per Update call. Diagnostics only.
	popHist [][]int
	cmtHist [][]float64

	scratch []float64
}

// New builds a registry over geo with capacity rho. Dimension mismatches
// between locations, the distance matrix, and the amenity vector fail with
// ErrConfiguration.
func New(geo world.Geography, rho int, incomes economy.IncomeLookup) (*Registry, error) {
	n := len(geo.Locations)
	if n == 0 {
		return nil, fmt.Errorf("%w: no locations", ErrConfiguration)
	}
	if geo.Distances == nil {
		return nil, fmt.Errorf("%w: distance matrix missing", ErrConfiguration)
	}
	if r, c := geo.Distances.Dims(); r != n || c != n {
		return nil, fmt.Errorf("%w: %d locations but distance matrix is %dx%d", ErrConfiguration, n, r, c)
	}
	if len(geo.Amenity) != n {
		return nil, fmt.Errorf("%w: %d locations but %d amenity values", ErrConfiguration, n, len(geo.Amenity))
	}
	if rho < 1 {
		return nil, fmt.Errorf("%w: capacity must be at least 1, got %d", ErrConfiguration, rho)
	}

	index := make(map[string]int, n)
	for i, loc := range geo.Locations {
		if _, dup := index[loc.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate location id %q", ErrConfiguration, loc.ID)
		}
		index[loc.ID] = i
	}
	for i, a := range geo.Amenity {
		if math.IsNaN(a) || a < 0 || a > 1 {
			return nil, fmt.Errorf("%w: amenity density %v at location %d outside [0,1]", ErrConfiguration, a, i)
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d := geo.Distances.At(i, j)
			if math.IsNaN(d) || d < 0 || d > 1 {
				return nil, fmt.Errorf("%w: distance (%d,%d)=%v outside [0,1]", ErrConfiguration, i, j, d)
			}
		}
	}

	r := &Registry{
		rho:        rho,
		locations:  geo.Locations,
		index:      index,
		distances:  geo.Distances,
		amenity:    geo.Amenity,
		incomes:    incomes,
		occupants:  make([]occupantSet, n),
		population: make([]int, n),
		threshold:  make([]float64, n),
		upkeep:     make([]float64, n),
		community:  make([]float64, n),
		popHist:    make([][]int, n),
		cmtHist:    make([][]float64, n),
	}
	for i := range r.occupants {
		r.occupants[i].slot = make(map[AgentID]int)
	}
	return r, nil
}

// AddOccupant inserts o into the occupant set of loc.
func (r *Registry) AddOccupant(loc int, o Occupant) error {
	if loc < 0 || loc >= len(r.occupants) {
		return fmt.Errorf("%w: location %d out of range", ErrOccupancy, loc)
	}
	set := &r.occupants[loc]
	if _, ok := set.slot[o.ID]; ok {
		return fmt.Errorf("%w: agent %d already at location %d", ErrOccupancy, o.ID, loc)
	}
	set.slot[o.ID] = len(set.members)
	set.members = append(set.members, o)
	r.population[loc] = len(set.members)
	return nil
}

// RemoveOccupant removes agent id from the occupant set of loc.
func (r *Registry) RemoveOccupant(loc int, id AgentID) error {
	if loc < 0 || loc >= len(r.occupants) {
		return fmt.Errorf("%w: location %d out of range", ErrOccupancy, loc)
	}
	set := &r.occupants[loc]
	pos, ok := set.slot[id]
	if !ok {
		return fmt.Errorf("%w: agent %d not at location %d", ErrOccupancy, id, loc)
	}
	last := len(set.members) - 1
	if pos != last {
		moved := set.members[last]
		set.members[pos] = moved
		set.slot[moved.ID] = pos
	}
	set.members = set.members[:last]
	delete(set.slot, id)
	r.population[loc] = len(set.members)
	return nil
}

// Update recomputes population, endowment threshold, upkeep, and community
// score for every location from its current occupants, and appends one
// history entry per location.
func (r *Registry) Update() {
	for i := range r.occupants {
		members := r.occupants[i].members
		pop := len(members)
		r.population[i] = pop
		r.popHist[i] = append(r.popHist[i], pop)

		if pop == 0 {
			r.threshold[i] = 0
			r.upkeep[i] = 0
			r.community[i] = 0
			r.cmtHist[i] = append(r.cmtHist[i], 0)
			continue
		}

		r.community[i] = r.communityScore(i, members)
		r.cmtHist[i] = append(r.cmtHist[i], r.community[i])
		r.upkeep[i] = 1

		if pop < r.rho {
			r.threshold[i] = 0
			continue
		}
		r.scratch = r.scratch[:0]
		for _, m := range members {
			r.scratch = append(r.scratch, m.Endowment)
		}
		// rho-th largest = (pop-rho)-th smallest, zero-based.
		r.threshold[i] = selectKth(r.scratch, pop-r.rho)
	}
}

// communityScore averages occupant endowments weighted by (1-d)², with d
// the distance from each occupant's prior location. Falls back to the plain
// mean when every weight is zero.
func (r *Registry) communityScore(loc int, members []Occupant) float64 {
	sumW, sumWE, sumE := 0.0, 0.0, 0.0
	for _, m := range members {
		d := r.distances.At(m.From, loc)
		w := (1 - d) * (1 - d)
		sumW += w
		sumWE += w * m.Endowment
		sumE += m.Endowment
	}
	if sumW == 0 {
		return sumE / float64(len(members))
	}
	return sumWE / sumW
}

// selectKth returns the k-th smallest value (zero-based) of a, reordering a.
func selectKth(a []float64, k int) float64 {
	lo, hi := 0, len(a)-1
	for lo < hi {
		pivot := a[lo+(hi-lo)/2]
		i, j := lo, hi
		for i <= j {
			for a[i] < pivot {
				i++
			}
			for a[j] > pivot {
				j--
			}
			if i <= j {
				a[i], a[j] = a[j], a[i]
				i++
				j--
			}
		}
		switch {
		case k <= j:
			hi = j
		case k >= i:
			lo = i
		default:
			return a[k]
		}
	}
	return a[k]
}
