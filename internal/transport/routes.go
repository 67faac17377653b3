package transport

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDataInconsistency marks route data that does not line up with the
// location registry (unknown ids, negative volumes).
var ErrDataInconsistency = errors.New("route data inconsistency")

// Route is one assigned trip volume between two locations for one mode.
type Route struct {
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	Mode        Mode    `json:"mode"`
	Volume      float64 `json:"volume"` // Fractional volumes are truncated when indexed
}

// Table is the ordered route assignment consumed by agents.
// Order matters: it fixes the order of candidate slots and therefore the
// outcome of seeded draws.
type Table []Route

// Sort orders the table by origin, destination, then mode.
func (t Table) Sort() {
	sort.SliceStable(t, func(i, j int) bool {
		if t[i].Origin != t[j].Origin {
			return t[i].Origin < t[j].Origin
		}
		if t[i].Destination != t[j].Destination {
			return t[i].Destination < t[j].Destination
		}
		return t[i].Mode < t[j].Mode
	})
}

// TotalVolume returns the summed volume of every route.
func (t Table) TotalVolume() float64 {
	total := 0.0
	for _, r := range t {
		total += r.Volume
	}
	return total
}

// Index holds the expanded candidate destinations for every
// (origin index, mode) pair. It is immutable once built and safe to share
// between concurrent runs.
type Index struct {
	candidates [][NumModes][]int
	slots      int
}

// NewIndex expands the table against the ordered location ids. Each route
// contributes floor(volume) copies of its destination index to the
// candidate list of (origin, mode). Any entry naming an id absent from ids,
// an invalid mode, or a negative volume fails the whole build.
func NewIndex(table Table, ids []string) (*Index, error) {
	lookup := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, dup := lookup[id]; dup {
			return nil, fmt.Errorf("%w: duplicate location id %q", ErrDataInconsistency, id)
		}
		lookup[id] = i
	}

	idx := &Index{candidates: make([][NumModes][]int, len(ids))}
	for n, r := range table {
		origin, ok := lookup[r.Origin]
		if !ok {
			return nil, fmt.Errorf("%w: route %d: origin %q not in registry", ErrDataInconsistency, n, r.Origin)
		}
		dest, ok := lookup[r.Destination]
		if !ok {
			return nil, fmt.Errorf("%w: route %d: destination %q not in registry", ErrDataInconsistency, n, r.Destination)
		}
		if r.Mode >= NumModes {
			return nil, fmt.Errorf("%w: route %d: invalid mode %d", ErrDataInconsistency, n, uint8(r.Mode))
		}
		if r.Volume < 0 || math.IsNaN(r.Volume) || math.IsInf(r.Volume, 0) {
			return nil, fmt.Errorf("%w: route %d: invalid volume %v", ErrDataInconsistency, n, r.Volume)
		}

		copies := int(math.Floor(r.Volume))
		list := idx.candidates[origin][r.Mode]
		for c := 0; c < copies; c++ {
			list = append(list, dest)
		}
		idx.candidates[origin][r.Mode] = list
		idx.slots += copies
	}
	return idx, nil
}

// Candidates returns the candidate destinations for an origin and mode.
// The slice is shared; callers must not modify it. Returns nil for an
// out-of-range origin.
func (x *Index) Candidates(origin int, mode Mode) []int {
	if x == nil || origin < 0 || origin >= len(x.candidates) || mode >= NumModes {
		return nil
	}
	return x.candidates[origin][mode]
}

// Slots returns the total number of candidate slots across all origins.
func (x *Index) Slots() int {
	if x == nil {
		return 0
	}
	return x.slots
}
