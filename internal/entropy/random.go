// Package entropy owns every source of randomness in a simulation run.
// Each run gets its own seeded generator so that runs are reproducible and
// can execute concurrently without sharing state.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	mrand "math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// ErrDegenerateWeights marks a sampling distribution that cannot be drawn
// from: empty, zero-sum, negative, NaN or infinite.
var ErrDegenerateWeights = errors.New("degenerate sampling weights")

// SeedFor derives the run seed for a (rho, alpha) parameter pair.
// Truncation matches the historical seed formula rho*1000 + alpha*100.
func SeedFor(rho int, alpha float64, offset int64) int64 {
	return int64(float64(rho)*1000+alpha*100) + offset
}

// NewRand returns a generator seeded for one run. Not safe for concurrent use.
func NewRand(seed int64) *mrand.Rand {
	return mrand.New(mrand.NewSource(seed))
}

// RandomSeed returns a non-zero seed from crypto/rand, for callers that ask
// for "any seed" and then record the one they got.
func RandomSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// This should never happen; fall back to a fixed seed.
		return 1
	}
	seed := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if seed == 0 {
		seed = 1
	}
	return seed
}

// Weighted draws indices with probability proportional to fixed weights.
type Weighted struct {
	cum   []float64
	total float64
}

// CheckWeights validates that weights form a drawable distribution.
func CheckWeights(weights []float64) error {
	if len(weights) == 0 {
		return fmt.Errorf("%w: no entries", ErrDegenerateWeights)
	}
	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("%w: entry %d is %v", ErrDegenerateWeights, i, w)
		}
	}
	total := floats.Sum(weights)
	if !(total > 0) || math.IsInf(total, 0) {
		return fmt.Errorf("%w: sum is %v", ErrDegenerateWeights, total)
	}
	return nil
}

// NewWeighted validates weights and prepares a cumulative table.
func NewWeighted(weights []float64) (*Weighted, error) {
	if err := CheckWeights(weights); err != nil {
		return nil, err
	}
	cum := make([]float64, len(weights))
	floats.CumSum(cum, weights)
	return &Weighted{cum: cum, total: cum[len(cum)-1]}, nil
}

// Draw returns one index. Zero-weight entries are never returned.
func (w *Weighted) Draw(rng *mrand.Rand) int {
	u := rng.Float64() * w.total
	i := sort.Search(len(w.cum), func(i int) bool { return w.cum[i] > u })
	if i == len(w.cum) {
		// u rounded up to total; take the last positive entry.
		i = len(w.cum) - 1
		for i > 0 && w.cum[i] == w.cum[i-1] {
			i--
		}
	}
	return i
}

// Choose draws a single index from weights.
func Choose(weights []float64, rng *mrand.Rand) (int, error) {
	w, err := NewWeighted(weights)
	if err != nil {
		return 0, err
	}
	return w.Draw(rng), nil
}
