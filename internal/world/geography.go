package world

import (
	"fmt"
	"math"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
)

// Geography holds the static inputs shared by every simulation run.
// It is read-only once built and may be shared between goroutines.
type Geography struct {
	Locations []Location `json:"locations"`
	Distances *mat.Dense `json:"-"` // N×N, normalised to [0,1]
	Amenity   []float64  `json:"amenity"`
}

// N returns the number of locations.
func (g Geography) N() int {
	return len(g.Locations)
}

// IDs returns the external identifiers in location order.
func (g Geography) IDs() []string {
	return lo.Map(g.Locations, func(l Location, _ int) string { return l.ID })
}

// String returns a summary of the geography.
func (g Geography) String() string {
	rows, cols := 0, 0
	if g.Distances != nil {
		rows, cols = g.Distances.Dims()
	}
	return fmt.Sprintf("Geography(locations=%d, distances=%dx%d)", g.N(), rows, cols)
}

// NormalizeDistances returns a copy of raw with non-finite entries clamped
// to the largest finite entry and every entry divided by the resulting
// maximum. A matrix that is all zero is returned unscaled.
func NormalizeDistances(raw mat.Matrix) *mat.Dense {
	r, c := raw.Dims()
	out := mat.DenseCopyOf(raw)

	finiteMax := 0.0
	hasInf := false
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := out.At(i, j)
			if math.IsInf(v, 0) || math.IsNaN(v) {
				hasInf = true
				continue
			}
			if v > finiteMax {
				finiteMax = v
			}
		}
	}

	if hasInf {
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				v := out.At(i, j)
				if math.IsInf(v, 0) || math.IsNaN(v) {
					out.Set(i, j, finiteMax)
				}
			}
		}
	}

	if finiteMax > 0 {
		out.Scale(1/finiteMax, out)
	}
	return out
}

// NormalizeDensity rescales values to [0,1] by min–max. When every value is
// equal the result is all ones, so no location is excluded from sampling.
func NormalizeDensity(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	minV, maxV := values[0], values[0]
	for _, v := range values {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	if maxV == minV {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - minV) / (maxV - minV)
	}
	return out
}
