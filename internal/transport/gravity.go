// Trip model: generation, gravity distribution, and modal split.
// Produces the route table agents consume. Path assignment on the street
// network is not modelled: each origin/destination/mode volume becomes one
// route entry directly.
package transport

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// GravityConfig controls the trip model.
type GravityConfig struct {
	BaseTrips    float64 // Expected trips for a location holding all amenity mass
	CarOwnership float64 // Share of trips made by car (0.0–1.0)
	MinDistance  float64 // Floor applied before computing friction 1/d
}

// DefaultGravityConfig mirrors the calibrated defaults.
func DefaultGravityConfig() GravityConfig {
	return GravityConfig{
		BaseTrips:    100,
		CarOwnership: 0.7,
		MinDistance:  0.1,
	}
}

// Gravity runs trip generation, distribution, and modal split over the
// ordered locations and returns a sorted route table.
func Gravity(ids []string, amenity []float64, dist mat.Matrix, cfg GravityConfig, rng *rand.Rand) (Table, error) {
	n := len(ids)
	if len(amenity) != n {
		return nil, fmt.Errorf("gravity: %d ids but %d amenity values", n, len(amenity))
	}
	if r, c := dist.Dims(); r != n || c != n {
		return nil, fmt.Errorf("gravity: distance matrix is %dx%d, want %dx%d", r, c, n, n)
	}
	if cfg.CarOwnership < 0 || cfg.CarOwnership > 1 {
		return nil, fmt.Errorf("gravity: car ownership %v outside [0,1]", cfg.CarOwnership)
	}

	trips := GenerateTrips(amenity, cfg.BaseTrips, rng)
	flows := DistributeTrips(trips, amenity, dist, cfg.MinDistance)

	var table Table
	shares := [NumModes]float64{cfg.CarOwnership, 1 - cfg.CarOwnership}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if flows.At(i, j) <= 0 {
				continue
			}
			for _, m := range Modes {
				vol := flows.At(i, j) * shares[m]
				if vol <= 0 {
					continue
				}
				table = append(table, Route{Origin: ids[i], Destination: ids[j], Mode: m, Volume: vol})
			}
		}
	}
	table.Sort()
	return table, nil
}

// GenerateTrips draws a Poisson trip count per location with mean
// baseTrips × (amenity share). Draws use inverse-CDF sampling on rng so the
// result is reproducible under a seed.
func GenerateTrips(amenity []float64, baseTrips float64, rng *rand.Rand) []float64 {
	out := make([]float64, len(amenity))
	total := floats.Sum(amenity)
	if total <= 0 {
		return out
	}
	for i, a := range amenity {
		lambda := baseTrips * a / total
		if lambda <= 0 {
			continue
		}
		out[i] = poissonDraw(lambda, rng.Float64())
	}
	return out
}

func poissonDraw(lambda, u float64) float64 {
	p := distuv.Poisson{Lambda: lambda}
	k := 0.0
	// Upper bound keeps a pathological u≈1 from spinning.
	limit := lambda*20 + 100
	for p.CDF(k) < u && k < limit {
		k++
	}
	return k
}

// DistributeTrips spreads each origin's trips over all destinations in
// proportion to amenity × friction, with friction = 1/max(d, minDistance).
func DistributeTrips(trips, amenity []float64, dist mat.Matrix, minDistance float64) *mat.Dense {
	n := len(trips)
	flows := mat.NewDense(n, n, nil)
	if minDistance <= 0 {
		minDistance = 0.1
	}

	attract := make([]float64, n)
	for i := 0; i < n; i++ {
		if trips[i] == 0 {
			continue
		}
		for j := 0; j < n; j++ {
			d := dist.At(i, j)
			if d < minDistance {
				d = minDistance
			}
			attract[j] = amenity[j] / d
		}
		denom := floats.Sum(attract)
		if denom <= 0 {
			continue
		}
		for j := 0; j < n; j++ {
			flows.Set(i, j, trips[i]*attract[j]/denom)
		}
	}
	return flows
}
