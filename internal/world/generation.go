// Synthetic city generation using layered simplex noise.
// Lays out a grid of tract centroids around a center point, then derives
// amenity density, income, and household counts from independent noise
// layers. Used for dry runs and tests when no census bundle is available.
package world

import (
	"fmt"
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"gonum.org/v1/gonum/mat"

	"github.com/mlim70/MPONC-Streamlined/internal/entropy"
)

// GenConfig holds synthetic city parameters.
type GenConfig struct {
	Rows          int       `yaml:"rows"`
	Cols          int       `yaml:"cols"`
	Center        orb.Point `yaml:"-"`
	CenterLon     float64   `yaml:"center_lon"`
	CenterLat     float64   `yaml:"center_lat"`
	SpacingMeters float64   `yaml:"spacing_m"`
	Seed          int64     `yaml:"seed"` // 0 = random
	RingMeters    float64   `yaml:"beltline_radius_m"`
	MeanIncome    float64   `yaml:"mean_income"`
}

// DefaultGenConfig returns an Atlanta-sized grid.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Rows:          12,
		Cols:          12,
		CenterLon:     -84.388,
		CenterLat:     33.749,
		SpacingMeters: 2500,
		Seed:          42,
		RingMeters:    4000,
		MeanIncome:    55000,
	}
}

// SmallTestConfig returns a tiny city for rapid iteration.
func SmallTestConfig() GenConfig {
	cfg := DefaultGenConfig()
	cfg.Rows = 3
	cfg.Cols = 4
	cfg.SpacingMeters = 3000
	return cfg
}

// Generated is a synthetic city: its geography plus per-location income
// figures standing in for census tables.
type Generated struct {
	Geography
	Income     []float64 // Median household income per location
	Households []float64 // Household count per location (sampling weight)
}

// Generate builds a synthetic city from cfg. The same seed always yields
// the same city.
func Generate(cfg GenConfig) (*Generated, error) {
	if cfg.Rows <= 0 || cfg.Cols <= 0 {
		return nil, fmt.Errorf("generate: grid must be positive, got %dx%d", cfg.Rows, cfg.Cols)
	}
	if cfg.SpacingMeters <= 0 {
		return nil, fmt.Errorf("generate: spacing must be positive, got %v", cfg.SpacingMeters)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = entropy.RandomSeed()
	}
	center := cfg.Center
	if center == (orb.Point{}) {
		center = orb.Point{cfg.CenterLon, cfg.CenterLat}
	}

	// Three noise generators for independent layers.
	amenityNoise := opensimplex.NewNormalized(seed)
	incomeNoise := opensimplex.NewNormalized(seed + 1)
	householdNoise := opensimplex.NewNormalized(seed + 2)

	ring := RingCorridor{Center: center, RadiusMeters: cfg.RingMeters}
	n := cfg.Rows * cfg.Cols
	locs := make([]Location, 0, n)
	rawAmenity := make([]float64, 0, n)
	income := make([]float64, 0, n)
	households := make([]float64, 0, n)

	halfW := float64(cfg.Cols-1) / 2
	halfH := float64(cfg.Rows-1) / 2
	maxRadial := math.Hypot(halfW, halfH) * cfg.SpacingMeters

	for r := 0; r < cfg.Rows; r++ {
		for c := 0; c < cfg.Cols; c++ {
			dx := (float64(c) - halfW) * cfg.SpacingMeters
			dy := (halfH - float64(r)) * cfg.SpacingMeters
			pos := offset(center, dx, dy)

			x, y := float64(c), float64(r)
			radial := 0.0
			if maxRadial > 0 {
				radial = math.Hypot(dx, dy) / maxRadial
			}

			// Downtown pull plus neighbourhood-scale variation.
			amen := 0.6*octaveNoise(amenityNoise, x, y, 3, 0.18, 0.5) + 0.4*(1-radial)
			inc := cfg.MeanIncome * (0.4 + 1.2*octaveNoise(incomeNoise, x, y, 3, 0.12, 0.5))
			hh := 400 + 1600*octaveNoise(householdNoise, x, y, 2, 0.1, 0.5)

			i := len(locs)
			locs = append(locs, Location{
				Position: pos,
				Name:     fmt.Sprintf("Tract %d-%d", r+1, c+1),
				ID:       fmt.Sprintf("13121%06d", (i+1)*100),
				Beltline: ring.Score(pos),
			})
			rawAmenity = append(rawAmenity, amen)
			income = append(income, math.Round(inc))
			households = append(households, math.Round(hh))
		}
	}

	raw := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := geo.Distance(locs[i].Position, locs[j].Position)
			raw.Set(i, j, d)
			raw.Set(j, i, d)
		}
	}

	return &Generated{
		Geography: Geography{
			Locations: locs,
			Distances: NormalizeDistances(raw),
			Amenity:   NormalizeDensity(rawAmenity),
		},
		Income:     income,
		Households: households,
	}, nil
}

// offset moves p east by dx and north by dy meters (negative = west/south).
func offset(p orb.Point, dx, dy float64) orb.Point {
	if dx >= 0 {
		p = geo.PointAtBearingAndDistance(p, 90, dx)
	} else {
		p = geo.PointAtBearingAndDistance(p, 270, -dx)
	}
	if dy >= 0 {
		p = geo.PointAtBearingAndDistance(p, 0, dy)
	} else {
		p = geo.PointAtBearingAndDistance(p, 180, -dy)
	}
	return p
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
