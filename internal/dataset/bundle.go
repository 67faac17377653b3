// Package dataset reads and writes the CSV input bundle: locations,
// distances, amenity densities, routes, incomes, and optional endowments.
package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/mlim70/MPONC-Streamlined/internal/economy"
	"github.com/mlim70/MPONC-Streamlined/internal/transport"
	"github.com/mlim70/MPONC-Streamlined/internal/world"
)

// Bundle file names.
const (
	LocationsFile  = "locations.csv"
	DistancesFile  = "distances.csv"
	AmenityFile    = "amenity.csv"
	RoutesFile     = "routes.csv"
	IncomesFile    = "incomes.csv"
	EndowmentsFile = "endowments.csv"
)

// Bundle is everything a sweep reads from disk.
type Bundle struct {
	Geography  world.Geography
	Routes     transport.Table
	Incomes    economy.IncomeTable
	Endowments []float64 // Optional; nil means sample from Incomes
}

// Load reads a bundle from dir. With normalize set, the distance matrix is
// passed through world.NormalizeDistances; otherwise it must already lie in
// [0,1].
func Load(dir string, normalize bool) (*Bundle, error) {
	locs, err := readLocations(filepath.Join(dir, LocationsFile))
	if err != nil {
		return nil, err
	}
	dist, err := readMatrix(filepath.Join(dir, DistancesFile), len(locs))
	if err != nil {
		return nil, err
	}
	if normalize {
		dist = world.NormalizeDistances(dist)
	}
	density, err := readAmenity(filepath.Join(dir, AmenityFile))
	if err != nil {
		return nil, err
	}
	amenity := make([]float64, len(locs))
	for i, l := range locs {
		v, ok := density[l.ID]
		if !ok {
			return nil, fmt.Errorf("%s: no amenity density for location %q", AmenityFile, l.ID)
		}
		amenity[i] = v
	}

	routes, err := readRoutes(filepath.Join(dir, RoutesFile))
	if err != nil {
		return nil, err
	}
	incomes, err := readIncomes(filepath.Join(dir, IncomesFile))
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		Geography: world.Geography{Locations: locs, Distances: dist, Amenity: amenity},
		Routes:    routes,
		Incomes:   incomes,
	}

	endowPath := filepath.Join(dir, EndowmentsFile)
	b.Endowments, err = readEndowments(endowPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return b, nil
}

// Save writes b to dir, creating it if needed.
func Save(dir string, b *Bundle) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}
	if err := writeLocations(filepath.Join(dir, LocationsFile), b.Geography.Locations); err != nil {
		return err
	}
	if err := writeMatrix(filepath.Join(dir, DistancesFile), b.Geography.Distances); err != nil {
		return err
	}
	if err := writeAmenity(filepath.Join(dir, AmenityFile), b.Geography.IDs(), b.Geography.Amenity); err != nil {
		return err
	}
	if err := writeRoutes(filepath.Join(dir, RoutesFile), b.Routes); err != nil {
		return err
	}
	if err := writeIncomes(filepath.Join(dir, IncomesFile), b.Incomes); err != nil {
		return err
	}
	if b.Endowments != nil {
		if err := writeEndowments(filepath.Join(dir, EndowmentsFile), b.Endowments); err != nil {
			return err
		}
	}
	return nil
}

// FromGenerated packages a synthetic city and its route table as a bundle.
// Household counts stand in for tract populations.
func FromGenerated(g *world.Generated, routes transport.Table) *Bundle {
	incomes := lo.Map(g.Locations, func(l world.Location, i int) economy.TractIncome {
		return economy.TractIncome{ID: l.ID, Income: g.Income[i], Population: g.Households[i]}
	})
	return &Bundle{
		Geography: g.Geography,
		Routes:    routes,
		Incomes:   incomes,
	}
}

// AgentEndowments returns n endowments: the bundle's explicit list when it
// is long enough, otherwise a population-weighted draw from the incomes.
func (b *Bundle) AgentEndowments(n int, rng *rand.Rand) ([]float64, error) {
	if b.Endowments != nil {
		if len(b.Endowments) < n {
			return nil, fmt.Errorf("%s has %d values, need %d", EndowmentsFile, len(b.Endowments), n)
		}
		return b.Endowments[:n], nil
	}
	return economy.SampleEndowments(b.Incomes, n, rng)
}

// Check reports unknown ids in the route table before a sweep starts.
func (b *Bundle) Check() error {
	if _, err := transport.NewIndex(b.Routes, b.Geography.IDs()); err != nil {
		return err
	}
	for i, a := range b.Geography.Amenity {
		if math.IsNaN(a) || a < 0 || a > 1 {
			return fmt.Errorf("%s: density %v for %q outside [0,1]", AmenityFile, a, b.Geography.Locations[i].ID)
		}
	}
	return nil
}
