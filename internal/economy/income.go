// Package economy provides the external income data the simulation is
// calibrated against and the endowment draw that seeds agents from it.
package economy

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/mlim70/MPONC-Streamlined/internal/entropy"
)

// TractIncome is one row of the census income table.
type TractIncome struct {
	ID         string  `json:"id"`
	Income     float64 `json:"income"`     // Median household income
	Population float64 `json:"population"` // Sampling weight
}

// IncomeTable is the joined income/population table.
type IncomeTable []TractIncome

// IncomeLookup maps an external location id to its expected income.
// Used only for export and calibration, never by the simulation dynamics.
type IncomeLookup map[string]float64

// Expected returns the expected income for id, if known.
func (l IncomeLookup) Expected(id string) (float64, bool) {
	v, ok := l[id]
	return v, ok
}

// Clean drops rows with a missing (NaN) income or population, or a
// negative population.
func (t IncomeTable) Clean() IncomeTable {
	out := make(IncomeTable, 0, len(t))
	for _, row := range t {
		if math.IsNaN(row.Income) || math.IsNaN(row.Population) || row.Population < 0 {
			continue
		}
		out = append(out, row)
	}
	return out
}

// Lookup builds the id → income map from the cleaned table.
func (t IncomeTable) Lookup() IncomeLookup {
	clean := t.Clean()
	l := make(IncomeLookup, len(clean))
	for _, row := range clean {
		l[row.ID] = row.Income
	}
	return l
}

// SampleEndowments draws n endowments from the table's incomes with
// probability proportional to each row's population.
func SampleEndowments(t IncomeTable, n int, rng *rand.Rand) ([]float64, error) {
	clean := t.Clean()
	if len(clean) == 0 {
		return nil, fmt.Errorf("sample endowments: income table has no usable rows")
	}
	if n < 0 {
		return nil, fmt.Errorf("sample endowments: negative agent count %d", n)
	}

	weights := make([]float64, len(clean))
	for i, row := range clean {
		weights[i] = row.Population
	}
	sampler, err := entropy.NewWeighted(weights)
	if err != nil {
		return nil, fmt.Errorf("sample endowments: %w", err)
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = clean[sampler.Draw(rng)].Income
	}
	return out, nil
}
