// Package calibration scores simulated neighborhood incomes against the
// expected incomes of the income lookup and ranks parameter pairs by fit.
package calibration

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/mlim70/MPONC-Streamlined/internal/city"
	"github.com/mlim70/MPONC-Streamlined/internal/engine"
)

// Fit is the income difference of one summary.
type Fit struct {
	Total   float64 `json:"total_difference"` // Σ |expected − simulated|
	Mean    float64 `json:"mean_difference"`
	Matched int     `json:"matched"` // Locations with an expected income
}

// Score sums |expected − average income| over every location that has an
// expected income. Locations without one do not contribute.
func Score(rows []city.SummaryRow) Fit {
	diffs := make([]float64, 0, len(rows))
	for _, r := range rows {
		if r.ExpectedIncome == nil || math.IsNaN(*r.ExpectedIncome) {
			continue
		}
		diffs = append(diffs, math.Abs(*r.ExpectedIncome-r.AvgIncome))
	}
	f := Fit{Matched: len(diffs)}
	if len(diffs) == 0 {
		return f
	}
	for _, d := range diffs {
		f.Total += d
	}
	f.Mean = stat.Mean(diffs, nil)
	return f
}

// Entry is one scored snapshot.
type Entry struct {
	Key   engine.Key `json:"key"`
	RunID string     `json:"run_id,omitempty"`
	Fit   Fit        `json:"fit"`
}

// Rank orders entries best first: lowest total difference, ties broken by
// rho then alpha. Entries with no matched locations sort last.
func Rank(entries []Entry) []Entry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b Entry) int {
		if (a.Fit.Matched == 0) != (b.Fit.Matched == 0) {
			if a.Fit.Matched == 0 {
				return 1
			}
			return -1
		}
		if c := cmp.Compare(a.Fit.Total, b.Fit.Total); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Key.Rho, b.Key.Rho); c != 0 {
			return c
		}
		return cmp.Compare(a.Key.Alpha, b.Key.Alpha)
	})
	return out
}

// WriteCSV writes one row per entry in the given order.
func WriteCSV(w io.Writer, prefix string, entries []Entry) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"figkey", "rho", "alpha", "agents", "step", "tot_difference", "matched"})
	for _, e := range entries {
		cw.Write([]string{
			e.Key.FileStem(prefix),
			strconv.Itoa(e.Key.Rho),
			strconv.FormatFloat(e.Key.Alpha, 'f', -1, 64),
			strconv.Itoa(e.Key.Agents),
			strconv.Itoa(e.Key.Step),
			strconv.FormatFloat(e.Fit.Total, 'f', -1, 64),
			strconv.Itoa(e.Fit.Matched),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write calibration csv: %w", err)
	}
	return nil
}
