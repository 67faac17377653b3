package city

import "github.com/mlim70/MPONC-Streamlined/internal/transport"

// SummaryRow is one exported location record.
type SummaryRow struct {
	Index          int      `json:"index"`
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Population     int      `json:"population"`
	AvgIncome      float64  `json:"avg_income"`    // Mean occupant endowment, 0 when empty
	AvgEndowment   float64  `json:"avg_endowment"` // AvgIncome min–max normalised across locations
	Beltline       *float64 `json:"beltline,omitempty"`
	Amenity        float64  `json:"amenity"`
	ExpectedIncome *float64 `json:"expected_income,omitempty"` // nil when absent from the income lookup
	Threshold      float64  `json:"threshold"`
	Community      float64  `json:"community"`
}

// ExportSummary returns one row per location. When every location has the
// same average income the normalised column is 0.0 everywhere.
func (r *Registry) ExportSummary() []SummaryRow {
	n := len(r.locations)
	avg := make([]float64, n)
	for i := range r.occupants {
		members := r.occupants[i].members
		if len(members) == 0 {
			continue
		}
		sum := 0.0
		for _, m := range members {
			sum += m.Endowment
		}
		avg[i] = sum / float64(len(members))
	}

	minV, maxV := avg[0], avg[0]
	for _, v := range avg {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	rows := make([]SummaryRow, n)
	for i, loc := range r.locations {
		row := SummaryRow{
			Index:      i,
			ID:         loc.ID,
			Name:       loc.Name,
			Population: len(r.occupants[i].members),
			AvgIncome:  avg[i],
			Amenity:    r.amenity[i],
			Threshold:  r.threshold[i],
			Community:  r.community[i],
		}
		if maxV > minV {
			row.AvgEndowment = (avg[i] - minV) / (maxV - minV)
		}
		if loc.HasBeltline() {
			b := loc.Beltline
			row.Beltline = &b
		}
		if v, ok := r.incomes.Expected(loc.ID); ok {
			row.ExpectedIncome = &v
		}
		rows[i] = row
	}
	return rows
}

// ModeEndowments aggregates occupant endowments at one location by mode.
type ModeEndowments struct {
	Sum   [transport.NumModes]float64 `json:"sum"`
	Count [transport.NumModes]int     `json:"count"`
}

// Mean returns the average endowment of occupants travelling by m.
func (e ModeEndowments) Mean(m transport.Mode) float64 {
	if e.Count[m] == 0 {
		return 0
	}
	return e.Sum[m] / float64(e.Count[m])
}

// EndowmentsByMode returns per-location endowment totals split by mode.
func (r *Registry) EndowmentsByMode() []ModeEndowments {
	out := make([]ModeEndowments, len(r.occupants))
	for i := range r.occupants {
		for _, m := range r.occupants[i].members {
			out[i].Sum[m.Mode] += m.Endowment
			out[i].Count[m.Mode]++
		}
	}
	return out
}
