package engine

import (
	"fmt"
	"strconv"

	"github.com/mlim70/MPONC-Streamlined/internal/city"
	"github.com/mlim70/MPONC-Streamlined/internal/transport"
)

// Key identifies a snapshot.
type Key struct {
	Rho    int     `json:"rho" db:"rho"`
	Alpha  float64 `json:"alpha" db:"alpha"`
	Agents int     `json:"agents" db:"agents"`
	Step   int     `json:"step" db:"step"`
}

// FileStem returns "<prefix>_<rho>_<alpha>_<agents>_<step>".
func (k Key) FileStem(prefix string) string {
	return fmt.Sprintf("%s_%d_%s_%d_%d", prefix, k.Rho,
		strconv.FormatFloat(k.Alpha, 'g', -1, 64), k.Agents, k.Step)
}

// AgentPreference is one agent's running-average distribution.
type AgentPreference struct {
	ID        city.AgentID   `json:"id"`
	Mode      transport.Mode `json:"mode"`
	Endowment float64        `json:"endowment"`
	Location  int            `json:"location"`
	Average   []float64      `json:"average"`
}

// Snapshot is the registry and agent state at a benchmark step.
type Snapshot struct {
	Key
	RunID       string                `json:"run_id,omitempty"`
	Locations   []city.SummaryRow     `json:"locations"`
	ByMode      []city.ModeEndowments `json:"by_mode"`
	Preferences []AgentPreference     `json:"preferences"`
}

// Snapshot captures the current state. Average distributions divide the
// accumulated sum by the number of completed steps; the accumulator is
// never reset, so every snapshot averages from step 1.
func (s *Simulation) Snapshot() Snapshot {
	prefs := make([]AgentPreference, len(s.Agents))
	for i, a := range s.Agents {
		prefs[i] = AgentPreference{
			ID:        a.ID,
			Mode:      a.Mode,
			Endowment: a.Endowment,
			Location:  a.Location,
			Average:   a.AverageProbabilities(s.step),
		}
	}
	return Snapshot{
		Key: Key{
			Rho:    s.Params.Rho,
			Alpha:  s.Params.Alpha,
			Agents: len(s.Agents),
			Step:   s.step,
		},
		Locations:   s.Registry.ExportSummary(),
		ByMode:      s.Registry.EndowmentsByMode(),
		Preferences: prefs,
	}
}
