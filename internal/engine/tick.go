// Package engine runs the relocation rounds and sweeps parameter grids.
package engine

import (
	"slices"
)

// Schedule lists the steps at which snapshots are taken.
type Schedule []int

// EveryN returns interval, 2·interval, … up to and including steps. The
// final step is always included.
func EveryN(interval, steps int) Schedule {
	if steps <= 0 {
		return nil
	}
	if interval <= 0 {
		return Schedule{steps}
	}
	var out Schedule
	for s := interval; s <= steps; s += interval {
		out = append(out, s)
	}
	if out == nil || out[len(out)-1] != steps {
		out = append(out, steps)
	}
	return out
}

// Explicit builds a schedule from a list of steps, dropping values outside
// 1..steps and duplicates.
func Explicit(list []int, steps int) Schedule {
	out := make(Schedule, 0, len(list))
	for _, s := range list {
		if s >= 1 && s <= steps {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Contains reports whether step is scheduled.
func (s Schedule) Contains(step int) bool {
	_, ok := slices.BinarySearch(s, step)
	return ok
}
