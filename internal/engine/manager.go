package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// SnapshotSink receives snapshots from concurrent runs. Implementations
// must be safe for concurrent use.
type SnapshotSink interface {
	BeginRun(ctx context.Context, run RunInfo) error
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	FinishRun(ctx context.Context, runID string, runErr error) error
}

// RunInfo describes one run as it starts.
type RunInfo struct {
	ID      string    `json:"id"`
	Params  Params    `json:"params"`
	Agents  int       `json:"agents"`
	Steps   int       `json:"steps"`
	Seed    int64     `json:"seed"`
	Started time.Time `json:"started"`
}

// RunResult is the outcome of one run.
type RunResult struct {
	RunInfo
	Final   *Snapshot     `json:"final,omitempty"` // State after all Steps rounds; nil on failure
	Elapsed time.Duration `json:"elapsed"`
	Err     error         `json:"-"`
}

// ErrRunPanic marks a run that panicked. The panic is confined to that run.
var ErrRunPanic = errors.New("run panicked")

// Manager runs many parameter pairs over the same inputs.
type Manager struct {
	Inputs  Inputs
	Options Options
	Workers int // <= 0 means GOMAXPROCS
	Sink    SnapshotSink
}

// Run executes every parameter pair on a bounded worker pool. A failing run
// does not stop the others; the returned error joins every failure, each
// naming its configuration. Results are in the order of params.
func (m *Manager) Run(ctx context.Context, params []Params) ([]RunResult, error) {
	workers := m.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(params) {
		workers = len(params)
	}

	type job struct {
		idx int
		p   Params
	}
	jobs := make(chan job)
	results := make([]RunResult, len(params))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.idx] = m.runOne(ctx, j.p)
			}
		}()
	}

	start := time.Now()
dispatch:
	for i, p := range params {
		select {
		case <-ctx.Done():
			for k := i; k < len(params); k++ {
				results[k] = RunResult{RunInfo: RunInfo{Params: params[k]}, Err: ctx.Err()}
			}
			break dispatch
		case jobs <- job{idx: i, p: p}:
		}
	}
	close(jobs)
	wg.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("run %s: %w", r.Params, r.Err))
		}
	}
	slog.Info("sweep done",
		"runs", len(params),
		"failed", len(errs),
		"agent_steps", humanize.Comma(int64(len(params)*len(m.Inputs.Endowments)*m.Options.Steps)),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return results, errors.Join(errs...)
}

func (m *Manager) runOne(ctx context.Context, p Params) (res RunResult) {
	begun, finished := false, false
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		slog.Error("run panicked", "params", p.String(), "panic", r)
		res.Err = fmt.Errorf("%w: %s: %v", ErrRunPanic, p, r)
		res.Final = nil
		if begun && !finished {
			if ferr := m.Sink.FinishRun(ctx, res.ID, res.Err); ferr != nil {
				res.Err = errors.Join(res.Err, ferr)
			}
		}
	}()

	res = RunResult{RunInfo: RunInfo{
		ID:      uuid.NewString(),
		Params:  p,
		Agents:  len(m.Inputs.Endowments),
		Steps:   m.Options.Steps,
		Started: time.Now(),
	}}

	sim, err := NewSimulation(m.Inputs, p, m.Options)
	if err != nil {
		res.Err = err
		return res
	}
	res.Seed = sim.Seed()

	if m.Sink != nil {
		if err := m.Sink.BeginRun(ctx, res.RunInfo); err != nil {
			res.Err = err
			return res
		}
		begun = true
	}

	err = sim.Run(func(snap Snapshot) error {
		if m.Sink == nil {
			return nil
		}
		snap.RunID = res.ID
		return m.Sink.SaveSnapshot(ctx, snap)
	})
	if err == nil {
		final := sim.Snapshot()
		final.RunID = res.ID
		res.Final = &final
	}
	res.Err = err
	res.Elapsed = time.Since(res.Started)

	if m.Sink != nil {
		finished = true
		if ferr := m.Sink.FinishRun(ctx, res.ID, err); ferr != nil {
			res.Err = errors.Join(res.Err, ferr)
		}
	}

	slog.Info("run done",
		"params", p.String(),
		"agents", humanize.Comma(int64(res.Agents)),
		"steps", humanize.Comma(int64(sim.StepCount())),
		"elapsed", res.Elapsed.Round(time.Millisecond),
		"ok", res.Err == nil,
	)
	return res
}

// MemorySink keeps snapshots in memory.
type MemorySink struct {
	mu        sync.Mutex
	Runs      map[string]RunInfo
	Snapshots []Snapshot
	Failed    map[string]error
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{Runs: make(map[string]RunInfo), Failed: make(map[string]error)}
}

func (s *MemorySink) BeginRun(_ context.Context, run RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Runs[run.ID] = run
	return nil
}

func (s *MemorySink) SaveSnapshot(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Snapshots = append(s.Snapshots, snap)
	return nil
}

func (s *MemorySink) FinishRun(_ context.Context, runID string, runErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if runErr != nil {
		s.Failed[runID] = runErr
	}
	return nil
}

// For returns the snapshots of one parameter pair in step order.
func (s *MemorySink) For(p Params) []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Snapshot
	for _, snap := range s.Snapshots {
		if snap.Rho == p.Rho && snap.Alpha == p.Alpha {
			out = append(out, snap)
		}
	}
	return out
}
