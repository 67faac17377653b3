package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mlim70/MPONC-Streamlined/internal/config"
	"github.com/mlim70/MPONC-Streamlined/internal/dataset"
	"github.com/mlim70/MPONC-Streamlined/internal/engine"
	"github.com/mlim70/MPONC-Streamlined/internal/entropy"
	"github.com/mlim70/MPONC-Streamlined/internal/persistence"
	"github.com/mlim70/MPONC-Streamlined/internal/transport"
	"github.com/mlim70/MPONC-Streamlined/internal/world"
)

// loadBundle reads the configured data directory, or generates a synthetic
// city with gravity-model routes when data.synthetic is set.
func loadBundle(cfg *config.Config) (*dataset.Bundle, error) {
	if !cfg.Data.Synthetic {
		b, err := dataset.Load(cfg.Data.Dir, cfg.Data.Normalize)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", cfg.Data.Dir, err)
		}
		slog.Info("dataset loaded", "dir", cfg.Data.Dir, "locations", b.Geography.N(), "routes", len(b.Routes))
		return b, nil
	}
	return generateBundle(cfg)
}

func generateBundle(cfg *config.Config) (*dataset.Bundle, error) {
	gen, err := world.Generate(cfg.Generator.GenConfig)
	if err != nil {
		return nil, err
	}
	gravity := transport.DefaultGravityConfig()
	gravity.BaseTrips = cfg.Generator.BaseTrips
	gravity.CarOwnership = cfg.Simulation.CarOwnershipRate
	routes, err := transport.Gravity(gen.IDs(), gen.Amenity, gen.Distances, gravity, entropy.NewRand(cfg.Generator.Seed))
	if err != nil {
		return nil, fmt.Errorf("trip model: %w", err)
	}
	slog.Info("synthetic city generated", "locations", gen.N(), "routes", len(routes), "trips", routes.TotalVolume())
	return dataset.FromGenerated(gen, routes), nil
}

// buildInputs turns a checked bundle into the shared run inputs. Endowments
// are drawn with the sweep's seed offset so every run sees the same agents.
func buildInputs(b *dataset.Bundle, agents int, seedOffset int64) (engine.Inputs, error) {
	if err := b.Check(); err != nil {
		return engine.Inputs{}, err
	}
	idx, err := transport.NewIndex(b.Routes, b.Geography.IDs())
	if err != nil {
		return engine.Inputs{}, err
	}
	endowments, err := b.AgentEndowments(agents, entropy.NewRand(seedOffset))
	if err != nil {
		return engine.Inputs{}, err
	}
	return engine.Inputs{
		Geography:  b.Geography,
		Routes:     idx,
		Endowments: endowments,
		Incomes:    b.Incomes.Lookup(),
	}, nil
}

func runOptions(s config.SimulationConfig) engine.Options {
	opts := engine.Options{
		Steps:         s.Steps,
		LearningRate:  s.LearningRate,
		CarOwnership:  s.CarOwnershipRate,
		TransitFactor: s.TransitFactor,
		SeedOffset:    s.SeedOffset,
	}
	if len(s.Benchmarks) > 0 {
		opts.Schedule = engine.Explicit(s.Benchmarks, s.Steps)
	} else {
		opts.Schedule = engine.EveryN(s.BenchmarkInterval, s.Steps)
	}
	return opts
}

func openDB(path string) (*persistence.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	return persistence.Open(path)
}

// csvSink forwards to another sink and writes each snapshot's summary CSV.
type csvSink struct {
	engine.SnapshotSink
	dir    string
	prefix string
}

func (s *csvSink) SaveSnapshot(ctx context.Context, snap engine.Snapshot) error {
	if s.SnapshotSink != nil {
		if err := s.SnapshotSink.SaveSnapshot(ctx, snap); err != nil {
			return err
		}
	}
	path, err := persistence.ExportSummaryFile(s.dir, s.prefix, snap.Key, snap.Locations)
	if err != nil {
		return err
	}
	slog.Debug("summary written", "path", path)
	return nil
}

func (s *csvSink) BeginRun(ctx context.Context, run engine.RunInfo) error {
	if s.SnapshotSink == nil {
		return nil
	}
	return s.SnapshotSink.BeginRun(ctx, run)
}

func (s *csvSink) FinishRun(ctx context.Context, runID string, runErr error) error {
	if s.SnapshotSink == nil {
		return nil
	}
	return s.SnapshotSink.FinishRun(ctx, runID, runErr)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
