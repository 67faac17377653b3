package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mlim70/MPONC-Streamlined/internal/config"
	"github.com/mlim70/MPONC-Streamlined/internal/engine"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the parameter sweep",
		Long: `Run one simulation per (rho, alpha) pair over the configured data.

Runs execute concurrently. A failing run does not stop the others; every
failure is reported at the end, naming its parameters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			bundle, err := loadBundle(cfg)
			if err != nil {
				return err
			}
			in, err := buildInputs(bundle, cfg.Simulation.Agents, cfg.Simulation.SeedOffset)
			if err != nil {
				return err
			}

			noDB, _ := cmd.Flags().GetBool("no-db")
			noCSV, _ := cmd.Flags().GetBool("no-csv")

			var sink engine.SnapshotSink
			if !noDB {
				db, err := openDB(cfg.Storage.Path)
				if err != nil {
					return err
				}
				defer db.Close()
				source := cfg.Data.Dir
				if cfg.Data.Synthetic {
					source = "synthetic"
				}
				if err := db.SaveMeta("source", source); err != nil {
					return fmt.Errorf("save meta: %w", err)
				}
				sink = db
			}
			if !noCSV {
				sink = &csvSink{SnapshotSink: sink, dir: cfg.Storage.CSVDir, prefix: cfg.Storage.Key}
			}

			params := engine.Grid(cfg.Simulation.Rho, cfg.Simulation.Alpha)
			mgr := &engine.Manager{
				Inputs:  in,
				Options: runOptions(cfg.Simulation),
				Workers: cfg.Simulation.Workers,
				Sink:    sink,
			}
			results, runErr := mgr.Run(cmd.Context(), params)

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				if err := writeJSON(cmd, runReport(results)); err != nil {
					return err
				}
			} else {
				printResults(cmd, results)
			}
			return runErr
		},
	}

	cmd.Flags().IntSlice("rho", nil, "Neighborhood capacities to sweep")
	cmd.Flags().Float64Slice("alpha", nil, "Community weights to sweep")
	cmd.Flags().Int("steps", 0, "Rounds per run")
	cmd.Flags().Int("agents", 0, "Agents per run")
	cmd.Flags().Int("workers", 0, "Concurrent runs (0 = one per CPU)")
	cmd.Flags().Int64("seed-offset", 0, "Offset added to every run seed")
	cmd.Flags().Bool("synthetic", false, "Generate a synthetic city instead of loading data")
	cmd.Flags().String("data", "", "Input bundle directory")
	cmd.Flags().String("db", "", "SQLite database path")
	cmd.Flags().String("csv-dir", "", "Directory for summary CSVs")
	cmd.Flags().Bool("no-db", false, "Do not store snapshots in the database")
	cmd.Flags().Bool("no-csv", false, "Do not write summary CSVs")
	return cmd
}

// applyRunFlags copies explicitly set flags over the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	s := &cfg.Simulation
	if f.Changed("rho") {
		s.Rho, _ = f.GetIntSlice("rho")
	}
	if f.Changed("alpha") {
		s.Alpha, _ = f.GetFloat64Slice("alpha")
	}
	if f.Changed("steps") {
		s.Steps, _ = f.GetInt("steps")
	}
	if f.Changed("agents") {
		s.Agents, _ = f.GetInt("agents")
	}
	if f.Changed("workers") {
		s.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("seed-offset") {
		s.SeedOffset, _ = f.GetInt64("seed-offset")
	}
	if f.Changed("synthetic") {
		cfg.Data.Synthetic, _ = f.GetBool("synthetic")
	}
	if f.Changed("data") {
		cfg.Data.Dir, _ = f.GetString("data")
	}
	if f.Changed("db") {
		cfg.Storage.Path, _ = f.GetString("db")
	}
	if f.Changed("csv-dir") {
		cfg.Storage.CSVDir, _ = f.GetString("csv-dir")
	}
}

type runLine struct {
	ID      string  `json:"id,omitempty"`
	Rho     int     `json:"rho"`
	Alpha   float64 `json:"alpha"`
	Seed    int64   `json:"seed"`
	Elapsed string  `json:"elapsed"`
	Error   string  `json:"error,omitempty"`
}

func runReport(results []engine.RunResult) []runLine {
	out := make([]runLine, len(results))
	for i, r := range results {
		out[i] = runLine{
			ID:      r.ID,
			Rho:     r.Params.Rho,
			Alpha:   r.Params.Alpha,
			Seed:    r.Seed,
			Elapsed: r.Elapsed.Round(time.Millisecond).String(),
		}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return out
}

func printResults(cmd *cobra.Command, results []engine.RunResult) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RHO\tALPHA\tSEED\tAGENTS\tELAPSED\tSTATUS")
	failed := 0
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			failed++
			status = "failed"
			if ctxErr := cmd.Context().Err(); ctxErr != nil && errors.Is(r.Err, ctxErr) {
				status = "cancelled"
			}
		}
		fmt.Fprintf(w, "%d\t%g\t%d\t%s\t%s\t%s\n",
			r.Params.Rho, r.Params.Alpha, r.Seed, humanize.Comma(int64(r.Agents)),
			r.Elapsed.Round(time.Millisecond), status)
	}
	w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d runs, %d failed\n", len(results), failed)
}
