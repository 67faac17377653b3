package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mlim70/MPONC-Streamlined/internal/calibration"
	"github.com/mlim70/MPONC-Streamlined/internal/persistence"
)

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Rank finished runs by income fit",
		Long: `Score the final snapshot of every finished run: the sum over locations of
|expected income - simulated average income|. Lower is better.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("db") {
				cfg.Storage.Path, _ = f.GetString("db")
			}

			db, err := persistence.Open(cfg.Storage.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			snaps, err := db.LatestSnapshots(ctx)
			if err != nil {
				return err
			}
			entries := make([]calibration.Entry, 0, len(snaps))
			for _, snap := range snaps {
				rows, err := db.LoadSummary(ctx, snap.ID)
				if err != nil {
					return fmt.Errorf("snapshot %d: %w", snap.ID, err)
				}
				entries = append(entries, calibration.Entry{Key: snap.Key(), RunID: snap.RunID, Fit: calibration.Score(rows)})
			}
			ranked := calibration.Rank(entries)

			jsonOut, _ := f.GetBool("json")
			if jsonOut {
				return writeJSON(cmd, ranked)
			}
			out, _ := f.GetString("out")
			if out == "" {
				return calibration.WriteCSV(cmd.OutOrStdout(), cfg.Storage.Key, ranked)
			}
			file, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := calibration.WriteCSV(file, cfg.Storage.Key, ranked); err != nil {
				file.Close()
				return err
			}
			return file.Close()
		},
	}

	cmd.Flags().String("db", "", "SQLite database path")
	cmd.Flags().String("out", "", "Write the ranking CSV to this file instead of stdout")
	return cmd
}
