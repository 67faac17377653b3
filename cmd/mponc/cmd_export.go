package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mlim70/MPONC-Streamlined/internal/persistence"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write summary CSVs from stored snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("db") {
				cfg.Storage.Path, _ = f.GetString("db")
			}
			if f.Changed("csv-dir") {
				cfg.Storage.CSVDir, _ = f.GetString("csv-dir")
			}

			db, err := persistence.Open(cfg.Storage.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			runID, _ := f.GetString("run")
			var snaps []persistence.SnapshotRecord
			if runID != "" {
				if _, err := db.GetRun(ctx, runID); err != nil {
					return fmt.Errorf("run %s: %w", runID, err)
				}
				snaps, err = db.ListSnapshots(ctx, runID)
			} else {
				snaps, err = db.AllSnapshots(ctx)
			}
			if err != nil {
				return err
			}

			paths := make([]string, 0, len(snaps))
			for _, snap := range snaps {
				rows, err := db.LoadSummary(ctx, snap.ID)
				if err != nil {
					return fmt.Errorf("snapshot %d: %w", snap.ID, err)
				}
				path, err := persistence.ExportSummaryFile(cfg.Storage.CSVDir, cfg.Storage.Key, snap.Key(), rows)
				if err != nil {
					return err
				}
				paths = append(paths, path)
			}

			jsonOut, _ := f.GetBool("json")
			if jsonOut {
				return writeJSON(cmd, paths)
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	cmd.Flags().String("run", "", "Export only this run's snapshots")
	cmd.Flags().String("db", "", "SQLite database path")
	cmd.Flags().String("csv-dir", "", "Output directory")
	return cmd
}
