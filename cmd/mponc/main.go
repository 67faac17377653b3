// Command mponc runs the neighborhood relocation simulation over a grid of
// capacity and alpha values and serves the stored results.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mlim70/MPONC-Streamlined/internal/config"
	"github.com/mlim70/MPONC-Streamlined/internal/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mponc",
		Short: "Neighborhood relocation simulation",
		Long: `mponc simulates households relocating between city locations.

Each run fixes a neighborhood capacity (rho) and a community weight (alpha),
moves agents along observed travel routes, and records how income sorts
across neighborhoods. Snapshots land in a SQLite database and as CSV files.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newGenerateCmd(),
		newExportCmd(),
		newScoreCmd(),
		newServeCmd(),
	)
	return rootCmd
}

// loadConfig reads the config named by --config, applies env and global
// flag overrides, and installs the logger as the slog default. Callers
// apply their own flag overrides and then call Validate.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
	}
	if !logging.ValidLevel(cfg.Logging.Level) {
		return nil, fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}
	slog.SetDefault(logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()))
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				writeJSON(cmd, map[string]string{
					"version": version,
					"commit":  commit,
					"date":    date,
				})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "mponc version %s (commit: %s, built: %s)\n", version, commit, date)
			}
		},
	}
}
