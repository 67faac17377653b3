package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mlim70/MPONC-Streamlined/internal/api"
	"github.com/mlim70/MPONC-Streamlined/internal/persistence"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs over a read-only HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("port") {
				cfg.API.Port, _ = f.GetInt("port")
			}
			if f.Changed("db") {
				cfg.Storage.Path, _ = f.GetString("db")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			db, err := persistence.Open(cfg.Storage.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			srv := &api.Server{Store: db, Port: cfg.API.Port, Prefix: cfg.Storage.Key}
			if limit, _ := f.GetInt("rate-limit"); limit > 0 {
				srv.Limiter = api.NewRateLimiter(limit, time.Minute)
			}
			return srv.Start(cmd.Context())
		},
	}

	cmd.Flags().Int("port", 0, "Listen port")
	cmd.Flags().String("db", "", "SQLite database path")
	cmd.Flags().Int("rate-limit", 10, "Calibration requests per client per minute (0 = unlimited)")
	return cmd
}
