// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/playctl/internal/config"
	"github.com/ManuGH/playctl/internal/daemon"
	xglog "github.com/ManuGH/playctl/internal/log"
	"github.com/ManuGH/playctl/internal/version"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader := config.NewLoader(configPath, version.Version)
			cfg, err := loader.Load()
			if err != nil {
				return err
			}

			xglog.Configure(xglog.Config{
				Level:   cfg.Log.Level,
				Service: "playctld",
				Version: version.Version,
			})

			app, err := daemon.Bootstrap(cmd.Context(), config.NewHolder(cfg, loader))
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	return cmd
}
