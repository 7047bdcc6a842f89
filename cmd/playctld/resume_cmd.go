// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ManuGH/playctl/internal/config"
	"github.com/ManuGH/playctl/internal/persistence/sqlite"
	"github.com/ManuGH/playctl/internal/version"
)

func newResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Maintain the resume position store",
	}
	cmd.AddCommand(newResumeVerifyCmd())
	return cmd
}

func newResumeVerifyCmd() *cobra.Command {
	var (
		configPath string
		mode       string
	)
	cmd := &cobra.Command{
		Use:   "verify [db-path]",
		Short: "Run an integrity check on the sqlite resume store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := config.NewLoader(configPath, version.Version).Load()
				if err != nil {
					return err
				}
				if cfg.Resume.Backend != "sqlite" {
					return fmt.Errorf("resume backend is %q, nothing to verify", cfg.Resume.Backend)
				}
				path = filepath.Join(cfg.Resume.DataDir, "resume.sqlite")
			}

			issues, err := sqlite.VerifyIntegrity(path, mode)
			if err != nil {
				return fmt.Errorf("verify %s: %w", path, err)
			}
			if len(issues) > 0 {
				for _, issue := range issues {
					fmt.Fprintln(cmd.ErrOrStderr(), issue)
				}
				return fmt.Errorf("%s: %d integrity issue(s)", path, len(issues))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	cmd.Flags().StringVar(&mode, "mode", "quick", "integrity check mode: quick or full")
	return cmd
}
