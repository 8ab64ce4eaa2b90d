// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/AleutianAI/refslens/cmd/refslens/config"
	"github.com/AleutianAI/refslens/pkg/logging"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// configPath overrides the default config location.
	configPath string

	// logLevel overrides log.level from the config file.
	logLevel string

	// listenAddr makes `analysis` listen instead of serving stdio.
	listenAddr string

	// cfg is loaded once by the root PersistentPreRunE.
	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "refslens",
		Short: "Reference count code lenses over JSON-RPC",
		Long: `refslens answers code lens requests from an editor with reference
counts and reference locations, and keeps each lens current by watching the
documents it was created for.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd == versionCmd {
				return nil
			}
			loaded, _, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				loaded.Log.Level = logLevel
				if err := config.Validate(loaded); err != nil {
					return err
				}
			}
			cfg = loaded
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve code lens requests from an editor over stdio",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in serve.go
	}

	analysisCmd = &cobra.Command{
		Use:   "analysis",
		Short: "Run the analysis service that watches tracked documents",
		Long: `Serves one data point connection over stdio, or, with --listen,
accepts data point connections on a socket until interrupted.`,
		Args: cobra.NoArgs,
		RunE: runAnalysis, // Defined in analysis.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the refslens version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "refslens %s\n", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to refslens.yaml (default ~/.refslens/refslens.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(analysisCmd)
	analysisCmd.Flags().StringVar(&listenAddr, "listen", "",
		"Listen on network:address (e.g., unix:/tmp/refslens.sock, tcp:127.0.0.1:7070)")

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger from cfg. Logs go to stderr, which
// is never the JSON-RPC stream.
func newLogger(service string) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: service,
		Format:  logging.Format(cfg.Log.Format),
		Quiet:   cfg.Log.Quiet,
	}), nil
}
