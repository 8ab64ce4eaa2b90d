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
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/AleutianAI/refslens/services/codelens/analysis"
	"github.com/AleutianAI/refslens/services/codelens/hub"
	"github.com/spf13/cobra"
)

// runAnalysis serves data point connections. Without a listen address it
// serves the single connection on stdio, which is how ProcessBroker runs it.
func runAnalysis(cmd *cobra.Command, _ []string) error {
	service := os.Getenv(hub.EnvServiceName)
	if service == "" {
		service = cfg.DefaultService
	}
	logger, err := newLogger("refslens-analysis")
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.With(
		slog.String("analysis_service", service),
		slog.String("host_group", os.Getenv(hub.EnvHostGroup)),
	)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := initTelemetry(ctx, "refslens-analysis", false)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer flushTelemetry(shutdownTelemetry, log)

	network, address := cfg.Analysis.Network, cfg.Analysis.Address
	if listenAddr != "" {
		network, address, err = parseListen(listenAddr)
		if err != nil {
			return err
		}
	}

	opts := []analysis.Option{
		analysis.WithLogger(log),
		analysis.WithDebounce(cfg.Analysis.Debounce),
	}
	if address == "" {
		log.Info("Serving analysis over stdio")
		return analysis.Serve(ctx, newStdio(), opts...)
	}
	return analysis.ListenAndServe(ctx, network, address, log, opts...)
}

// parseListen splits "network:address". Only unix and tcp are accepted.
func parseListen(s string) (network, address string, err error) {
	network, address, ok := strings.Cut(s, ":")
	if !ok || address == "" {
		return "", "", fmt.Errorf("--listen %q: want network:address", s)
	}
	switch network {
	case "unix", "tcp":
		return network, address, nil
	default:
		return "", "", fmt.Errorf("--listen %q: unsupported network %q", s, network)
	}
}
