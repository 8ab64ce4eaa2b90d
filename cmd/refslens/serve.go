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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/AleutianAI/refslens/cmd/refslens/config"
	"github.com/AleutianAI/refslens/pkg/telemetry"
	"github.com/AleutianAI/refslens/services/codelens/errsink"
	"github.com/AleutianAI/refslens/services/codelens/host"
	"github.com/AleutianAI/refslens/services/codelens/hub"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// telemetryShutdownTimeout bounds the final span and metric flush.
const telemetryShutdownTimeout = 5 * time.Second

// runServe serves the editor over stdio until it hangs up or the process
// is interrupted. The metrics endpoint, when enabled, runs alongside and
// stops with it.
func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger("refslens-serve")
	if err != nil {
		return err
	}
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := initTelemetry(ctx, "refslens-serve", cfg.Metrics.Enabled)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer flushTelemetry(shutdownTelemetry, logger.Slog())

	registry := buildRegistry(cfg, logger.Slog())
	sink := errsink.New()
	server := host.NewServer(newStdio(), registry,
		host.WithErrorHandler(errsink.Multi(errsink.NewLogHandler(logger.Slog()), sink)),
		host.WithLogger(logger.Slog()),
		host.WithServiceName(cfg.DefaultService),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		return server.Serve(gCtx)
	})
	if cfg.Metrics.Enabled {
		router := newRouter(server, registry.Services(), sink, logger.Slog())
		g.Go(func() error {
			return serveHTTP(gCtx, cfg.Metrics.Listen, router, logger.Slog())
		})
	}

	logger.Info("refslens serve started",
		slog.String("version", version),
		slog.String("default_service", cfg.DefaultService),
		slog.Any("services", registry.Services()),
	)
	return g.Wait()
}

// buildRegistry registers one broker per configured service.
func buildRegistry(c config.Config, logger *slog.Logger) *hub.Registry {
	registry := hub.NewRegistry()
	for name, svc := range c.Services {
		switch svc.Mode {
		case config.ModeProcess:
			registry.Register(name, &hub.ProcessBroker{
				Command:     resolveCommand(svc.Command),
				Args:        svc.Args,
				Env:         svc.Env,
				Dir:         svc.Dir,
				StopTimeout: svc.StopTimeout,
				Logger:      logger.With(slog.String("service", name)),
			})
		case config.ModeSocket:
			registry.Register(name, &hub.SocketBroker{
				Network:     svc.Network,
				Address:     svc.Address,
				DialTimeout: svc.DialTimeout,
			})
		}
	}
	return registry
}

// resolveCommand maps "refslens" to the running executable so the default
// config works without the binary on PATH.
func resolveCommand(command string) string {
	if command != "refslens" {
		return command
	}
	self, err := os.Executable()
	if err != nil {
		return command
	}
	if resolved, err := filepath.EvalSymlinks(self); err == nil {
		return resolved
	}
	return self
}

// initTelemetry installs providers for the configured exporters. Metrics
// are only exported by processes that serve the metrics endpoint.
func initTelemetry(ctx context.Context, service string, withMetrics bool) (func(context.Context) error, error) {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = service
	tcfg.ServiceVersion = version
	tcfg.TraceExporter = cfg.Tracing.Exporter
	tcfg.TraceFile = cfg.Tracing.File
	tcfg.OTLPEndpoint = cfg.Tracing.Endpoint
	tcfg.OTLPInsecure = cfg.Tracing.Insecure
	tcfg.MetricExporter = telemetry.ExporterNone
	if withMetrics {
		tcfg.MetricExporter = cfg.Metrics.Exporter
	}
	return telemetry.Init(ctx, tcfg)
}

func flushTelemetry(shutdown func(context.Context) error, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
	}
}
