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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/refslens/pkg/telemetry"
	"github.com/AleutianAI/refslens/services/codelens/errsink"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// httpShutdownTimeout bounds in-flight scrapes on exit.
const httpShutdownTimeout = 5 * time.Second

// dataPointCounter reports how many data points are open.
type dataPointCounter interface {
	DataPoints() int
}

// newRouter builds the metrics and health endpoint.
//
// Routes:
//
//	GET /healthz        - version, open data points, configured services
//	GET /metrics        - Prometheus scrape, when the exporter is installed
//	GET /debug/errors   - drains the error sink
func newRouter(points dataPointCounter, services []string, sink *errsink.Sink, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("refslens"))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"version":     version,
			"data_points": points.DataPoints(),
			"services":    services,
		})
	})

	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	router.GET("/debug/errors", func(c *gin.Context) {
		entries := sink.DrainEntries()
		if entries == nil {
			entries = []errsink.Entry{}
		}
		telemetry.LoggerWithTrace(c.Request.Context(), logger).Debug("Drained error sink",
			slog.Int("count", len(entries)))
		c.JSON(http.StatusOK, gin.H{"errors": entries})
	})
	return router
}

// serveHTTP runs handler on addr until ctx ends.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("Metrics endpoint listening", slog.String("address", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics endpoint: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics endpoint shutdown: %w", err)
	}
	return nil
}
