// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs the OpenTelemetry SDK for refslens commands.
//
// Components never import the SDK. They take otel.Tracer and otel.Meter
// from the global providers, and Init decides where the data goes:
//
//   - Metrics: a Prometheus exporter backed by a private registry, served
//     by MetricsHandler, or a periodic stdout exporter.
//   - Traces: OTLP over gRPC to a collector, or the stdout exporter
//     writing JSON spans to a trace file.
//
// The "stdout" exporters write to stderr when no file is given, because
// stdout carries JSON-RPC in every refslens command.
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
// # Thread Safety
//
// Init is called once at startup. MetricsHandler is safe for concurrent use.
package telemetry
