// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package provider

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for data point operations.
var (
	tracer = otel.Tracer("refslens.provider")
	meter  = otel.Meter("refslens.provider")
)

// Metrics for data point operations.
var (
	operationLatency metric.Float64Histogram
	operationTotal   metric.Int64Counter
	resultCount      metric.Int64Histogram
	invalidations    metric.Int64Counter
	activeDataPoints metric.Int64UpDownCounter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		operationLatency, err = meter.Float64Histogram(
			"codelens_operation_duration_seconds",
			metric.WithDescription("Duration of code lens data point operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		operationTotal, err = meter.Int64Counter(
			"codelens_operation_total",
			metric.WithDescription("Total number of code lens data point operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resultCount, err = meter.Int64Histogram(
			"codelens_result_count",
			metric.WithDescription("Reference counts and detail rows returned"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		invalidations, err = meter.Int64Counter(
			"codelens_invalidations_total",
			metric.WithDescription("Total number of invalidations received from the analysis service"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		activeDataPoints, err = meter.Int64UpDownCounter(
			"codelens_active_data_points",
			metric.WithDescription("Number of data points not yet disposed"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startOperationSpan creates a span for a data point operation.
func startOperationSpan(ctx context.Context, operation string, d Descriptor) (context.Context, trace.Span) {
	return tracer.Start(ctx, "DataPoint."+operation,
		trace.WithAttributes(
			attribute.String("codelens.operation", operation),
			attribute.String("codelens.file_path", d.FilePath),
			attribute.String("codelens.kind", d.Kind.String()),
		),
	)
}

// endOperationSpan records the outcome on span and ends it.
func endOperationSpan(span trace.Span, resultCnt int, err error) {
	span.SetAttributes(
		attribute.Int("codelens.result_count", resultCnt),
		attribute.Bool("codelens.success", err == nil),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// recordOperationMetrics records metrics for a data point operation.
func recordOperationMetrics(ctx context.Context, operation string, duration time.Duration, resultCnt int, err error) {
	if initMetrics() != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	)

	operationLatency.Record(ctx, duration.Seconds(), attrs)
	operationTotal.Add(ctx, 1, attrs)

	if err == nil {
		resultCount.Record(ctx, int64(resultCnt), metric.WithAttributes(
			attribute.String("operation", operation),
		))
	}
}

func recordInvalidation() {
	if initMetrics() != nil {
		return
	}
	invalidations.Add(context.Background(), 1)
}

func recordActive(delta int64) {
	if initMetrics() != nil {
		return
	}
	activeDataPoints.Add(context.Background(), delta)
}
