// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rpc

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("refslens.rpc")
	meter  = otel.Meter("refslens.rpc")
)

var (
	callLatency metric.Float64Histogram
	callTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		callLatency, err = meter.Float64Histogram(
			"rpc_call_duration_seconds",
			metric.WithDescription("Duration of outbound JSON-RPC calls"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		callTotal, err = meter.Int64Counter(
			"rpc_call_total",
			metric.WithDescription("Total number of outbound JSON-RPC calls"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startCallSpan(ctx context.Context, channel, method string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Channel.Call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.channel", channel),
			attribute.String("rpc.method", method),
		),
	)
}

func setCallSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// callOutcome classifies an error for the "outcome" metric attribute.
func callOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

func recordCallMetrics(ctx context.Context, channel, method string, duration time.Duration, err error) {
	if initErr := initMetrics(); initErr != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("method", method),
		attribute.String("outcome", callOutcome(err)),
	)
	callLatency.Record(ctx, duration.Seconds(), attrs)
	callTotal.Add(ctx, 1, attrs)
}
