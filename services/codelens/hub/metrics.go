// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hub

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("refslens.hub")
	meter  = otel.Meter("refslens.hub")
)

var (
	requestTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		requestTotal, metricsErr = meter.Int64Counter(
			"hub_service_requests_total",
			metric.WithDescription("Total number of service stream requests"),
		)
	})
	return metricsErr
}

func startRequestSpan(ctx context.Context, desc ServiceDescriptor) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Registry.RequestService",
		trace.WithAttributes(
			attribute.String("hub.service", desc.Name),
			attribute.String("hub.host_group", desc.HostGroup),
		),
	)
}

func setRequestSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func recordRequest(ctx context.Context, service string, err error) {
	if initMetrics() != nil {
		return
	}
	requestTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.Bool("success", err == nil),
	))
}
