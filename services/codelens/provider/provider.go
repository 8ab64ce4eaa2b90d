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
	"fmt"
	"io"
	"time"

	"github.com/AleutianAI/refslens/services/codelens/hub"
	"github.com/AleutianAI/refslens/services/codelens/rpc"
)

// Provider creates reference-count data points.
//
// Thread Safety:
//
//	Safe for concurrent use. The callback caller is shared by every data
//	point the provider creates.
type Provider struct {
	callback    rpc.Caller
	broker      hub.Broker
	serviceName string
}

// Option configures a Provider.
type Option func(*Provider)

// WithServiceName sets the service requested from the broker.
// Default: "analysis".
func WithServiceName(name string) Option {
	return func(p *Provider) {
		if name != "" {
			p.serviceName = name
		}
	}
}

// New creates a provider.
//
// Inputs:
//
//	callback - Non-owning view of the host callback channel
//	broker - Resolves the analysis service for each data point
//	opts - Optional settings
//
// Outputs:
//
//	*Provider - The provider
func New(callback rpc.Caller, broker hub.Broker, opts ...Option) *Provider {
	p := &Provider{
		callback:    callback,
		broker:      broker,
		serviceName: DefaultServiceName,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ServiceName returns the service requested from the broker.
func (p *Provider) ServiceName() string {
	return p.serviceName
}

// CanCreateDataPoint reports whether d can carry a data point: it must
// have a span. Any span is accepted. It never fails.
func (p *Provider) CanCreateDataPoint(_ context.Context, d Descriptor) (bool, error) {
	return d.ApplicableSpan != nil, nil
}

// CreateDataPoint connects a new data point and starts change tracking.
//
// Description:
//
//	Fetches the host group id over the callback channel, requests the
//	analysis service for that group from the broker and wraps the stream
//	in a channel owned by the data point. Change tracking is then set up;
//	if that fails the data point is disposed before the error is returned.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout
//	d - The location descriptor
//
// Outputs:
//
//	*DataPoint - The connected data point; the caller must Dispose it
//	error - Wraps ErrConnect when the service could not be reached, or the
//	        tracking error
func (p *Provider) CreateDataPoint(ctx context.Context, d Descriptor) (dp *DataPoint, err error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}

	ctx, span := startOperationSpan(ctx, "Create", d)
	start := time.Now()
	defer func() {
		recordOperationMetrics(ctx, "create", time.Since(start), 0, err)
		endOperationSpan(span, 0, err)
	}()

	stream, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}

	dp = newDataPoint(d, stream, p.callback)
	if err := dp.TrackChanges(ctx); err != nil {
		_ = dp.Dispose()
		return nil, err
	}
	return dp, nil
}

// connect opens a stream to the analysis service of the host's group.
func (p *Provider) connect(ctx context.Context) (io.ReadWriteCloser, error) {
	var hostGroupID string
	if err := p.callback.Call(ctx, MethodGetHostGroupID, nil, &hostGroupID); err != nil {
		return nil, fmt.Errorf("%w: get host group id: %w", ErrConnect, err)
	}

	desc := hub.ServiceDescriptor{Name: p.serviceName, HostGroup: hostGroupID}
	stream, err := p.broker.RequestService(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return stream, nil
}
