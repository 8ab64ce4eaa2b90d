// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hub resolves named services to byte streams.
//
// A data point asks for a service by name within a host group, the way an
// editor host brokers access to out-of-process analysis services. The hub
// decides how to reach it: spawn a process and talk over its stdio, or dial
// a socket. The caller owns the returned stream and must close it.
package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Sentinel errors for service resolution.
var (
	// ErrUnknownService indicates no broker is registered for the service name.
	ErrUnknownService = errors.New("unknown service")

	// ErrServiceUnavailable indicates the broker could not reach the service.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// EnvHostGroup is set in the environment of spawned service processes.
const EnvHostGroup = "REFSLENS_HOST_GROUP"

// EnvServiceName is set in the environment of spawned service processes.
const EnvServiceName = "REFSLENS_SERVICE"

// ServiceDescriptor names a service within a host group.
type ServiceDescriptor struct {
	// Name is the service name (e.g., "analysis").
	Name string `json:"name"`

	// HostGroup identifies the host process group the service belongs to.
	HostGroup string `json:"hostGroup"`
}

// String returns "name@hostGroup".
func (d ServiceDescriptor) String() string {
	if d.HostGroup == "" {
		return d.Name
	}
	return d.Name + "@" + d.HostGroup
}

// Broker opens a stream to a service.
type Broker interface {
	// RequestService returns a new bidirectional stream to the service.
	// The caller owns the stream.
	RequestService(ctx context.Context, desc ServiceDescriptor) (io.ReadWriteCloser, error)
}

// BrokerFunc adapts a function to Broker.
type BrokerFunc func(ctx context.Context, desc ServiceDescriptor) (io.ReadWriteCloser, error)

// RequestService calls f.
func (f BrokerFunc) RequestService(ctx context.Context, desc ServiceDescriptor) (io.ReadWriteCloser, error) {
	return f(ctx, desc)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry routes service requests to a broker by service name.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	brokers map[string]Broker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{brokers: make(map[string]Broker)}
}

// Register binds name to broker, replacing any previous binding.
func (r *Registry) Register(name string, broker Broker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.brokers[name] = broker
}

// Services returns the registered service names in sorted order.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.brokers))
	for name := range r.brokers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequestService resolves desc.Name and forwards the request.
//
// Outputs:
//
//	io.ReadWriteCloser - The service stream, owned by the caller
//	error - ErrUnknownService if no broker is registered, otherwise the
//	        broker's error
func (r *Registry) RequestService(ctx context.Context, desc ServiceDescriptor) (io.ReadWriteCloser, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}

	r.mu.RLock()
	broker, ok := r.brokers[desc.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, desc.Name)
	}

	ctx, span := startRequestSpan(ctx, desc)
	defer span.End()

	stream, err := broker.RequestService(ctx, desc)
	recordRequest(ctx, desc.Name, err)
	if err != nil {
		setRequestSpanError(span, err)
		return nil, err
	}
	return stream, nil
}

var _ Broker = (*Registry)(nil)
