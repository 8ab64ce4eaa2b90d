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
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/AleutianAI/refslens/services/codelens/hub"
	"github.com/AleutianAI/refslens/services/codelens/rpc"
)

// fakeHost serves the host callback methods over an in-memory pipe.
type fakeHost struct {
	mu sync.Mutex

	hostGroup    string
	hostGroupErr error
	count        *ReferenceCount
	locations    []ReferenceLocation
	documentIDs  []uuid.UUID
	block        map[string]bool

	calls       map[string]int
	descriptors []Descriptor
	cancelled   chan string

	client *rpc.Channel
}

func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()
	h := &fakeHost{
		hostGroup: "group-1",
		block:     make(map[string]bool),
		calls:     make(map[string]int),
		cancelled: make(chan string, 8),
	}

	mux := rpc.NewMux(rpc.WithAsync())
	mux.Handle(MethodGetHostGroupID, func(ctx context.Context, _ json.RawMessage) (any, error) {
		h.record(MethodGetHostGroupID, nil)
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.hostGroupErr != nil {
			return nil, h.hostGroupErr
		}
		return h.hostGroup, nil
	})
	mux.Handle(MethodGetReferenceCount, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var d Descriptor
		if err := rpc.Decode(raw, &d); err != nil {
			return nil, err
		}
		h.record(MethodGetReferenceCount, &d)
		if err := h.maybeBlock(ctx, MethodGetReferenceCount); err != nil {
			return nil, err
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.count, nil
	})
	mux.Handle(MethodFindReferenceLocations, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var d Descriptor
		if err := rpc.Decode(raw, &d); err != nil {
			return nil, err
		}
		h.record(MethodFindReferenceLocations, &d)
		if err := h.maybeBlock(ctx, MethodFindReferenceLocations); err != nil {
			return nil, err
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.locations, nil
	})
	mux.Handle(MethodGetDocumentID, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p DocumentIDParams
		if err := rpc.Decode(raw, &p); err != nil {
			return nil, err
		}
		h.record(MethodGetDocumentID, nil)
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.documentIDs, nil
	})

	clientConn, serverConn := net.Pipe()
	server := rpc.NewChannel(serverConn, "fake-host")
	server.Start(context.Background(), mux.Handler())
	h.client = rpc.NewChannel(clientConn, "host")
	h.client.Start(context.Background(), nil)

	t.Cleanup(func() {
		_ = h.client.Close()
		_ = server.Close()
	})
	return h
}

// caller returns the shared view handed to the provider.
func (h *fakeHost) caller() rpc.Caller {
	return h.client.Shared()
}

func (h *fakeHost) record(method string, d *Descriptor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls[method]++
	if d != nil {
		h.descriptors = append(h.descriptors, *d)
	}
}

func (h *fakeHost) maybeBlock(ctx context.Context, method string) error {
	h.mu.Lock()
	block := h.block[method]
	h.mu.Unlock()
	if !block {
		return nil
	}
	<-ctx.Done()
	h.cancelled <- method
	return ctx.Err()
}

func (h *fakeHost) callCount(method string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[method]
}

// fakeAnalysis is a broker whose streams lead to an in-memory analysis
// service.
type fakeAnalysis struct {
	mu sync.Mutex

	requestErr error
	trackErr   error

	requests []hub.ServiceDescriptor
	tracked  []DocumentID
	servers  []*rpc.Channel
}

func (a *fakeAnalysis) broker(t *testing.T) hub.Broker {
	return hub.BrokerFunc(func(ctx context.Context, desc hub.ServiceDescriptor) (io.ReadWriteCloser, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.requests = append(a.requests, desc)
		if a.requestErr != nil {
			return nil, a.requestErr
		}

		mux := rpc.NewMux()
		mux.Handle(MethodTrackChanges, func(ctx context.Context, raw json.RawMessage) (any, error) {
			var p TrackChangesParams
			if err := rpc.Decode(raw, &p); err != nil {
				return nil, err
			}
			a.mu.Lock()
			defer a.mu.Unlock()
			if a.trackErr != nil {
				return nil, a.trackErr
			}
			a.tracked = append(a.tracked, p.DocumentID)
			return nil, nil
		})

		clientConn, serverConn := net.Pipe()
		server := rpc.NewChannel(serverConn, "fake-analysis")
		server.Start(context.Background(), mux.Handler())
		a.servers = append(a.servers, server)
		t.Cleanup(func() { _ = server.Close() })
		return clientConn, nil
	})
}

func (a *fakeAnalysis) server(i int) *rpc.Channel {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.servers[i]
}

func (a *fakeAnalysis) trackedDocs() []DocumentID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]DocumentID(nil), a.tracked...)
}

var errBoom = errors.New("boom")
