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
	"encoding/json"
	"fmt"
	"sync"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

// HandlerFunc serves one inbound method. The returned value is replied as
// the result; for notifications it is discarded.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Mux routes inbound JSON-RPC messages by method name.
//
// Description:
//
//	Unknown methods are answered with "method not found". In async mode
//	each request runs on its own goroutine with a context that is
//	cancelled when the peer sends "$/cancelRequest" for its id. Async
//	mode is required whenever a handler issues calls on the same
//	connection it is serving, otherwise the read loop would wait on
//	itself.
//
// Thread Safety:
//
//	Register all routes before the handler is started; dispatch is safe
//	for concurrent use.
type Mux struct {
	routes map[string]HandlerFunc
	async  bool

	inflightMu sync.Mutex
	inflight   map[jsonrpc2.ID]context.CancelFunc
}

// MuxOption configures a Mux.
type MuxOption func(*Mux)

// WithAsync dispatches each request on its own goroutine.
func WithAsync() MuxOption {
	return func(m *Mux) {
		m.async = true
	}
}

// NewMux creates an empty router.
func NewMux(opts ...MuxOption) *Mux {
	m := &Mux{
		routes:   make(map[string]HandlerFunc),
		inflight: make(map[jsonrpc2.ID]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle registers fn for method, replacing any previous registration.
func (m *Mux) Handle(method string, fn HandlerFunc) {
	m.routes[method] = fn
}

// Handler returns the jsonrpc2 handler to pass to Channel.Start.
func (m *Mux) Handler() jsonrpc2.Handler {
	return m.dispatch
}

// InFlight returns the number of async requests still running.
func (m *Mux) InFlight() int {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	return len(m.inflight)
}

func (m *Mux) dispatch(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	if req.Method() == MethodCancelRequest {
		m.cancelInflight(req.Params())
		return reply(ctx, nil, nil)
	}

	fn, ok := m.routes[req.Method()]
	if !ok {
		return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
	}

	call, isCall := req.(*jsonrpc2.Call)
	if !m.async || !isCall {
		result, err := fn(ctx, req.Params())
		return reply(ctx, result, toWireError(err))
	}

	callCtx, cancel := context.WithCancel(ctx)
	id := call.ID()
	m.inflightMu.Lock()
	m.inflight[id] = cancel
	m.inflightMu.Unlock()

	go func() {
		defer func() {
			m.inflightMu.Lock()
			delete(m.inflight, id)
			m.inflightMu.Unlock()
			cancel()
		}()
		result, err := fn(callCtx, req.Params())
		if callCtx.Err() != nil && err != nil {
			err = jsonrpc2.NewError(codeRequestCancelled, fmt.Sprintf("request %s cancelled", req.Method()))
		}
		_ = reply(ctx, result, toWireError(err))
	}()
	return nil
}

// cancelInflight cancels the async request named by a cancel notification.
func (m *Mux) cancelInflight(raw json.RawMessage) {
	var params protocol.CancelParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return
	}

	var id jsonrpc2.ID
	switch v := params.ID.(type) {
	case float64:
		id = jsonrpc2.NewNumberID(int32(v))
	case string:
		id = jsonrpc2.NewStringID(v)
	default:
		return
	}

	m.inflightMu.Lock()
	cancel, ok := m.inflight[id]
	m.inflightMu.Unlock()
	if ok {
		cancel()
	}
}

// Decode unmarshals params into v, reporting failures as ErrInvalidParams.
func Decode(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return fmt.Errorf("%w: missing params", ErrInvalidParams)
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
