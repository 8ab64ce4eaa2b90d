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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

// MethodCancelRequest is the notification sent when a caller abandons a request.
const MethodCancelRequest = "$/cancelRequest"

// cancelNotifyTimeout bounds the write of a cancel notification.
const cancelNotifyTimeout = 5 * time.Second

// Caller issues requests and notifications over a connection it does not own.
type Caller interface {
	// Call sends a request and decodes the response into result.
	// A nil result discards the response body.
	Call(ctx context.Context, method string, params, result any) error

	// Notify sends a notification. No response is expected.
	Notify(ctx context.Context, method string, params any) error
}

// =============================================================================
// CHANNEL
// =============================================================================

// Channel is an owning handle to a bidirectional JSON-RPC connection.
//
// Description:
//
//	Wraps a jsonrpc2.Conn built over a byte stream. The channel must be
//	started with a handler for inbound messages before requests can be
//	sent, because responses are read by the same loop that dispatches
//	inbound requests.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Channel struct {
	name string
	conn jsonrpc2.Conn

	started atomic.Bool
	closed  atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// NewChannel creates a channel over rwc. The channel takes ownership of rwc.
//
// Inputs:
//
//	rwc - The byte stream (pipe, socket, process stdio)
//	name - Name used in errors, spans and metrics (e.g., "editor", "analysis")
//
// Outputs:
//
//	*Channel - The channel, not yet started
func NewChannel(rwc io.ReadWriteCloser, name string) *Channel {
	return &Channel{
		name: name,
		conn: jsonrpc2.NewConn(jsonrpc2.NewStream(rwc)),
	}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// Start begins reading from the connection and dispatching inbound
// messages to handler. A nil handler answers every request with
// "method not found". Subsequent calls are no-ops.
//
// The read loop is detached from ctx cancellation; it ends when the
// channel is closed or the remote side hangs up. Values carried by ctx
// remain visible to handlers.
func (c *Channel) Start(ctx context.Context, handler jsonrpc2.Handler) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	if handler == nil {
		handler = jsonrpc2.MethodNotFoundHandler
	}
	c.conn.Go(context.WithoutCancel(ctx), handler)
}

// Call sends a request and waits for the response.
//
// Description:
//
//	Blocks until the response arrives, the context ends or the connection
//	fails. If the context ends first, a cancel notification for the request
//	id is sent in the background and the context error is returned; result
//	is left for the caller to discard.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout
//	method - The remote method to invoke
//	params - Method parameters (JSON-marshaled)
//	result - Pointer to decode the result into, or nil. A null result
//	         sets the pointed-to value to its zero value.
//
// Outputs:
//
//	error - *CallError for remote errors, ErrChannelClosed after Close,
//	        the context error on cancellation, or a transport error
func (c *Channel) Call(ctx context.Context, method string, params, result any) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if c.closed.Load() {
		return fmt.Errorf("%s: %s: %w", c.name, method, ErrChannelClosed)
	}
	if !c.started.Load() {
		return fmt.Errorf("%s: %s: %w", c.name, method, ErrNotStarted)
	}

	ctx, span := startCallSpan(ctx, c.name, method)
	defer span.End()
	start := time.Now()

	// The underlying conn only wakes a pending call on a response or on
	// context end, so a dead read loop must cancel the call explicitly.
	callCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-c.conn.Done():
			stop()
		case <-callCtx.Done():
		}
	}()

	var raw json.RawMessage
	id, err := c.conn.Call(callCtx, method, params, &raw)
	switch {
	case ctx.Err() != nil:
		c.cancelRemote(ctx, id)
		err = ctx.Err()
	case err != nil && callCtx.Err() != nil:
		err = fmt.Errorf("%w: %v", ErrChannelClosed, c.connErr())
	case err == nil && result != nil:
		err = decodeResult(raw, result)
	}

	recordCallMetrics(ctx, c.name, method, time.Since(start), err)
	if err != nil {
		setCallSpanError(span, err)
		return c.wrapError(method, err)
	}
	return nil
}

// Notify sends a notification.
func (c *Channel) Notify(ctx context.Context, method string, params any) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if c.closed.Load() {
		return fmt.Errorf("%s: %s: %w", c.name, method, ErrChannelClosed)
	}
	if err := c.conn.Notify(ctx, method, params); err != nil {
		return c.wrapError(method, err)
	}
	return nil
}

// Close releases the connection. Multiple calls are idempotent and return
// the result of the first close.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	return c.closed.Load()
}

// Done is closed when the connection's read loop has ended.
func (c *Channel) Done() <-chan struct{} {
	return c.conn.Done()
}

// Err returns the error that ended the read loop, if any.
func (c *Channel) Err() error {
	return c.conn.Err()
}

// connErr describes why the read loop ended.
func (c *Channel) connErr() error {
	if err := c.conn.Err(); err != nil {
		return err
	}
	return io.EOF
}

// Shared returns a non-owning view of the channel.
func (c *Channel) Shared() Caller {
	return sharedCaller{ch: c}
}

// cancelRemote tells the remote side to stop working on id. The write runs
// in the background so an unresponsive peer cannot stall the caller.
func (c *Channel) cancelRemote(ctx context.Context, id jsonrpc2.ID) {
	if c.closed.Load() {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelNotifyTimeout)
	go func() {
		defer cancel()
		_ = c.conn.Notify(notifyCtx, MethodCancelRequest, &protocol.CancelParams{ID: &id})
	}()
}

// wrapError adds channel and method context to err.
func (c *Channel) wrapError(method string, err error) error {
	var wire *jsonrpc2.Error
	if errors.As(err, &wire) {
		return &CallError{
			Channel: c.name,
			Method:  method,
			Code:    int(wire.Code),
			Message: wire.Message,
		}
	}
	if c.closed.Load() && !errors.Is(err, ErrChannelClosed) {
		return fmt.Errorf("%s: %s: %w: %v", c.name, method, ErrChannelClosed, err)
	}
	return fmt.Errorf("%s: %s: %w", c.name, method, err)
}

// decodeResult decodes raw into result. A null or absent result zeroes the
// value result points to.
func decodeResult(raw json.RawMessage, result any) error {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if v := reflect.ValueOf(result); v.Kind() == reflect.Pointer && !v.IsNil() {
			v.Elem().SetZero()
		}
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("unmarshaling result: %w", err)
	}
	return nil
}

// sharedCaller exposes Call and Notify of a channel it does not own.
type sharedCaller struct {
	ch *Channel
}

func (s sharedCaller) Call(ctx context.Context, method string, params, result any) error {
	return s.ch.Call(ctx, method, params, result)
}

func (s sharedCaller) Notify(ctx context.Context, method string, params any) error {
	return s.ch.Notify(ctx, method, params)
}
