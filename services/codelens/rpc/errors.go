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
	"errors"
	"fmt"

	"go.lsp.dev/jsonrpc2"
)

// Sentinel errors for channel operations.
var (
	// ErrChannelClosed indicates the channel was closed locally.
	ErrChannelClosed = errors.New("rpc channel closed")

	// ErrNotStarted indicates Call was used before Start.
	ErrNotStarted = errors.New("rpc channel not started")

	// ErrInvalidParams indicates request parameters could not be decoded.
	ErrInvalidParams = errors.New("invalid rpc params")
)

// JSON-RPC error codes this package inspects.
const (
	codeMethodNotFound   = -32601
	codeInvalidParams    = -32602
	codeRequestCancelled = -32800
)

// CallError is returned when the remote side answers a request with a
// JSON-RPC error object.
type CallError struct {
	// Channel is the name of the channel the request was sent on.
	Channel string

	// Method is the method that failed.
	Method string

	// Code is the JSON-RPC error code.
	Code int

	// Message is the error message from the remote side.
	Message string
}

// Error implements the error interface.
func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s failed with code %d: %s", e.Channel, e.Method, e.Code, e.Message)
}

// IsMethodNotFound reports whether the remote side does not implement the method.
func (e *CallError) IsMethodNotFound() bool {
	return e.Code == codeMethodNotFound
}

// IsInvalidParams reports whether the remote side rejected the parameters.
func (e *CallError) IsInvalidParams() bool {
	return e.Code == codeInvalidParams
}

// IsRequestCancelled reports whether the remote side cancelled the request.
func (e *CallError) IsRequestCancelled() bool {
	return e.Code == codeRequestCancelled
}

// toWireError converts a handler error into the error value replied on the wire.
// Errors that already carry a JSON-RPC code keep it; invalid params map to
// the standard code; everything else becomes an internal error.
func toWireError(err error) error {
	if err == nil {
		return nil
	}
	var wire *jsonrpc2.Error
	if errors.As(err, &wire) {
		return err
	}
	if errors.Is(err, ErrInvalidParams) {
		return jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error())
	}
	return jsonrpc2.NewError(jsonrpc2.InternalError, err.Error())
}
