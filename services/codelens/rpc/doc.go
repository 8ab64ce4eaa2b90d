// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rpc wraps go.lsp.dev/jsonrpc2 connections into the two kinds of
// channel the code lens provider works with.
//
// # Ownership
//
// A Channel owns its connection: Close releases the underlying stream.
// Shared returns a Caller view of the same connection that can issue
// requests and notifications but cannot close it. Components that merely
// borrow a connection (for example a data point using the host callback
// connection) hold a Caller, so releasing a borrowed connection is not
// expressible in their code.
//
//	┌──────────────┐   Call / Notify   ┌──────────────────┐
//	│   Channel    │ ────────────────► │  remote process  │
//	│  (owning)    │ ◄──────────────── │                  │
//	└──────┬───────┘   notifications   └──────────────────┘
//	       │ Shared()
//	       ▼
//	┌──────────────┐
//	│    Caller    │  no Close
//	└──────────────┘
//
// # Cancellation
//
// Every Call takes a context. When the context ends before the response
// arrives, the pending request is abandoned, a "$/cancelRequest"
// notification is sent for its id, and the context error is returned.
// Mux honours the same notification on the serving side.
//
// # Thread Safety
//
// Channel, Caller and Mux are safe for concurrent use.
package rpc
