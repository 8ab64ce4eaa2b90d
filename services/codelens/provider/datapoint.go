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
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/refslens/services/codelens/rpc"
)

// =============================================================================
// DATA POINT STATE
// =============================================================================

// State is the lifecycle state of a data point.
type State int

const (
	// StateUninitialized is the state before the analysis channel is open.
	StateUninitialized State = iota

	// StateConnected means the analysis channel is open.
	StateConnected

	// StateTrackingChanges means the analysis service tracks the document
	// and will send invalidations.
	StateTrackingChanges

	// StateDisposed means the analysis channel has been released.
	StateDisposed
)

// String returns a human-readable state name.
func (s State) String() string {
	names := []string{"uninitialized", "connected", "tracking_changes", "disposed"}
	if s >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// =============================================================================
// DATA POINT
// =============================================================================

// DataPoint is one live reference-count subscription for a location.
//
// Description:
//
//	Summary and details are fetched through the shared host callback
//	channel so the host can post-process the analysis results. The owned
//	analysis channel is used only to register for change tracking and to
//	receive invalidations.
//
// Thread Safety:
//
//	Safe for concurrent use.
type DataPoint struct {
	descriptor Descriptor
	callback   rpc.Caller
	analysis   *rpc.Channel

	stateMu sync.RWMutex
	state   State

	listenersMu  sync.Mutex
	listeners    map[uint64]func()
	nextListener uint64

	disposeOnce sync.Once
	disposeErr  error
}

// newDataPoint takes ownership of stream and starts listening on it.
func newDataPoint(d Descriptor, stream io.ReadWriteCloser, callback rpc.Caller) *DataPoint {
	dp := &DataPoint{
		descriptor: d,
		callback:   callback,
		state:      StateUninitialized,
		listeners:  make(map[uint64]func()),
	}

	mux := rpc.NewMux()
	mux.Handle(MethodInvalidate, func(context.Context, json.RawMessage) (any, error) {
		dp.Invalidate()
		return nil, nil
	})

	dp.analysis = rpc.NewChannel(stream, "analysis")
	dp.analysis.Start(context.Background(), mux.Handler())
	dp.setState(StateConnected)
	recordActive(1)
	return dp
}

// Descriptor returns the location descriptor.
func (dp *DataPoint) Descriptor() Descriptor {
	return dp.descriptor
}

// State returns the current lifecycle state.
func (dp *DataPoint) State() State {
	dp.stateMu.RLock()
	defer dp.stateMu.RUnlock()
	return dp.state
}

// TrackChanges registers the document with the analysis service.
//
// Description:
//
//	Resolves the durable document id through the host. When the host has
//	no id for the file the data point stays Connected and nil is
//	returned. Otherwise the analysis service is asked to track the
//	document and the data point moves to TrackingChanges.
//
// Outputs:
//
//	error - The host or analysis call error, ErrInvalidResponse for a
//	        malformed id, or ErrDisposed
func (dp *DataPoint) TrackChanges(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if dp.State() == StateDisposed {
		return ErrDisposed
	}

	docID, err := dp.documentID(ctx)
	if err != nil {
		return err
	}
	if docID == nil {
		return nil
	}

	params := TrackChangesParams{DocumentID: *docID}
	if err := dp.analysis.Call(ctx, MethodTrackChanges, params, nil); err != nil {
		return fmt.Errorf("track changes: %w", err)
	}

	dp.stateMu.Lock()
	if dp.state == StateConnected {
		dp.state = StateTrackingChanges
	}
	dp.stateMu.Unlock()
	return nil
}

// documentID asks the host for the project and document GUIDs of the
// descriptor's file. A nil id with a nil error means the host has none.
func (dp *DataPoint) documentID(ctx context.Context) (*DocumentID, error) {
	var guids []uuid.UUID
	params := DocumentIDParams{
		ProjectGUID: dp.descriptor.ProjectGUID,
		FilePath:    dp.descriptor.FilePath,
	}
	if err := dp.callback.Call(ctx, MethodGetDocumentID, params, &guids); err != nil {
		return nil, fmt.Errorf("get document id: %w", err)
	}
	if guids == nil {
		return nil, nil
	}
	if len(guids) != 2 {
		return nil, fmt.Errorf("%w: document id has %d guids, want 2", ErrInvalidResponse, len(guids))
	}

	return &DocumentID{
		ProjectID:        guids[0],
		ProjectDebugName: dp.descriptor.ProjectGUID.String(),
		ID:               guids[1],
		FilePath:         dp.descriptor.FilePath,
	}, nil
}

// GetData fetches the reference count and formats the summary.
//
// Outputs:
//
//	*DataPointDescriptor - The summary, or nil when the host returns no count
//	error - The callback error, or ErrUnsupportedKind when the descriptor
//	        kind has no label
func (dp *DataPoint) GetData(ctx context.Context) (result *DataPointDescriptor, err error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if dp.State() == StateDisposed {
		return nil, ErrDisposed
	}

	ctx, span := startOperationSpan(ctx, "GetData", dp.descriptor)
	start := time.Now()
	var count *ReferenceCount
	defer func() {
		n := 0
		if count != nil {
			n = count.Count
		}
		recordOperationMetrics(ctx, "get_data", time.Since(start), n, err)
		endOperationSpan(span, n, err)
	}()

	if err := dp.callback.Call(ctx, MethodGetReferenceCount, dp.descriptor, &count); err != nil {
		return nil, fmt.Errorf("get reference count: %w", err)
	}
	if count == nil {
		return nil, nil
	}
	return summarize(*count, dp.descriptor.Kind)
}

// GetDetails fetches reference locations and maps them to a details table
// with one row per location.
func (dp *DataPoint) GetDetails(ctx context.Context) (result *DetailsDescriptor, err error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if dp.State() == StateDisposed {
		return nil, ErrDisposed
	}

	ctx, span := startOperationSpan(ctx, "GetDetails", dp.descriptor)
	start := time.Now()
	var locations []ReferenceLocation
	defer func() {
		recordOperationMetrics(ctx, "get_details", time.Since(start), len(locations), err)
		endOperationSpan(span, len(locations), err)
	}()

	if err := dp.callback.Call(ctx, MethodFindReferenceLocations, dp.descriptor, &locations); err != nil {
		locations = nil
		return nil, fmt.Errorf("find reference locations: %w", err)
	}
	return details(dp.descriptor.FilePath, locations), nil
}

// OnInvalidated registers fn to run on every invalidation. The returned
// function unregisters it.
func (dp *DataPoint) OnInvalidated(fn func()) (cancel func()) {
	dp.listenersMu.Lock()
	id := dp.nextListener
	dp.nextListener++
	dp.listeners[id] = fn
	dp.listenersMu.Unlock()

	return func() {
		dp.listenersMu.Lock()
		delete(dp.listeners, id)
		dp.listenersMu.Unlock()
	}
}

// Invalidate tells listeners that cached data is stale. Each listener runs
// on its own goroutine; Invalidate does not wait for them.
func (dp *DataPoint) Invalidate() {
	recordInvalidation()

	dp.listenersMu.Lock()
	fns := make([]func(), 0, len(dp.listeners))
	for _, fn := range dp.listeners {
		fns = append(fns, fn)
	}
	dp.listenersMu.Unlock()

	for _, fn := range fns {
		go fn()
	}
}

// Dispose releases the analysis channel. The host callback channel is not
// touched. Multiple calls are idempotent and return the first result.
func (dp *DataPoint) Dispose() error {
	dp.disposeOnce.Do(func() {
		dp.setState(StateDisposed)

		dp.listenersMu.Lock()
		clear(dp.listeners)
		dp.listenersMu.Unlock()

		dp.disposeErr = dp.analysis.Close()
		recordActive(-1)
	})
	return dp.disposeErr
}

func (dp *DataPoint) setState(s State) {
	dp.stateMu.Lock()
	dp.state = s
	dp.stateMu.Unlock()
}
