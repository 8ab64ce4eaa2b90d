// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/refslens/services/codelens/errsink"
	"github.com/AleutianAI/refslens/services/codelens/hub"
	"github.com/AleutianAI/refslens/services/codelens/provider"
	"github.com/AleutianAI/refslens/services/codelens/rpc"
)

// ErrUnknownHandle indicates a handle that names no live data point.
var ErrUnknownHandle = errors.New("unknown data point handle")

// ErrServerClosed indicates the server has been closed.
var ErrServerClosed = errors.New("server closed")

// Option configures a Server.
type Option func(*Server)

// WithErrorHandler sets where swallowed failures are reported.
// Default: errsink.Discard.
func WithErrorHandler(h errsink.Handler) Option {
	return func(s *Server) {
		if h != nil {
			s.errors = h
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServiceName sets the analysis service requested for data points.
func WithServiceName(name string) Option {
	return func(s *Server) {
		s.serviceName = name
	}
}

// entry is a live data point and its invalidation subscription.
type entry struct {
	dp          *provider.DataPoint
	unsubscribe func()
}

// Server serves code lens data points over one editor connection.
//
// Thread Safety:
//
//	Safe for concurrent use. Requests are served concurrently.
type Server struct {
	conn        *rpc.Channel
	mux         *rpc.Mux
	provider    *provider.Provider
	errors      errsink.Handler
	logger      *slog.Logger
	serviceName string

	mu     sync.Mutex
	points map[string]*entry
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// NewServer creates a server over the editor stream rwc. The server owns
// rwc; Start begins serving.
//
// Inputs:
//
//	rwc - The editor connection
//	broker - Resolves the analysis service for each data point
//	opts - Optional settings
//
// Outputs:
//
//	*Server - The server, not yet started
func NewServer(rwc io.ReadWriteCloser, broker hub.Broker, opts ...Option) *Server {
	s := &Server{
		errors: errsink.Discard,
		logger: slog.Default(),
		points: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.conn = rpc.NewChannel(rwc, "editor")
	s.provider = provider.New(s.conn.Shared(), broker, provider.WithServiceName(s.serviceName))

	// Handlers call back to the editor over the same connection.
	s.mux = rpc.NewMux(rpc.WithAsync())
	s.mux.Handle(MethodCanCreateDataPoint, s.handleCanCreate)
	s.mux.Handle(MethodCreateDataPoint, s.handleCreate)
	s.mux.Handle(MethodGetData, s.handleGetData)
	s.mux.Handle(MethodGetDetails, s.handleGetDetails)
	s.mux.Handle(MethodDispose, s.handleDispose)
	return s
}

// Start begins serving requests. Subsequent calls are no-ops.
func (s *Server) Start(ctx context.Context) {
	s.conn.Start(ctx, s.mux.Handler())
}

// Serve starts the server and blocks until ctx ends or the editor hangs
// up, then closes the server.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	s.Start(ctx)
	s.logger.Info("Serving code lens requests")

	select {
	case <-ctx.Done():
	case <-s.conn.Done():
	}
	if connErr := s.conn.Err(); connErr != nil && !errors.Is(connErr, io.EOF) {
		s.logger.Warn("Editor connection ended", slog.String("error", connErr.Error()))
	}
	return s.Close()
}

// Done is closed when the editor connection ends.
func (s *Server) Done() <-chan struct{} {
	return s.conn.Done()
}

// DataPoints returns the number of live data points.
func (s *Server) DataPoints() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

// Close disposes every data point and closes the editor connection.
// Multiple calls are idempotent.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		points := s.points
		s.points = make(map[string]*entry)
		s.mu.Unlock()

		for handle, e := range points {
			s.release(handle, e)
		}
		s.closeErr = s.conn.Close()
		s.logger.Info("Code lens server closed", slog.Int("disposed", len(points)))
	})
	return s.closeErr
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) handleCanCreate(ctx context.Context, raw json.RawMessage) (any, error) {
	var p DescriptorParams
	if err := rpc.Decode(raw, &p); err != nil {
		return nil, err
	}
	ok, err := s.provider.CanCreateDataPoint(ctx, p.Descriptor)
	if err != nil {
		return s.degrade(ctx, MethodCanCreateDataPoint, err, false)
	}
	return ok, nil
}

func (s *Server) handleCreate(ctx context.Context, raw json.RawMessage) (any, error) {
	var p DescriptorParams
	if err := rpc.Decode(raw, &p); err != nil {
		return nil, err
	}

	dp, err := s.provider.CreateDataPoint(ctx, p.Descriptor)
	if err != nil {
		return s.degrade(ctx, MethodCreateDataPoint, err, nil)
	}

	handle := uuid.NewString()
	e := &entry{dp: dp}
	e.unsubscribe = dp.OnInvalidated(func() { s.notifyInvalidated(handle) })

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.release(handle, e)
		return nil, ErrServerClosed
	}
	s.points[handle] = e
	s.mu.Unlock()

	s.logger.Debug("Created data point",
		slog.String("handle", handle),
		slog.String("file_path", p.Descriptor.FilePath),
		slog.String("kind", p.Descriptor.Kind.String()),
		slog.String("state", dp.State().String()),
	)
	return HandleParams{Handle: handle}, nil
}

func (s *Server) handleGetData(ctx context.Context, raw json.RawMessage) (any, error) {
	dp, err := s.lookup(raw)
	if err != nil {
		return nil, err
	}
	data, err := dp.GetData(ctx)
	if err != nil {
		return s.degrade(ctx, MethodGetData, err, nil)
	}
	return data, nil
}

func (s *Server) handleGetDetails(ctx context.Context, raw json.RawMessage) (any, error) {
	dp, err := s.lookup(raw)
	if err != nil {
		return nil, err
	}
	details, err := dp.GetDetails(ctx)
	if err != nil {
		return s.degrade(ctx, MethodGetDetails, err, nil)
	}
	return details, nil
}

func (s *Server) handleDispose(_ context.Context, raw json.RawMessage) (any, error) {
	var p HandleParams
	if err := rpc.Decode(raw, &p); err != nil {
		return nil, err
	}

	s.mu.Lock()
	e, ok := s.points[p.Handle]
	delete(s.points, p.Handle)
	s.mu.Unlock()

	// Disposing an unknown handle is a no-op, matching Dispose itself.
	if ok {
		s.release(p.Handle, e)
	}
	return nil, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// lookup decodes HandleParams and returns the named data point.
func (s *Server) lookup(raw json.RawMessage) (*provider.DataPoint, error) {
	var p HandleParams
	if err := rpc.Decode(raw, &p); err != nil {
		return nil, err
	}
	s.mu.Lock()
	e, ok := s.points[p.Handle]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", rpc.ErrInvalidParams, ErrUnknownHandle, p.Handle)
	}
	return e.dp, nil
}

// degrade reports err and answers with fallback. A cancelled request is
// not a failure and is returned as the context error.
func (s *Server) degrade(ctx context.Context, method string, err error, fallback any) (any, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	s.errors.HandleError(method, err)
	s.logger.Debug("Code lens request degraded",
		slog.String("method", method),
		slog.String("error", err.Error()),
	)
	return fallback, nil
}

// release unsubscribes and disposes a data point.
func (s *Server) release(handle string, e *entry) {
	e.unsubscribe()
	if err := e.dp.Dispose(); err != nil {
		s.errors.HandleError(MethodDispose, fmt.Errorf("dispose %s: %w", handle, err))
	}
}

// notifyInvalidated tells the editor that handle's data is stale.
func (s *Server) notifyInvalidated(handle string) {
	s.mu.Lock()
	_, live := s.points[handle]
	s.mu.Unlock()
	if !live {
		return
	}
	if err := s.conn.Notify(context.Background(), MethodInvalidated, HandleParams{Handle: handle}); err != nil {
		s.errors.HandleError(MethodInvalidated, err)
	}
}
