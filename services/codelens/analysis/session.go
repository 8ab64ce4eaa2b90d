// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis is the reference analysis service for code lens data
// points.
//
// Each data point opens its own connection and calls codeLens/trackChanges
// once. The session watches the tracked document on disk and sends
// codeLens/invalidate back over the same connection whenever it changes,
// which makes the data point's listeners refetch their counts.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/refslens/services/codelens/provider"
	"github.com/AleutianAI/refslens/services/codelens/rpc"
)

// notifyTimeout bounds the write of one invalidate notification.
const notifyTimeout = 5 * time.Second

// Option configures a Session.
type Option func(*sessionOptions)

type sessionOptions struct {
	logger   *slog.Logger
	debounce time.Duration
}

// WithLogger sets the session logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *sessionOptions) {
		o.logger = logger
	}
}

// WithDebounce sets how long changes are batched before an invalidation
// is sent. Default: DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(o *sessionOptions) {
		o.debounce = d
	}
}

// Session serves one data point connection.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Session struct {
	conn    *rpc.Channel
	watcher *DocumentWatcher
	logger  *slog.Logger

	mu        sync.Mutex
	documents map[string]provider.DocumentID

	invalidations atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// NewSession creates a session over rwc. The session owns rwc.
func NewSession(rwc io.ReadWriteCloser, opts ...Option) (*Session, error) {
	o := sessionOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	s := &Session{
		logger:    o.logger,
		documents: make(map[string]provider.DocumentID),
	}
	watcher, err := NewDocumentWatcher(s.onChange, o.debounce, o.logger)
	if err != nil {
		_ = rwc.Close()
		return nil, err
	}
	s.watcher = watcher
	s.conn = rpc.NewChannel(rwc, "data-point")
	return s, nil
}

// Serve handles requests until ctx ends or the data point disconnects,
// then closes the session.
func (s *Session) Serve(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	mux := rpc.NewMux()
	mux.Handle(provider.MethodTrackChanges, s.handleTrackChanges)

	s.watcher.Start(ctx)
	s.conn.Start(ctx, mux.Handler())
	s.logger.Debug("Analysis session started")

	select {
	case <-ctx.Done():
	case <-s.conn.Done():
	}
	return s.Close()
}

// Close stops watching and closes the connection. Multiple calls are
// idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
		s.watcher.Stop()
		s.logger.Debug("Analysis session closed",
			slog.Int("documents", s.watcher.Tracked()),
			slog.Int64("invalidations", s.invalidations.Load()),
		)
	})
	return s.closeErr
}

// Documents returns the tracked documents.
func (s *Session) Documents() []provider.DocumentID {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make([]provider.DocumentID, 0, len(s.documents))
	for _, doc := range s.documents {
		docs = append(docs, doc)
	}
	return docs
}

// Invalidations returns the number of invalidations sent.
func (s *Session) Invalidations() int64 {
	return s.invalidations.Load()
}

func (s *Session) handleTrackChanges(_ context.Context, raw json.RawMessage) (any, error) {
	var p provider.TrackChangesParams
	if err := rpc.Decode(raw, &p); err != nil {
		return nil, err
	}
	doc := p.DocumentID
	if doc.FilePath == "" {
		return nil, fmt.Errorf("%w: document has no file path", rpc.ErrInvalidParams)
	}
	if err := s.watcher.Track(doc.FilePath); err != nil {
		return nil, fmt.Errorf("%w: %v", rpc.ErrInvalidParams, err)
	}

	s.mu.Lock()
	s.documents[doc.FilePath] = doc
	s.mu.Unlock()

	s.logger.Info("Tracking document",
		slog.String("file_path", doc.FilePath),
		slog.String("document_id", doc.ID.String()),
		slog.String("project_id", doc.ProjectID.String()),
	)
	return nil, nil
}

// onChange sends one invalidation for a batch of changed documents.
func (s *Session) onChange(paths []string) {
	if s.conn.Closed() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := s.conn.Notify(ctx, provider.MethodInvalidate, nil); err != nil {
		s.logger.Warn("Failed to send invalidation",
			slog.Any("paths", paths),
			slog.String("error", err.Error()),
		)
		return
	}
	s.invalidations.Add(1)
	s.logger.Debug("Sent invalidation", slog.Any("paths", paths))
}

// Serve runs a session over rwc until ctx ends or the peer disconnects.
func Serve(ctx context.Context, rwc io.ReadWriteCloser, opts ...Option) error {
	s, err := NewSession(rwc, opts...)
	if err != nil {
		return err
	}
	return s.Serve(ctx)
}
