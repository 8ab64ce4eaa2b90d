// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package errsink collects errors reported by extension components.
//
// A Handler receives every error a host boundary decides to swallow (a
// data point that failed to load, a request that could not be served).
// Sink keeps them in memory until they are drained, which lets tests
// assert that nothing failed silently and lets the debug endpoint show
// recent failures. LogHandler writes them to the structured log, and
// Multi fans one report out to several handlers.
package errsink

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler receives errors reported by a component.
type Handler interface {
	// HandleError records err raised by source. It must not block on I/O
	// and has no failure mode.
	HandleError(source any, err error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(source any, err error)

// HandleError calls f.
func (f HandlerFunc) HandleError(source any, err error) {
	f(source, err)
}

// Entry is one recorded error.
type Entry struct {
	// ID uniquely identifies the entry.
	ID string `json:"id"`

	// Source names the component that reported the error.
	Source string `json:"source"`

	// Err is the reported error.
	Err error `json:"-"`

	// Message is Err.Error(), kept for serialization. Empty when Err is nil.
	Message string `json:"message"`

	// Time is when the error was recorded.
	Time time.Time `json:"time"`
}

// Sink is an in-memory error log that empties itself on read.
//
// Thread Safety:
//
//	Safe for concurrent use. Drain swaps the whole log under the lock, so
//	every entry is returned by exactly one Drain.
type Sink struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// New creates an empty sink.
func New() *Sink {
	return &Sink{now: time.Now}
}

// HandleError appends err to the log. Every report is kept, including a nil
// err, which is stored with an empty Message.
func (s *Sink) HandleError(source any, err error) {
	entry := Entry{
		ID:     uuid.NewString(),
		Source: sourceName(source),
		Err:    err,
		Time:   s.now(),
	}
	if err != nil {
		entry.Message = err.Error()
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
}

// DrainEntries returns every recorded entry in append order and leaves the
// log empty.
func (s *Sink) DrainEntries() []Entry {
	s.mu.Lock()
	drained := s.entries
	s.entries = nil
	s.mu.Unlock()
	return drained
}

// Drain returns every recorded error in append order and leaves the log
// empty.
func (s *Sink) Drain() []error {
	entries := s.DrainEntries()
	errs := make([]error, len(entries))
	for i, entry := range entries {
		errs[i] = entry.Err
	}
	return errs
}

// Len returns the number of entries waiting to be drained.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ Handler = (*Sink)(nil)

// sourceName renders a reporting source for storage.
func sourceName(source any) string {
	switch v := source.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%T", source)
	}
}
