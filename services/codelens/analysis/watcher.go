// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long DocumentWatcher waits for more changes to a
// tracked document before reporting it.
const DefaultDebounce = 100 * time.Millisecond

// ChangeHandler is called with the tracked paths changed within one
// debounce window, in first-change order.
type ChangeHandler func(paths []string)

// DocumentWatcher reports changes to a set of tracked files.
//
// # Description
//
// Files are watched through their parent directories so that editors that
// save by writing a temporary file and renaming it over the original are
// still seen. Events for untracked files in the same directories are
// ignored. Changes are batched using a debounce window so a burst of
// writes produces one report.
//
// # Thread Safety
//
// Safe for concurrent use. The handler is called from a single goroutine.
type DocumentWatcher struct {
	watcher  *fsnotify.Watcher
	handler  ChangeHandler
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	tracked map[string]bool
	dirs    map[string]bool

	changes  chan string
	done     chan struct{}
	stopOnce sync.Once
}

// NewDocumentWatcher creates a watcher. Start must be called to begin
// delivering changes.
//
// # Inputs
//
//   - handler: Called with batched changed paths.
//   - debounce: Batch window. Zero uses DefaultDebounce.
//   - logger: Receives watcher errors. Nil uses slog.Default().
func NewDocumentWatcher(handler ChangeHandler, debounce time.Duration, logger *slog.Logger) (*DocumentWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &DocumentWatcher{
		watcher:  watcher,
		handler:  handler,
		debounce: debounce,
		logger:   logger,
		tracked:  make(map[string]bool),
		dirs:     make(map[string]bool),
		changes:  make(chan string, 256),
		done:     make(chan struct{}),
	}, nil
}

// Start begins processing file events until ctx ends or Stop is called.
func (w *DocumentWatcher) Start(ctx context.Context) {
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
}

// Track adds path to the tracked set. path must be absolute.
func (w *DocumentWatcher) Track(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute: %s", path)
	}
	path = filepath.Clean(path)
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirs[dir] {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	w.tracked[path] = true
	return nil
}

// Tracked returns the number of tracked files.
func (w *DocumentWatcher) Tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tracked)
}

// Stop stops the watcher. Pending changes are flushed to the handler.
func (w *DocumentWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
}

func (w *DocumentWatcher) isTracked(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tracked[filepath.Clean(path)]
}

// processEvents forwards events for tracked files to the debouncer.
func (w *DocumentWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !w.isTracked(event.Name) {
				continue
			}
			select {
			case w.changes <- filepath.Clean(event.Name):
			default:
				// A full buffer already guarantees a pending report.
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", slog.String("error", err.Error()))
		}
	}
}

// debounceLoop batches changes and calls the handler once the debounce
// window passes without new changes.
func (w *DocumentWatcher) debounceLoop(ctx context.Context) {
	var batch []string
	seen := make(map[string]bool)
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 && w.handler != nil {
			w.handler(batch)
		}
		batch = nil
		clear(seen)
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case path := <-w.changes:
			if !seen[path] {
				seen[path] = true
				batch = append(batch, path)
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}
