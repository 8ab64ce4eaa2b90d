// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package errsink

import (
	"log/slog"
)

// LogHandler writes reported errors to a structured logger at Warn level.
type LogHandler struct {
	logger *slog.Logger
}

// NewLogHandler creates a handler that logs to logger. A nil logger uses
// slog.Default().
func NewLogHandler(logger *slog.Logger) *LogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHandler{logger: logger}
}

// HandleError logs err. Nil errors are ignored.
func (h *LogHandler) HandleError(source any, err error) {
	if err == nil {
		return
	}
	h.logger.Warn("Extension error",
		slog.String("source", sourceName(source)),
		slog.String("error", err.Error()),
	)
}

// multiHandler fans a report out to several handlers.
type multiHandler struct {
	handlers []Handler
}

// Multi returns a handler that forwards each report to every non-nil handler
// in order.
func Multi(handlers ...Handler) Handler {
	kept := make([]Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			kept = append(kept, h)
		}
	}
	return &multiHandler{handlers: kept}
}

func (m *multiHandler) HandleError(source any, err error) {
	for _, h := range m.handlers {
		h.HandleError(source, err)
	}
}

// Discard drops every report.
var Discard Handler = HandlerFunc(func(any, error) {})
