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
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
)

// ListenAndServe accepts data point connections on network/address and
// serves each with its own Session until ctx ends. A stale unix socket
// file at address is removed first.
func ListenAndServe(ctx context.Context, network, address string, logger *slog.Logger, opts ...Option) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if network == "unix" {
		if info, err := os.Lstat(address); err == nil && info.Mode()&os.ModeSocket != 0 {
			_ = os.Remove(address)
		}
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, network, address)
	if err != nil {
		return fmt.Errorf("listen %s %s: %w", network, address, err)
	}
	logger.Info("Analysis service listening",
		slog.String("network", network),
		slog.String("address", address),
	)
	return ServeListener(ctx, ln, logger, append([]Option{WithLogger(logger)}, opts...)...)
}

// ServeListener serves every connection accepted from ln until ctx ends.
// It closes ln and waits for open sessions before returning.
func ServeListener(ctx context.Context, ln net.Listener, logger *slog.Logger, opts ...Option) error {
	if logger == nil {
		logger = slog.Default()
	}

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := Serve(ctx, conn, opts...); err != nil {
				logger.Warn("Analysis session ended with error", slog.String("error", err.Error()))
			}
		}()
	}
}
