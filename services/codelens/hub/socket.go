// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hub

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// HostGroupPlaceholder in a SocketBroker address is replaced by the host group.
const HostGroupPlaceholder = "{hostGroup}"

// SocketBroker dials a listening service for each request.
type SocketBroker struct {
	// Network is "unix" or "tcp".
	Network string

	// Address may contain {hostGroup}, e.g. "/run/refslens/{hostGroup}.sock".
	Address string

	// DialTimeout bounds the dial. Zero means no timeout beyond ctx.
	DialTimeout time.Duration
}

// RequestService dials the service address for desc.
func (b *SocketBroker) RequestService(ctx context.Context, desc ServiceDescriptor) (io.ReadWriteCloser, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}

	addr := b.ResolveAddress(desc)
	dialer := net.Dialer{Timeout: b.DialTimeout}
	conn, err := dialer.DialContext(ctx, b.Network, addr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: dial %s %s: %v", ErrServiceUnavailable, desc.Name, b.Network, addr, err)
	}
	return conn, nil
}

// ResolveAddress returns the address dialed for desc.
func (b *SocketBroker) ResolveAddress(desc ServiceDescriptor) string {
	return strings.ReplaceAll(b.Address, HostGroupPlaceholder, desc.HostGroup)
}
