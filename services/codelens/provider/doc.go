// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package provider implements the reference-count code lens data point.
//
// A Provider answers whether a source location can carry a data point and
// creates one DataPoint per location. Each DataPoint proxies its queries to
// two peers:
//
//   - the host callback channel, shared by every data point and owned by
//     the host connection, which answers reference counts, reference
//     locations, the host group id and document id resolution;
//   - an analysis channel owned by the data point, opened through a
//     hub.Broker, on which the data point registers for change tracking and
//     receives invalidation notifications.
//
// # Ownership
//
// A DataPoint holds the callback channel as an rpc.Caller, which has no
// Close method, and the analysis channel as an *rpc.Channel. Dispose closes
// only the latter.
//
// # Failure Policy
//
// Errors from connecting, counting and locating references are returned to
// the caller wrapped with %w. This package neither logs nor retries; the
// host decides to hide a failing data point. The only suppressed condition
// is a document id the host cannot resolve, which skips change tracking.
//
// # Thread Safety
//
// Provider and DataPoint are safe for concurrent use. GetData and
// GetDetails may run concurrently with each other and with invalidation.
package provider
