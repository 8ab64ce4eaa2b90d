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
	"errors"
)

// Sentinel errors for data point operations.
var (
	// ErrUnsupportedKind indicates a descriptor kind that has no display
	// label. It signals a caller bug and is never replaced by a default.
	ErrUnsupportedKind = errors.New("unsupported code element kind")

	// ErrConnect indicates the analysis service could not be reached.
	ErrConnect = errors.New("analysis service connection failed")

	// ErrDisposed indicates an operation on a disposed data point.
	ErrDisposed = errors.New("data point disposed")

	// ErrInvalidResponse indicates a host response with an unexpected shape.
	ErrInvalidResponse = errors.New("invalid host response")
)
