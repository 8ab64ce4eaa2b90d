// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package host serves code lens data points to an editor over JSON-RPC.
//
// The editor connection is used in both directions: the editor calls the
// codeLens/* methods below, and data points call back over the same
// connection for host group ids, reference counts, reference locations and
// document ids. The server plays the role of a code lens engine: failures
// are reported to an errsink.Handler and answered with null so the editor
// simply shows no data point.
package host

import (
	"github.com/AleutianAI/refslens/services/codelens/provider"
)

// Methods served to the editor.
const (
	// MethodCanCreateDataPoint takes DescriptorParams and returns a bool.
	MethodCanCreateDataPoint = "codeLens/canCreateDataPoint"

	// MethodCreateDataPoint takes DescriptorParams and returns
	// HandleParams, or null when the data point could not be created.
	MethodCreateDataPoint = "codeLens/createDataPoint"

	// MethodGetData takes HandleParams and returns a
	// provider.DataPointDescriptor or null.
	MethodGetData = "codeLens/getData"

	// MethodGetDetails takes HandleParams and returns a
	// provider.DetailsDescriptor or null.
	MethodGetDetails = "codeLens/getDetails"

	// MethodDispose takes HandleParams and releases the data point.
	MethodDispose = "codeLens/dispose"
)

// MethodInvalidated is sent to the editor with HandleParams when a data
// point's cached data is stale.
const MethodInvalidated = "codeLens/invalidated"

// DescriptorParams carry a location descriptor.
type DescriptorParams struct {
	Descriptor provider.Descriptor `json:"descriptor"`
}

// HandleParams name a data point created by MethodCreateDataPoint.
type HandleParams struct {
	Handle string `json:"handle"`
}
