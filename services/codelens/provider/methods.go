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

// Methods served by the host callback channel.
const (
	// MethodGetHostGroupID returns the host group id as a string.
	MethodGetHostGroupID = "codeLens/getHostGroupId"

	// MethodGetReferenceCount takes a Descriptor and returns a
	// ReferenceCount, or null when the document cannot be resolved.
	MethodGetReferenceCount = "codeLens/getReferenceCount"

	// MethodFindReferenceLocations takes a Descriptor and returns
	// []ReferenceLocation.
	MethodFindReferenceLocations = "codeLens/findReferenceLocations"

	// MethodGetDocumentID takes DocumentIDParams and returns the project
	// and document GUIDs, or null when the file is not in the workspace.
	MethodGetDocumentID = "codeLens/getDocumentId"
)

// Methods on the analysis channel.
const (
	// MethodTrackChanges takes TrackChangesParams and registers the
	// connection for invalidation of that document.
	MethodTrackChanges = "codeLens/trackChanges"

	// MethodInvalidate is sent by the analysis service when tracked data
	// is stale. It carries no params.
	MethodInvalidate = "codeLens/invalidate"
)

// DefaultServiceName is the analysis service requested from the broker.
const DefaultServiceName = "analysis"
