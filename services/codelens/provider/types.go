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
	"fmt"

	"github.com/google/uuid"
	"go.lsp.dev/protocol"
)

// =============================================================================
// CODE ELEMENT KIND
// =============================================================================

// CodeElementKind is the kind of code element a data point is attached to.
type CodeElementKind int

const (
	// KindUnspecified is the zero value.
	KindUnspecified CodeElementKind = iota

	// KindFile is a whole file.
	KindFile

	// KindType is a class, struct, interface or similar declaration.
	KindType

	// KindMethod is a method or function.
	KindMethod

	// KindProperty is a property.
	KindProperty
)

// String returns the kind name used in logs.
func (k CodeElementKind) String() string {
	names := []string{"unspecified", "file", "type", "method", "property"}
	if k >= 0 && int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// =============================================================================
// DESCRIPTOR
// =============================================================================

// Descriptor identifies the source location a data point is attached to.
//
// It is supplied by the host and sent back to it unchanged as the
// correlation key of count and location queries. Locally only the span
// presence and the kind are inspected.
type Descriptor struct {
	// ProjectGUID identifies the project containing the file.
	ProjectGUID uuid.UUID `json:"projectGuid"`

	// FilePath is the path of the file containing the element.
	FilePath string `json:"filePath"`

	// ApplicableSpan is the element's span, nil when the host has none.
	ApplicableSpan *protocol.Range `json:"applicableToSpan,omitempty"`

	// Kind is the element kind.
	Kind CodeElementKind `json:"kind"`

	// ElementDescription is the host's display name for the element.
	ElementDescription string `json:"elementDescription,omitempty"`
}

// =============================================================================
// HOST AND SERVICE PAYLOADS
// =============================================================================

// ReferenceCount is the host's count of references to an element.
type ReferenceCount struct {
	// Count is the number of references found.
	Count int `json:"count"`

	// IsCapped is true when the search stopped at a limit, so Count is a
	// lower bound.
	IsCapped bool `json:"isCapped"`
}

// Glyph is an icon id from the host image catalog.
type Glyph int32

// ReferenceLocation describes one reference occurrence.
type ReferenceLocation struct {
	// FilePath is the file containing the reference.
	FilePath string `json:"filePath"`

	// LineNumber is the zero-based line of the reference.
	LineNumber int `json:"lineNumber"`

	// ColumnNumber is the zero-based column of the reference.
	ColumnNumber int `json:"columnNumber"`

	// ReferenceLineText is the full text of the referencing line.
	ReferenceLineText string `json:"referenceLineText"`

	// ReferenceStart is the offset of the reference within the line text.
	ReferenceStart int `json:"referenceStart"`

	// ReferenceLength is the length of the reference text.
	ReferenceLength int `json:"referenceLength"`

	// LongDescription describes the referencing symbol.
	LongDescription string `json:"longDescription"`

	// Glyph is the icon of the referencing symbol, nil when unknown.
	Glyph *Glyph `json:"glyph,omitempty"`

	BeforeReferenceText1 string `json:"beforeReferenceText1"`
	BeforeReferenceText2 string `json:"beforeReferenceText2"`
	AfterReferenceText1  string `json:"afterReferenceText1"`
	AfterReferenceText2  string `json:"afterReferenceText2"`
}

// DocumentIDParams are the params of MethodGetDocumentID.
type DocumentIDParams struct {
	ProjectGUID uuid.UUID `json:"projectGuid"`
	FilePath    string    `json:"filePath"`
}

// DocumentID is a durable document identity usable across processes.
type DocumentID struct {
	// ProjectID is the project GUID as known to the analysis workspace.
	ProjectID uuid.UUID `json:"projectId"`

	// ProjectDebugName is the host's project GUID, kept for diagnostics.
	ProjectDebugName string `json:"projectDebugName,omitempty"`

	// ID is the document GUID.
	ID uuid.UUID `json:"id"`

	// FilePath is the document path.
	FilePath string `json:"filePath"`
}

// TrackChangesParams are the params of MethodTrackChanges.
type TrackChangesParams struct {
	DocumentID DocumentID `json:"documentId"`
}

// =============================================================================
// PRESENTATION DESCRIPTORS
// =============================================================================

// ImageID identifies an image in the host image catalog. The zero value
// means no image.
type ImageID struct {
	GUID uuid.UUID `json:"guid"`
	ID   int32     `json:"id"`
}

// IsZero reports whether the image id is empty.
func (i ImageID) IsZero() bool {
	return i.GUID == uuid.Nil && i.ID == 0
}

// DataPointDescriptor is the summary shown above a code element.
type DataPointDescriptor struct {
	Description string   `json:"description"`
	IntValue    *int     `json:"intValue,omitempty"`
	TooltipText string   `json:"tooltipText"`
	ImageID     *ImageID `json:"imageId,omitempty"`
}

// DetailHeader names one column of the details table.
type DetailHeader struct {
	UniqueName string `json:"uniqueName"`
}

// DetailField is one cell of the details table. Exactly one of Text and
// ImageID is meaningful, depending on the column.
type DetailField struct {
	Text    string   `json:"text,omitempty"`
	ImageID *ImageID `json:"imageId,omitempty"`
}

// DetailEntry is one row of the details table.
type DetailEntry struct {
	Fields []DetailField `json:"fields"`
}

// DetailsDescriptor is the details table shown when a data point is
// expanded. Entry fields are positional and follow Headers.
type DetailsDescriptor struct {
	Headers []DetailHeader `json:"headers"`
	Entries []DetailEntry  `json:"entries"`
}
