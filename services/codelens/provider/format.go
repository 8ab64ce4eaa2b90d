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
	"strconv"

	"github.com/google/uuid"
)

// Column names of the details table, in display order.
const (
	FieldFilePath                 = "filePath"
	FieldLineNumber               = "lineNumber"
	FieldColumnNumber             = "columnNumber"
	FieldReferenceText            = "referenceText"
	FieldReferenceStart           = "referenceStart"
	FieldReferenceEnd             = "referenceEnd"
	FieldReferenceLongDescription = "referenceLongDescription"
	FieldReferenceImageID         = "referenceImageId"
	FieldTextBeforeReference2     = "textBeforeReference2"
	FieldTextBeforeReference1     = "textBeforeReference1"
	FieldTextAfterReference1      = "textAfterReference1"
	FieldTextAfterReference2      = "textAfterReference2"
)

// detailColumns is the positional contract with the rendering host.
// referenceEntry must emit fields in exactly this order.
var detailColumns = [...]string{
	FieldFilePath,
	FieldLineNumber,
	FieldColumnNumber,
	FieldReferenceText,
	FieldReferenceStart,
	FieldReferenceEnd,
	FieldReferenceLongDescription,
	FieldReferenceImageID,
	FieldTextBeforeReference2,
	FieldTextBeforeReference1,
	FieldTextAfterReference1,
	FieldTextAfterReference2,
}

// DetailColumnCount is the number of columns in every details row.
const DetailColumnCount = len(detailColumns)

// ImageCatalogGUID is the catalog that Glyph values index into.
var ImageCatalogGUID = uuid.MustParse("ae27a6b0-e345-4288-96df-5eaf394ee369")

// KindLabel returns the display label of kind.
//
// Outputs:
//
//	string - "method", "type" or "property"
//	error - ErrUnsupportedKind for any other kind
func KindLabel(kind CodeElementKind) (string, error) {
	switch kind {
	case KindMethod:
		return "method", nil
	case KindType:
		return "type", nil
	case KindProperty:
		return "property", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
}

// FormatCount renders a count, with a "+" suffix when capped.
func FormatCount(rc ReferenceCount) string {
	s := strconv.Itoa(rc.Count)
	if rc.IsCapped {
		s += "+"
	}
	return s
}

// summarize builds the data point summary for a count.
func summarize(rc ReferenceCount, kind CodeElementKind) (*DataPointDescriptor, error) {
	label, err := KindLabel(kind)
	if err != nil {
		return nil, err
	}

	count := FormatCount(rc)
	description := count + " references"
	if rc.Count == 1 {
		description = count + " reference"
	}

	intValue := rc.Count
	return &DataPointDescriptor{
		Description: description,
		IntValue:    &intValue,
		TooltipText: fmt.Sprintf("This %s has %s reference(s)", label, count),
	}, nil
}

// detailHeaders returns a fresh copy of the column headers.
func detailHeaders() []DetailHeader {
	headers := make([]DetailHeader, len(detailColumns))
	for i, name := range detailColumns {
		headers[i] = DetailHeader{UniqueName: name}
	}
	return headers
}

// referenceEntry maps one location to a details row. The file path comes
// from the data point descriptor, not the location.
func referenceEntry(filePath string, loc ReferenceLocation) DetailEntry {
	image := glyphImage(loc.Glyph)
	return DetailEntry{
		Fields: []DetailField{
			{Text: filePath},
			{Text: strconv.Itoa(loc.LineNumber)},
			{Text: strconv.Itoa(loc.ColumnNumber)},
			{Text: loc.ReferenceLineText},
			{Text: strconv.Itoa(loc.ReferenceStart)},
			{Text: strconv.Itoa(loc.ReferenceStart + loc.ReferenceLength)},
			{Text: loc.LongDescription},
			{ImageID: &image},
			{Text: loc.BeforeReferenceText2},
			{Text: loc.BeforeReferenceText1},
			{Text: loc.AfterReferenceText1},
			{Text: loc.AfterReferenceText2},
		},
	}
}

// details builds the details table for locations.
func details(filePath string, locations []ReferenceLocation) *DetailsDescriptor {
	entries := make([]DetailEntry, len(locations))
	for i, loc := range locations {
		entries[i] = referenceEntry(filePath, loc)
	}
	return &DetailsDescriptor{
		Headers: detailHeaders(),
		Entries: entries,
	}
}

// glyphImage returns the catalog image of g, or the zero ImageID.
func glyphImage(g *Glyph) ImageID {
	if g == nil {
		return ImageID{}
	}
	return ImageID{GUID: ImageCatalogGUID, ID: int32(*g)}
}
