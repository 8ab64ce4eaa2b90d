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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindLabel(t *testing.T) {
	tests := []struct {
		kind    CodeElementKind
		want    string
		wantErr bool
	}{
		{KindMethod, "method", false},
		{KindType, "type", false},
		{KindProperty, "property", false},
		{KindUnspecified, "", true},
		{KindFile, "", true},
		{CodeElementKind(-1), "", true},
		{CodeElementKind(99), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			got, err := KindLabel(tt.kind)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedKind)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "0", FormatCount(ReferenceCount{}))
	assert.Equal(t, "1", FormatCount(ReferenceCount{Count: 1}))
	assert.Equal(t, "5", FormatCount(ReferenceCount{Count: 5}))
	assert.Equal(t, "5+", FormatCount(ReferenceCount{Count: 5, IsCapped: true}))
	assert.Equal(t, "1000+", FormatCount(ReferenceCount{Count: 1000, IsCapped: true}))
}

func TestSummarize_UnsupportedKindReturnsNoDescriptor(t *testing.T) {
	got, err := summarize(ReferenceCount{Count: 2}, KindFile)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
	assert.Nil(t, got)
}

func TestDetails_ColumnCount(t *testing.T) {
	assert.Equal(t, 12, DetailColumnCount)

	table := details("/a.go", []ReferenceLocation{{}, {}})
	require.Len(t, table.Headers, DetailColumnCount)
	for _, entry := range table.Entries {
		assert.Len(t, entry.Fields, len(table.Headers))
	}
}

func TestDetails_HeadersAreIndependentCopies(t *testing.T) {
	first := detailHeaders()
	first[0].UniqueName = "mutated"
	assert.Equal(t, FieldFilePath, detailHeaders()[0].UniqueName)
}

func TestGlyphImage(t *testing.T) {
	assert.True(t, glyphImage(nil).IsZero())

	g := Glyph(0)
	img := glyphImage(&g)
	assert.False(t, img.IsZero(), "a present glyph keeps the catalog guid")
	assert.Equal(t, ImageCatalogGUID, img.GUID)
}

func TestCodeElementKind_String(t *testing.T) {
	assert.Equal(t, "method", KindMethod.String())
	assert.Equal(t, "kind(42)", CodeElementKind(42).String())
	assert.Equal(t, "kind(-1)", CodeElementKind(-1).String())
}
