package document

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ziadkadry99/docqa/internal/apperr"
)

func TestConstructorsProduceValidUnits(t *testing.T) {
	text := NewTextSection("t1", "policy.pdf", "# Introduction\n\nHello", "Introduction", IntPtr(1))
	assert.NoError(t, text.Validate())
	assert.Equal(t, ContentTextSection, text.ContentType)
	assert.Nil(t, text.TableChunkIndex)

	table := NewTableChunk("t1", "policy.pdf", "| 0 |\n|---|\n| a |", 2, 1, 0, ExtractorLayout)
	assert.NoError(t, table.Validate())
	assert.Equal(t, 2, *table.Page)
	assert.Equal(t, 0, *table.TableChunkIndex)
	assert.Equal(t, ExtractorLayout, table.Extractor)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		unit ContentUnit
	}{
		{"empty text", NewTextSection("t1", "a.pdf", "   ", "", nil)},
		{"no source", NewTextSection("t1", "", "x", "", nil)},
		{"no tenant", NewTextSection("", "a.pdf", "x", "", nil)},
		{"unknown type", ContentUnit{Text: "x", SourceFilename: "a.pdf", TenantID: "t1", ContentType: "image"}},
		{"table without index", ContentUnit{Text: "x", SourceFilename: "a.pdf", TenantID: "t1", ContentType: ContentTableChunk}},
		{"text with table index", ContentUnit{Text: "x", SourceFilename: "a.pdf", TenantID: "t1", ContentType: ContentTextSection, TableChunkIndex: IntPtr(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.unit.Validate()
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestIntPtrCopies(t *testing.T) {
	v := 3
	p := IntPtr(v)
	v = 4
	assert.Equal(t, 3, *p)
}
