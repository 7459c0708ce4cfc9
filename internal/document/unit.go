// Package document defines ContentUnit, the retrievable chunk produced by
// decomposition and stored in a tenant's index.
package document

import (
	"strings"

	"github.com/ziadkadry99/docqa/internal/apperr"
)

// ContentType distinguishes prose sections from rendered table windows.
type ContentType string

const (
	ContentTextSection ContentType = "text_section"
	ContentTableChunk  ContentType = "table_chunk"
)

// Extractor names the table stage that produced a table chunk.
type Extractor string

const (
	ExtractorLayout Extractor = "layout"
	ExtractorOCR    Extractor = "ocr"
)

// ContentUnit is one chunk of a source document. Units are immutable once
// built and are deleted only by (TenantID, SourceFilename).
type ContentUnit struct {
	Text           string
	SourceFilename string
	TenantID       string
	ContentType    ContentType

	// Page is 1-based; nil for formats without pages.
	Page *int
	// SectionTitle is empty for untitled text and for tables.
	SectionTitle string

	// Table-only fields.
	TableChunkIndex  *int
	TableOrderOnPage *int
	Extractor        Extractor
}

// NewTextSection builds a text_section unit.
func NewTextSection(tenantID, source, text, title string, page *int) ContentUnit {
	return ContentUnit{
		Text:           text,
		SourceFilename: source,
		TenantID:       tenantID,
		ContentType:    ContentTextSection,
		Page:           page,
		SectionTitle:   title,
	}
}

// NewTableChunk builds a table_chunk unit.
func NewTableChunk(tenantID, source, text string, page, orderOnPage, chunkIndex int, ex Extractor) ContentUnit {
	return ContentUnit{
		Text:             text,
		SourceFilename:   source,
		TenantID:         tenantID,
		ContentType:      ContentTableChunk,
		Page:             IntPtr(page),
		TableOrderOnPage: IntPtr(orderOnPage),
		TableChunkIndex:  IntPtr(chunkIndex),
		Extractor:        ex,
	}
}

// Validate reports whether u can be stored.
func (u ContentUnit) Validate() error {
	if strings.TrimSpace(u.Text) == "" {
		return apperr.Validation("content unit from %q has empty text", u.SourceFilename)
	}
	if u.SourceFilename == "" {
		return apperr.Validation("content unit has no source filename")
	}
	if u.TenantID == "" {
		return apperr.Validation("content unit from %q has no tenant", u.SourceFilename)
	}
	switch u.ContentType {
	case ContentTextSection:
		if u.TableChunkIndex != nil {
			return apperr.Validation("text section from %q carries a table chunk index", u.SourceFilename)
		}
	case ContentTableChunk:
		if u.TableChunkIndex == nil {
			return apperr.Validation("table chunk from %q has no chunk index", u.SourceFilename)
		}
	default:
		return apperr.Validation("unknown content type %q", u.ContentType)
	}
	return nil
}

// IntPtr returns a pointer to a copy of v.
func IntPtr(v int) *int { return &v }
