package vectordb

import (
	"strconv"

	"github.com/ziadkadry99/docqa/internal/document"
)

// Metadata keys stored alongside each chunk.
const (
	metaSource       = "source"
	metaTenant       = "tenant_id"
	metaContentType  = "content_type"
	metaPage         = "page"
	metaSectionTitle = "section_title"
	metaTableChunk   = "table_chunk_index"
	metaTableOrder   = "table_order"
	metaExtractor    = "extractor"
	metaSeq          = "seq"
)

// SearchResult pairs a unit with its similarity score.
type SearchResult struct {
	Unit       document.ContentUnit
	Similarity float32

	seq int64
}

// SourceDeletion is the outcome of deleting one filename's units.
type SourceDeletion struct {
	Filename string
	Removed  int
	Err      error
}

// DeleteResult collects per-filename outcomes of DeleteBySource.
type DeleteResult struct {
	Sources []SourceDeletion
	// Succeeded is true only when every filename was deleted without error.
	Succeeded bool
}

// For returns the outcome recorded for filename.
func (r *DeleteResult) For(filename string) (SourceDeletion, bool) {
	for _, s := range r.Sources {
		if s.Filename == filename {
			return s, true
		}
	}
	return SourceDeletion{}, false
}

// Removed is the total number of units deleted.
func (r *DeleteResult) Removed() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Removed
	}
	return n
}

// unitToMetadata flattens a unit for chromem, which only stores strings.
func unitToMetadata(u document.ContentUnit, seq int64) map[string]string {
	md := map[string]string{
		metaSource:      u.SourceFilename,
		metaTenant:      u.TenantID,
		metaContentType: string(u.ContentType),
		metaSeq:         strconv.FormatInt(seq, 10),
	}
	putInt(md, metaPage, u.Page)
	putInt(md, metaTableChunk, u.TableChunkIndex)
	putInt(md, metaTableOrder, u.TableOrderOnPage)
	if u.SectionTitle != "" {
		md[metaSectionTitle] = u.SectionTitle
	}
	if u.Extractor != "" {
		md[metaExtractor] = string(u.Extractor)
	}
	return md
}

func metadataToUnit(content string, md map[string]string) (document.ContentUnit, int64) {
	seq, _ := strconv.ParseInt(md[metaSeq], 10, 64)
	return document.ContentUnit{
		Text:             content,
		SourceFilename:   md[metaSource],
		TenantID:         md[metaTenant],
		ContentType:      document.ContentType(md[metaContentType]),
		Page:             getInt(md, metaPage),
		SectionTitle:     md[metaSectionTitle],
		TableChunkIndex:  getInt(md, metaTableChunk),
		TableOrderOnPage: getInt(md, metaTableOrder),
		Extractor:        document.Extractor(md[metaExtractor]),
	}, seq
}

func putInt(md map[string]string, key string, v *int) {
	if v != nil {
		md[key] = strconv.Itoa(*v)
	}
}

func getInt(md map[string]string, key string) *int {
	s, ok := md[key]
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}
