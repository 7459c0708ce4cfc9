// Package decompose turns one document into the ContentUnits that are
// embedded and indexed: titled text sections per page, then table chunks.
package decompose

import (
	"context"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/document"
	"github.com/ziadkadry99/docqa/internal/loader"
	"github.com/ziadkadry99/docqa/internal/logging"
	"github.com/ziadkadry99/docqa/internal/sections"
	"github.com/ziadkadry99/docqa/internal/tables"
)

// PageLoader reads a document into pages.
type PageLoader interface {
	Load(ctx context.Context, path string) ([]loader.Page, error)
}

// TableExtractor finds tables in a PDF.
type TableExtractor interface {
	Extract(ctx context.Context, path, displayName string) []tables.Record
}

// Result is the output of one decomposition.
type Result struct {
	Units        []document.ContentUnit
	TextSections int
	TableChunks  int
}

// Total is the number of units produced.
func (r *Result) Total() int { return len(r.Units) }

// Decomposer combines page loading, section splitting and table extraction.
type Decomposer struct {
	pages  PageLoader
	tables TableExtractor
}

// New returns a Decomposer. tables may be nil to disable table extraction.
func New(pages PageLoader, tables TableExtractor) *Decomposer {
	return &Decomposer{pages: pages, tables: tables}
}

// Decompose reads path and returns its units labelled with displayName and
// tenantID. Text units precede table units. A load error is returned
// together with whatever partial result was built; zero units with a nil
// error means the document had no processable content.
func (d *Decomposer) Decompose(ctx context.Context, path, displayName, tenantID string) (*Result, error) {
	log := logging.FromContext(ctx).With(zap.String("file", displayName), zap.String("tenant", tenantID))
	res := &Result{}

	pages, loadErr := d.pages.Load(ctx, path)
	for _, p := range pages {
		var page *int
		if p.Number > 0 {
			page = document.IntPtr(p.Number)
		}

		segs := sections.Split(p.Text)
		if len(segs) == 0 {
			// Only headings with empty bodies: keep the page as one untitled unit.
			if body := strings.TrimSpace(p.Text); body != "" {
				res.Units = append(res.Units, document.NewTextSection(tenantID, displayName, body, "", page))
				res.TextSections++
			}
			continue
		}
		for _, s := range segs {
			text := "# " + s.Title + "\n\n" + s.Body
			res.Units = append(res.Units, document.NewTextSection(tenantID, displayName, text, s.Title, page))
			res.TextSections++
		}
	}
	if loadErr != nil {
		log.Warn("document load failed", zap.Error(loadErr), zap.Int("partial_units", len(res.Units)))
		return res, loadErr
	}

	if d.tables != nil && strings.EqualFold(filepath.Ext(path), ".pdf") {
		for _, rec := range d.tables.Extract(ctx, path, displayName) {
			if strings.TrimSpace(rec.Content) == "" {
				continue
			}
			res.Units = append(res.Units, document.NewTableChunk(
				tenantID, displayName, rec.Content, rec.Page, rec.OrderOnPage, rec.ChunkIndex, rec.Extractor,
			))
			res.TableChunks++
		}
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	log.Debug("document decomposed",
		zap.Int("text_sections", res.TextSections),
		zap.Int("table_chunks", res.TableChunks),
	)
	return res, nil
}
