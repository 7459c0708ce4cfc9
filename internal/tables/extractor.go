// Package tables extracts tabular content from PDFs. A layout detector runs
// first; only when it yields nothing are pages rasterised and OCR'd, and a
// page is kept when its text looks like a table.
package tables

import (
	"context"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/docqa/internal/document"
	"github.com/ziadkadry99/docqa/internal/logging"
)

// DefaultRowsPerChunk is the table window size.
const DefaultRowsPerChunk = 10

// tableLike flags OCR text containing pipe rows, plus-bordered rows or rules.
var tableLike = regexp.MustCompile(`(\|.*\|)|(\+.*\+)|(-{3,})`)

// Record is one extracted table chunk.
type Record struct {
	Content     string
	Page        int
	OrderOnPage int
	ChunkIndex  int
	Extractor   document.Extractor
}

// Options configures an Extractor. Nil stages are skipped.
type Options struct {
	Layout         LayoutDetector
	Rasterizer     PageRasterizer
	Recognizer     Recognizer
	RowsPerChunk   int
	OCRConcurrency int
}

// Extractor runs the layout stage and the OCR fallback.
type Extractor struct {
	opts Options
}

// New returns an Extractor with defaults applied.
func New(opts Options) *Extractor {
	if opts.RowsPerChunk <= 0 {
		opts.RowsPerChunk = DefaultRowsPerChunk
	}
	if opts.OCRConcurrency <= 0 {
		opts.OCRConcurrency = 4
	}
	return &Extractor{opts: opts}
}

// Extract returns table records for the PDF at path. Failures inside
// either stage are logged and treated as "no tables"; the result is empty
// when neither stage is available.
func (e *Extractor) Extract(ctx context.Context, path, displayName string) []Record {
	log := logging.FromContext(ctx).With(zap.String("file", displayName))

	if records := e.layoutStage(ctx, path, log); len(records) > 0 {
		log.Info("tables extracted by layout detector", zap.Int("chunks", len(records)))
		return records
	}
	if ctx.Err() != nil {
		return nil
	}

	records := e.ocrStage(ctx, path, log)
	if len(records) > 0 {
		log.Info("table-like pages found by ocr", zap.Int("pages", len(records)))
	}
	return records
}

func (e *Extractor) layoutStage(ctx context.Context, path string, log *zap.Logger) []Record {
	d := e.opts.Layout
	if d == nil {
		return nil
	}
	if err := d.Available(); err != nil {
		log.Debug("layout detector unavailable", zap.Error(err))
		return nil
	}

	found, err := d.Detect(ctx, path)
	if err != nil {
		log.Warn("layout detection failed, trying ocr", zap.Error(err))
		return nil
	}

	var records []Record
	orderOnPage := make(map[int]int)
	for _, t := range found {
		order := orderOnPage[t.Page]
		orderOnPage[t.Page]++
		if len(t.Rows) == 0 || t.Rows.isEmpty() {
			log.Debug("skipping empty table", zap.Int("page", t.Page), zap.Int("order", order))
			continue
		}
		width := t.Rows.width()
		for j, window := range t.Rows.Windows(e.opts.RowsPerChunk) {
			records = append(records, Record{
				Content:     RenderMarkdown(window, width),
				Page:        t.Page,
				OrderOnPage: order,
				ChunkIndex:  j,
				Extractor:   document.ExtractorLayout,
			})
		}
	}
	return records
}

func (e *Extractor) ocrStage(ctx context.Context, path string, log *zap.Logger) []Record {
	r, o := e.opts.Rasterizer, e.opts.Recognizer
	if r == nil || o == nil {
		return nil
	}
	if err := r.Available(); err != nil {
		log.Debug("rasterizer unavailable", zap.Error(err))
		return nil
	}
	if err := o.Available(); err != nil {
		log.Debug("ocr engine unavailable", zap.Error(err))
		return nil
	}

	pages, err := r.PageCount(ctx, path)
	if err != nil {
		log.Warn("ocr fallback skipped", zap.Error(err))
		return nil
	}

	dir, err := os.MkdirTemp("", "docqa-ocr-*")
	if err != nil {
		log.Warn("ocr fallback skipped", zap.Error(err))
		return nil
	}
	defer os.RemoveAll(dir)

	texts := make([]string, pages)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.OCRConcurrency)
	for i := 0; i < pages; i++ {
		page := i + 1
		g.Go(func() error {
			img, err := r.Rasterize(gctx, path, page, dir)
			if err != nil {
				log.Warn("rasterizing page failed", zap.Int("page", page), zap.Error(err))
				return nil
			}
			text, err := o.Recognize(gctx, img)
			if err != nil {
				log.Warn("ocr page failed", zap.Int("page", page), zap.Error(err))
				return nil
			}
			texts[i] = text
			return nil
		})
	}
	_ = g.Wait()

	var records []Record
	for i, text := range texts {
		if !tableLike.MatchString(text) {
			continue
		}
		content := strings.TrimSpace(text)
		if content == "" {
			continue
		}
		records = append(records, Record{
			Content:   content,
			Page:      i + 1,
			Extractor: document.ExtractorOCR,
		})
	}
	return records
}
