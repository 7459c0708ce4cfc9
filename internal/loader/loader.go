// Package loader turns a stored document into ordered pages of plain text.
package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ziadkadry99/docqa/internal/apperr"
)

// Page is the text of one page. Number is 1-based; 0 means the format has
// no pages and the whole document is a single unnumbered page.
type Page struct {
	Number int
	Text   string
}

// Loader reads one document format.
type Loader interface {
	Load(ctx context.Context, path string) ([]Page, error)
}

// Registry dispatches on file extension.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry returns a Registry with the built-in loaders for
// .pdf, .txt, .md and .docx.
func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[string]Loader)}
	r.Register(".pdf", PDFLoader{})
	r.Register(".txt", TextLoader{})
	r.Register(".md", MarkdownLoader{})
	r.Register(".docx", DocxLoader{})
	return r
}

// Register binds ext (with leading dot, case-insensitive) to l.
func (r *Registry) Register(ext string, l Loader) {
	r.loaders[strings.ToLower(ext)] = l
}

// Supports reports whether a loader exists for filename's extension.
func (r *Registry) Supports(filename string) bool {
	_, ok := r.loaders[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Extensions lists the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Load reads path with the loader registered for its extension. Every
// failure is reported as apperr.ErrExtraction.
func (r *Registry) Load(ctx context.Context, path string) ([]Page, error) {
	ext := strings.ToLower(filepath.Ext(path))
	l, ok := r.loaders[ext]
	if !ok {
		return nil, apperr.Extraction(filepath.Base(path), fmt.Errorf("unsupported file type %q", ext))
	}
	pages, err := l.Load(ctx, path)
	if err != nil {
		return pages, apperr.Extraction(filepath.Base(path), err)
	}
	return pages, nil
}
