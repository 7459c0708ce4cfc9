package tables

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageRasterizer renders a single PDF page to an image file in dir and
// returns the image path.
type PageRasterizer interface {
	Available() error
	PageCount(ctx context.Context, path string) (int, error)
	Rasterize(ctx context.Context, path string, page int, dir string) (string, error)
}

// Recognizer extracts text from an image.
type Recognizer interface {
	Available() error
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// PopplerRasterizer renders pages with pdftoppm and counts them with pdfcpu.
type PopplerRasterizer struct {
	Pdftoppm string
	DPI      int
	Runner   CommandRunner
}

func (p *PopplerRasterizer) Available() error {
	return checkAvailable(p.Pdftoppm)
}

func (p *PopplerRasterizer) PageCount(_ context.Context, path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("counting pages: %w", err)
	}
	return n, nil
}

func (p *PopplerRasterizer) Rasterize(ctx context.Context, path string, page int, dir string) (string, error) {
	dpi := p.DPI
	if dpi <= 0 {
		dpi = 300
	}
	prefix := filepath.Join(dir, "page-"+strconv.Itoa(page))
	n := strconv.Itoa(page)
	runner := p.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	if _, err := runner.Run(ctx, p.Pdftoppm, "-f", n, "-l", n, "-r", strconv.Itoa(dpi), "-png", "-singlefile", path, prefix); err != nil {
		return "", fmt.Errorf("rasterizing page %d: %w", page, err)
	}
	return prefix + ".png", nil
}

// TesseractRecognizer OCRs an image with the tesseract command line tool.
type TesseractRecognizer struct {
	Tesseract string
	Language  string
	Runner    CommandRunner
}

func (t *TesseractRecognizer) Available() error {
	return checkAvailable(t.Tesseract)
}

func (t *TesseractRecognizer) Recognize(ctx context.Context, imagePath string) (string, error) {
	lang := t.Language
	if lang == "" {
		lang = "eng"
	}
	runner := t.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	// psm 6: a single uniform block of text.
	out, err := runner.Run(ctx, t.Tesseract, imagePath, "stdout", "-l", lang, "--psm", "6")
	if err != nil {
		return "", fmt.Errorf("ocr %s: %w", filepath.Base(imagePath), err)
	}
	return string(out), nil
}
