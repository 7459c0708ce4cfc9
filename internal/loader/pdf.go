package loader

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFLoader extracts per-page text from a PDF using its content streams.
// Glyphs are grouped into lines by baseline and ordered left to right.
type PDFLoader struct{}

func (PDFLoader) Load(ctx context.Context, path string) (pages []Page, err error) {
	// The parser panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pages = append(pages, Page{Number: i, Text: layoutLines(p.Content().Text)})
	}
	return pages, nil
}

// lineTolerance is how far apart two baselines may be and still count as
// the same line, in points.
const lineTolerance = 2.0

func layoutLines(glyphs []pdf.Text) string {
	if len(glyphs) == 0 {
		return ""
	}

	sorted := make([]pdf.Text, len(glyphs))
	copy(sorted, glyphs)
	// PDF y grows upwards, so higher y is earlier on the page.
	sort.SliceStable(sorted, func(i, j int) bool {
		if math.Abs(sorted[i].Y-sorted[j].Y) > lineTolerance {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var (
		b        strings.Builder
		lineY    = sorted[0].Y
		prevEnd  = sorted[0].X
		firstRun = true
	)
	for _, g := range sorted {
		if math.Abs(g.Y-lineY) > lineTolerance {
			b.WriteByte('\n')
			lineY = g.Y
			firstRun = true
		}
		if !firstRun && g.X-prevEnd > g.FontSize*0.25 && !strings.HasPrefix(g.S, " ") {
			b.WriteByte(' ')
		}
		b.WriteString(g.S)
		prevEnd = g.X + g.W
		firstRun = false
	}
	return strings.TrimSpace(b.String())
}
