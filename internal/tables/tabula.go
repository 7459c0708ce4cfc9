package tables

import (
	"context"
	"encoding/json"
	"fmt"
)

// DetectedTable is one table found by a layout detector.
type DetectedTable struct {
	Page int
	Rows Grid
}

// LayoutDetector finds ruled or whitespace-aligned tables in a PDF.
type LayoutDetector interface {
	Available() error
	Detect(ctx context.Context, path string) ([]DetectedTable, error)
}

// TabulaDetector runs the tabula-java command line tool and reads its JSON
// output. Lattice mode follows ruling lines; stream mode uses whitespace.
type TabulaDetector struct {
	Java   string
	Jar    string
	Stream bool
	Runner CommandRunner
}

func (d *TabulaDetector) Available() error {
	if d.Jar == "" {
		return fmt.Errorf("tabula jar not configured")
	}
	return checkAvailable(d.Java)
}

func (d *TabulaDetector) Detect(ctx context.Context, path string) ([]DetectedTable, error) {
	mode := "--lattice"
	if d.Stream {
		mode = "--stream"
	}
	out, err := d.runner().Run(ctx, d.Java, "-jar", d.Jar, "--format", "JSON", "--pages", "all", "--silent", mode, path)
	if err != nil {
		return nil, fmt.Errorf("running tabula: %w", err)
	}
	return parseTabulaJSON(out)
}

func (d *TabulaDetector) runner() CommandRunner {
	if d.Runner != nil {
		return d.Runner
	}
	return ExecRunner{}
}

type tabulaTable struct {
	PageNumber int            `json:"page_number"`
	Data       [][]tabulaCell `json:"data"`
}

type tabulaCell struct {
	Text string `json:"text"`
}

func parseTabulaJSON(out []byte) ([]DetectedTable, error) {
	var raw []tabulaTable
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("decoding tabula output: %w", err)
	}

	tables := make([]DetectedTable, 0, len(raw))
	for _, t := range raw {
		grid := make(Grid, 0, len(t.Data))
		for _, row := range t.Data {
			cells := make([]string, len(row))
			for i, c := range row {
				cells[i] = c.Text
			}
			grid = append(grid, cells)
		}
		page := t.PageNumber
		if page <= 0 {
			page = 1
		}
		tables = append(tables, DetectedTable{Page: page, Rows: grid})
	}
	return tables, nil
}
