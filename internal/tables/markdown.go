package tables

import (
	"strconv"
	"strings"
)

// Grid is a detected table: rows of cell text.
type Grid [][]string

// isEmpty reports whether the grid has no non-blank cell.
func (g Grid) isEmpty() bool {
	for _, row := range g {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				return false
			}
		}
	}
	return true
}

func (g Grid) width() int {
	w := 0
	for _, row := range g {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

// Windows splits g into consecutive row windows of at most size rows.
func (g Grid) Windows(size int) []Grid {
	if size <= 0 {
		size = 1
	}
	var out []Grid
	for start := 0; start < len(g); start += size {
		end := start + size
		if end > len(g) {
			end = len(g)
		}
		out = append(out, g[start:end])
	}
	return out
}

// RenderMarkdown renders rows as a pipe table. Columns are labelled by
// index because detected tables carry no reliable header row.
func RenderMarkdown(rows Grid, width int) string {
	var b strings.Builder

	b.WriteByte('|')
	for c := 0; c < width; c++ {
		b.WriteString(" " + strconv.Itoa(c) + " |")
	}
	b.WriteString("\n|")
	for c := 0; c < width; c++ {
		b.WriteString("---|")
	}
	for _, row := range rows {
		b.WriteString("\n|")
		for c := 0; c < width; c++ {
			cell := ""
			if c < len(row) {
				cell = escapeCell(row[c])
			}
			b.WriteString(" " + cell + " |")
		}
	}
	return b.String()
}

var cellReplacer = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

func escapeCell(s string) string {
	return strings.TrimSpace(cellReplacer.Replace(s))
}
