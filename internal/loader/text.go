package loader

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// TextLoader reads UTF-8 plain text as a single page.
type TextLoader struct{}

func (TextLoader) Load(_ context.Context, path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("file is not valid UTF-8 text")
	}
	return []Page{{Text: normalizeNewlines(string(data))}}, nil
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}
