package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownLoader parses Markdown and flattens it to text in which every
// heading sits on its own line without the leading hashes, so the section
// splitter sees "Methods" rather than "## Methods".
type MarkdownLoader struct{}

func (MarkdownLoader) Load(_ context.Context, path string) ([]Page, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading markdown file: %w", err)
	}
	return []Page{{Text: flattenMarkdown(src)}}, nil
}

func flattenMarkdown(src []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		lines := n.Lines()
		if lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(bytes.TrimRight(seg.Value(src), "\r\n"))
			buf.WriteByte('\n')
		}
		buf.WriteByte('\n')
		return ast.WalkSkipChildren, nil
	})
	return string(bytes.TrimSpace(buf.Bytes()))
}
