package loader

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/docqa/internal/apperr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistrySupports(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Supports("a.PDF"))
	assert.True(t, r.Supports("notes.md"))
	assert.True(t, r.Supports("x.docx"))
	assert.False(t, r.Supports("image.png"))
	assert.Equal(t, []string{".docx", ".md", ".pdf", ".txt"}, r.Extensions())
}

func TestRegistryUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "image.png", "not really")
	_, err := NewRegistry().Load(context.Background(), path)
	assert.ErrorIs(t, err, apperr.ErrExtraction)
}

func TestTextLoader(t *testing.T) {
	path := writeFile(t, "a.txt", "Introduction\r\nHello\r\n")
	pages, err := NewRegistry().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 0, pages[0].Number)
	assert.Equal(t, "Introduction\nHello\n", pages[0].Text)
}

func TestTextLoaderRejectsBinary(t *testing.T) {
	path := writeFile(t, "a.txt", string([]byte{0xff, 0xfe, 0x00}))
	_, err := NewRegistry().Load(context.Background(), path)
	assert.ErrorIs(t, err, apperr.ErrExtraction)
}

func TestMarkdownLoaderPutsHeadingsOnTheirOwnLine(t *testing.T) {
	src := "# Handbook\n\nIntro paragraph\nspanning lines.\n\n## Methods\n\n- step one\n- step two\n"
	path := writeFile(t, "a.md", src)

	pages, err := NewRegistry().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	text := pages[0].Text
	assert.Contains(t, text, "\nMethods\n")
	assert.NotContains(t, text, "#")
	assert.Contains(t, text, "Intro paragraph\nspanning lines.")
	assert.Contains(t, text, "step two")
}

func TestDocxLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Results</w:t></w:r></w:p>
<w:p><w:r><w:t>Revenue grew </w:t></w:r><w:r><w:t>12%.</w:t></w:r></w:p>
</w:body>
</w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	pages, err := NewRegistry().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Results\nRevenue grew 12%.", pages[0].Text)
}

func TestDocxLoaderNotAZip(t *testing.T) {
	path := writeFile(t, "a.docx", "plain text")
	_, err := NewRegistry().Load(context.Background(), path)
	assert.ErrorIs(t, err, apperr.ErrExtraction)
}

func TestPDFLoaderCorruptFile(t *testing.T) {
	path := writeFile(t, "broken.pdf", "%PDF-1.4\nthis is not a pdf body")
	_, err := NewRegistry().Load(context.Background(), path)
	assert.ErrorIs(t, err, apperr.ErrExtraction)
}

func TestLayoutLines(t *testing.T) {
	glyphs := []pdf.Text{
		{S: "World", X: 40, Y: 700, W: 25, FontSize: 10},
		{S: "Hello", X: 10, Y: 700, W: 25, FontSize: 10},
		{S: "Next", X: 10, Y: 680, W: 20, FontSize: 10},
		{S: "line", X: 31, Y: 680.5, W: 15, FontSize: 10},
	}
	assert.Equal(t, "Hello World\nNextline", layoutLines(glyphs))
	assert.Equal(t, "", layoutLines(nil))
}
