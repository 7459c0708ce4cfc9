package rag

import (
	"fmt"
	"strings"

	"github.com/ziadkadry99/docqa/internal/document"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

const systemPrompt = `You are a helpful assistant. Use the context below to answer the question accurately.

If a section title like "Introduction", "Methods", or "Conclusion" is relevant, consider it carefully.`

const answerTemplate = `Context:
%s

Question:
%s

If the answer is not in the context, say in the language of the user that you "couldn't find the answer in the documents."
if the language is spanish and the answer is not in the context, say this: "Lo siento,no tengo respuesta para tu consulta. ¿Podrías darme un poco más de detalle o decirlo de otra forma ?"`

const (
	contextSeparator = "\n\n---\n\n"
	emptyContext     = "(no relevant documents were found)"
)

// buildContext renders retrieved units into one block, each labelled with
// where it came from.
func buildContext(results []vectordb.SearchResult) string {
	if len(results) == 0 {
		return emptyContext
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = label(r.Unit) + "\n" + r.Unit.Text
	}
	return strings.Join(parts, contextSeparator)
}

func label(u document.ContentUnit) string {
	var b strings.Builder
	b.WriteString("[Source: ")
	b.WriteString(u.SourceFilename)
	if u.Page != nil {
		fmt.Fprintf(&b, ", page %d", *u.Page)
	}
	if u.SectionTitle != "" {
		fmt.Fprintf(&b, ", section %s", u.SectionTitle)
	}
	if u.ContentType == document.ContentTableChunk && u.TableChunkIndex != nil {
		fmt.Fprintf(&b, ", table chunk %d", *u.TableChunkIndex)
	}
	b.WriteString("]")
	return b.String()
}

func buildPrompt(contextBlock, question string) string {
	return fmt.Sprintf(answerTemplate, contextBlock, question)
}
