package vectordb

import (
	"fmt"
	"strings"
)

// FormatResults renders search results as human-readable text.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d result(s):\n\n", len(results))

	for i, r := range results {
		fmt.Fprintf(&sb, "--- Result %d (similarity: %.4f) ---\n", i+1, r.Similarity)

		u := r.Unit
		location := u.SourceFilename
		if u.Page != nil {
			location += fmt.Sprintf(", page %d", *u.Page)
		}
		fmt.Fprintf(&sb, "Source: %s\n", location)
		fmt.Fprintf(&sb, "Type: %s\n", u.ContentType)
		if u.SectionTitle != "" {
			fmt.Fprintf(&sb, "Section: %s\n", u.SectionTitle)
		}
		if u.TableChunkIndex != nil {
			fmt.Fprintf(&sb, "Table chunk: %d (%s)\n", *u.TableChunkIndex, u.Extractor)
		}

		sb.WriteString("\n")
		sb.WriteString(u.Text)
		sb.WriteString("\n\n")
	}

	return sb.String()
}
