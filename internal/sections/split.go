// Package sections splits page text into titled segments at recognised
// document headings such as "1. Introduction" or "Chapter 2: Methods".
package sections

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	// PreambleTitle labels text that precedes the first heading.
	PreambleTitle = "Preamble"
	// ContentTitle labels a page with no recognised heading.
	ContentTitle = "Content"
)

// Keywords is the ordered heading vocabulary. Longer phrases that share a
// prefix with a shorter keyword still match because the heading must end
// the line.
var Keywords = []string{
	"Title", "Subtitle", "Abstract", "Summary", "Executive Summary", "Keywords",
	"Preface", "Foreword", "Introduction", "Background", "Context",
	"Problem Statement", "Objectives", "Scope", "Related Work", "Literature Review",
	"Theoretical Framework", "Hypothesis", "Assumptions", "Methodology", "Methods",
	"Data Collection", "Data Sources", "Experimental Setup", "Materials and Methods",
	"Evaluation", "Validation", "Analysis", "Results", "Findings", "Observations",
	"Discussion", "Interpretation", "Implications", "Limitations", "Recommendations",
	"Future Work", "Use Cases", "Conclusion", "Summary and Conclusion",
	"Closing Remarks", "Acknowledgments", "Funding", "Author Contributions",
	"CRediT Taxonomy", "Conflict of Interest", "Ethical Approval", "References",
	"Bibliography", "Works Cited", "Appendices", "Appendix",
	"Supplementary Materials", "Supporting Information", "Glossary",
	"Abbreviations", "Index",
}

// headingRe matches a whole heading line: an optional numbering marker,
// one keyword, and optional trailing punctuation.
var headingRe = buildHeadingRe(Keywords)

func buildHeadingRe(keywords []string) *regexp.Regexp {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = regexp.QuoteMeta(k)
	}
	marker := `(?:\d{1,2}[.)]?\s*|\[\d{1,2}\]\s*|Chapter \d{1,2}\s*[:.\-]?\s*|Section \d{1,2}\s*[:.\-]?\s*)?`
	return regexp.MustCompile(`(?im)^[ \t]*` + marker + `(` + strings.Join(quoted, "|") + `)[ \t]*[:.\-]?[ \t]*$`)
}

// Segment is one titled slice of page text.
type Segment struct {
	Title string
	Body  string
}

// Split returns the segments of text in document order. Text before the
// first heading becomes a Preamble segment; text with no heading at all
// becomes a single Content segment. Segments whose body is blank are dropped.
func Split(text string) []Segment {
	matches := headingRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		if body := strings.TrimSpace(text); body != "" {
			return []Segment{{Title: ContentTitle, Body: body}}
		}
		return nil
	}

	var segments []Segment
	if pre := strings.TrimSpace(text[:matches[0][0]]); pre != "" {
		segments = append(segments, Segment{Title: PreambleTitle, Body: pre})
	}

	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(text[m[1]:end])
		if body == "" {
			continue
		}
		segments = append(segments, Segment{
			Title: titleCase(text[m[2]:m[3]]),
			Body:  body,
		})
	}
	return segments
}

// titleCase upper-cases the first letter of every word and lower-cases the
// rest, so "EXECUTIVE SUMMARY" and "executive summary" both become
// "Executive Summary".
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}
