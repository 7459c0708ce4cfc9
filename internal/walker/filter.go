package walker

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// skipDirs are never descended into when a directory is collected. The last
// three are docqa's own data directories.
var skipDirs = map[string]bool{
	".git":           true,
	".hg":            true,
	".svn":           true,
	"node_modules":   true,
	"__pycache__":    true,
	".venv":          true,
	"staged_files":   true,
	"uploaded_files": true,
	"vector_store":   true,
}

func shouldSkipDir(name string) bool {
	return skipDirs[strings.ToLower(name)]
}

// excludeSet matches slash-separated relative paths against doublestar
// patterns. A pattern without a slash also matches the base name alone.
type excludeSet []string

func newExcludeSet(patterns []string) (excludeSet, error) {
	set := make(excludeSet, 0, len(patterns))
	for _, p := range patterns {
		p = filepath.ToSlash(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("walker: bad exclude pattern %q", p)
		}
		set = append(set, p)
	}
	return set, nil
}

func (s excludeSet) match(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range s {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if !strings.Contains(p, "/") {
			if ok, _ := doublestar.Match(p, path.Base(rel)); ok {
				return true
			}
		}
	}
	return false
}
