package walker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileInfo holds metadata about a document discovered for ingestion.
type FileInfo struct {
	Path        string // Absolute path on disk.
	Name        string // Base name, used as the staged filename.
	Size        int64
	Extension   string // Lower-case extension including the dot.
	ContentHash string // SHA-256 hex digest of the file content.
}

// Skipped records a candidate that was not collected and why.
type Skipped struct {
	Path   string
	Reason string
}

// Config controls Collect.
type Config struct {
	// Patterns are file paths, directories or doublestar globs.
	Patterns []string
	// Exclude patterns are matched against the path relative to the
	// directory or glob root and against the base name.
	Exclude []string
	// Extensions lists the accepted extensions, e.g. ".pdf". Empty accepts all.
	Extensions []string
	// MaxFileSize skips larger files. Zero disables the check.
	MaxFileSize int64
}

// Result is the outcome of a Collect call.
type Result struct {
	Files   []FileInfo
	Skipped []Skipped
}

// Collect resolves every pattern into a flat, de-duplicated list of
// documents. Directories are walked recursively, honouring a .gitignore at
// their root. Two files sharing a base name cannot both be staged, so the
// later one is reported as skipped; identical content under another name is
// skipped too.
func Collect(cfg Config) (*Result, error) {
	exclude, err := newExcludeSet(cfg.Exclude)
	if err != nil {
		return nil, err
	}
	c := &collector{
		cfg:     cfg,
		exclude: exclude,
		exts:    normalizeExtensions(cfg.Extensions),
		paths:   make(map[string]bool),
		names:   make(map[string]string),
		hashes:  make(map[string]string),
		result:  &Result{},
	}

	for _, pattern := range cfg.Patterns {
		if err := c.resolve(pattern); err != nil {
			return nil, err
		}
	}

	sort.Slice(c.result.Files, func(i, j int) bool {
		return c.result.Files[i].Name < c.result.Files[j].Name
	})
	return c.result, nil
}

type collector struct {
	cfg     Config
	exclude excludeSet
	exts    map[string]bool
	paths   map[string]bool   // absolute path -> seen
	names   map[string]string // base name -> first path
	hashes  map[string]string // content hash -> first path
	result  *Result
}

func (c *collector) resolve(pattern string) error {
	if pattern == "" {
		return nil
	}

	info, err := os.Stat(pattern)
	switch {
	case err == nil && info.IsDir():
		return c.walkDir(pattern)
	case err == nil:
		c.consider(pattern, filepath.Base(pattern))
		return nil
	}

	matches, gerr := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if gerr != nil {
		return fmt.Errorf("walker: bad pattern %q: %w", pattern, gerr)
	}
	if len(matches) == 0 {
		c.skip(pattern, "no files match")
		return nil
	}

	base, _ := doublestar.SplitPattern(filepath.ToSlash(pattern))
	for _, m := range matches {
		rel, rerr := filepath.Rel(filepath.FromSlash(base), m)
		if rerr != nil {
			rel = filepath.Base(m)
		}
		c.consider(m, rel)
	}
	return nil
}

func (c *collector) walkDir(dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("walker: resolve %s: %w", dir, err)
	}
	ignore := loadGitignore(filepath.Join(root, ".gitignore"))

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if matchesGitignore(rel, ignore) {
			return nil
		}
		c.consider(path, rel)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walker: traversal of %s: %w", dir, err)
	}
	return nil
}

func (c *collector) consider(path, rel string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		c.skip(path, err.Error())
		return
	}
	if c.paths[abs] {
		return
	}
	c.paths[abs] = true

	if c.exclude.match(rel) {
		return
	}

	name := filepath.Base(abs)
	ext := strings.ToLower(filepath.Ext(name))
	if len(c.exts) > 0 && !c.exts[ext] {
		c.skip(abs, fmt.Sprintf("unsupported file type %q", ext))
		return
	}

	info, err := os.Stat(abs)
	if err != nil {
		c.skip(abs, err.Error())
		return
	}
	if c.cfg.MaxFileSize > 0 && info.Size() > c.cfg.MaxFileSize {
		c.skip(abs, fmt.Sprintf("larger than %d bytes", c.cfg.MaxFileSize))
		return
	}

	if first, ok := c.names[name]; ok {
		c.skip(abs, "same filename as "+first)
		return
	}

	hash, err := hashFile(abs)
	if err != nil {
		c.skip(abs, err.Error())
		return
	}
	if first, ok := c.hashes[hash]; ok {
		c.skip(abs, "same content as "+first)
		return
	}

	c.names[name] = abs
	c.hashes[hash] = abs
	c.result.Files = append(c.result.Files, FileInfo{
		Path:        abs,
		Name:        name,
		Size:        info.Size(),
		Extension:   ext,
		ContentHash: hash,
	})
}

func (c *collector) skip(path, reason string) {
	c.result.Skipped = append(c.result.Skipped, Skipped{Path: path, Reason: reason})
}

func normalizeExtensions(exts []string) map[string]bool {
	out := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out[e] = true
	}
	return out
}

// hashFile computes the SHA-256 digest of the given file.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// loadGitignore reads a .gitignore file and returns its non-empty,
// non-comment lines as patterns.
func loadGitignore(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// matchesGitignore checks a relative path against gitignore-style patterns.
// Negations are not supported.
func matchesGitignore(relPath string, patterns []string) bool {
	normalized := filepath.ToSlash(relPath)
	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, "!") {
			continue
		}
		dirOnly := strings.HasSuffix(pattern, "/")
		pattern = strings.TrimPrefix(strings.TrimSuffix(pattern, "/"), "/")

		if !strings.Contains(pattern, "/") {
			parts := strings.Split(normalized, "/")
			for i, part := range parts {
				// A dir-only pattern cannot match the file itself.
				if dirOnly && i == len(parts)-1 {
					break
				}
				if ok, _ := doublestar.Match(pattern, part); ok {
					return true
				}
			}
			continue
		}
		if ok, _ := doublestar.Match(pattern, normalized); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern+"/**", normalized); ok {
			return true
		}
	}
	return false
}
