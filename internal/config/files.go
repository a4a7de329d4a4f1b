package config

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// sourceExtensions are the file extensions treated as C-like source
var sourceExtensions = map[string]bool{
	".c":   true,
	".h":   true,
	".cc":  true,
	".cpp": true,
	".hpp": true,
}

// IsSourceFile reports whether path has a C-like source extension.
func IsSourceFile(path string) bool {
	return sourceExtensions[strings.ToLower(filepath.Ext(path))]
}

// pathGlob matches a slash-separated path. '*' stays inside one path
// segment and '**' crosses segments.
type pathGlob struct {
	pattern string
	g       glob.Glob
}

func compileGlobs(patterns []string) ([]pathGlob, error) {
	out := make([]pathGlob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(filepath.ToSlash(p), '/')
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		out = append(out, pathGlob{pattern: p, g: g})
	}
	return out, nil
}

// matchAny reports whether one of globs matches the root-relative path or
// the absolute path (for absolute patterns).
func matchAny(globs []pathGlob, rel, abs string) bool {
	rel, abs = filepath.ToSlash(rel), filepath.ToSlash(abs)
	for _, g := range globs {
		if g.g.Match(rel) || g.g.Match(abs) {
			return true
		}
	}
	return false
}

// ResolveSources walks rootPath once and returns the source files matched by
// sources.files and not by sources.exclude or lint.ignore_patterns, sorted.
// Hidden directories (the cache, .git) are not entered.
func (c *Config) ResolveSources(rootPath string) ([]string, error) {
	include, err := compileGlobs(c.Sources.Files)
	if err != nil {
		return nil, fmt.Errorf("sources.files: %w", err)
	}
	exclude, err := compileGlobs(c.Sources.Exclude)
	if err != nil {
		return nil, fmt.Errorf("sources.exclude: %w", err)
	}

	root := filepath.Clean(rootPath)
	var result []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable entries are skipped, the walk goes on
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsSourceFile(path) || c.ShouldIgnoreFile(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if matchAny(include, rel, path) && !matchAny(exclude, rel, path) {
			result = append(result, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Strings(result)
	if result == nil {
		result = []string{}
	}
	return result, nil
}
