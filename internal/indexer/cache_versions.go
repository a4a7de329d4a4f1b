package indexer

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"

	"github.com/robert-at-pretension-io/buffait/internal/config"
)

const treeSitterModule = "github.com/smacker/go-tree-sitter"

type cacheVersions struct {
	parser    string
	extractor string
}

func cacheEnabled(cfg *config.Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.CacheEnabled()
}

func resolveCacheDir(rootPath string, cfg *config.Config) string {
	baseDir := rootPath
	if info, err := os.Stat(rootPath); err == nil && !info.IsDir() {
		baseDir = filepath.Dir(rootPath)
	}
	cacheDir := cfg.Analysis.Cache.Dir
	if cacheDir == "" {
		cacheDir = ".buffait_cache"
	}
	if !filepath.IsAbs(cacheDir) {
		cacheDir = filepath.Join(baseDir, cacheDir)
	}
	return cacheDir
}

// computeCacheVersions fingerprints the parser (the tree-sitter module
// version linked into the binary) and the extractor (its grammar sources).
// Either falls back to "unknown" when it cannot be determined.
func computeCacheVersions() cacheVersions {
	parserVersion := ""
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			if dep.Path == treeSitterModule {
				parserVersion = dep.Version + dep.Sum
				break
			}
		}
	}

	extractorVersion := ""
	if dir := findExtractorSourceDir(); dir != "" {
		extractorVersion = hashFiles(
			filepath.Join(dir, "extractor.go"),
			filepath.Join(dir, "patterns.go"),
		)
	}

	if parserVersion == "" {
		parserVersion = "unknown"
	}
	if extractorVersion == "" {
		extractorVersion = "unknown"
	}
	return cacheVersions{parser: parserVersion, extractor: extractorVersion}
}

// findExtractorSourceDir walks up from this source file to the module root
// and returns internal/extractor if the sources are still on disk.
func findExtractorSourceDir() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	dir := filepath.Dir(file)
	for {
		candidate := filepath.Join(dir, "internal", "extractor")
		if _, err := os.Stat(filepath.Join(candidate, "patterns.go")); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func hashFiles(paths ...string) string {
	combined := ""
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return ""
		}
		h, err := hashFile(path)
		if err != nil {
			return ""
		}
		combined += h
	}
	return combined
}
