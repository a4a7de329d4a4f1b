package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/robert-at-pretension-io/buffait/internal/extractor"
)

const cacheIndexVersion = 2

// cacheEntry points at the stored FileFacts of one (mode, file) pair.
type cacheEntry struct {
	ContentHash      string `json:"content_hash"`
	FactsPath        string `json:"facts_path"`
	ParserVersion    string `json:"parser_version"`
	ExtractorVersion string `json:"extractor_version"`
}

type cacheIndex struct {
	Version int                   `json:"version"`
	Entries map[string]cacheEntry `json:"entries"`
}

// factsCache stores extracted FileFacts on disk. Lines and statements mode
// split files differently, so each mode keeps its own entry per file and
// switching modes back and forth does not throw either away.
type factsCache struct {
	dir      string
	versions cacheVersions

	mu    sync.Mutex
	index cacheIndex
}

func newFactsCache(dir, parserVersion, extractorVersion string) *factsCache {
	return &factsCache{
		dir:      dir,
		versions: cacheVersions{parser: parserVersion, extractor: extractorVersion},
		index:    emptyCacheIndex(),
	}
}

func emptyCacheIndex() cacheIndex {
	return cacheIndex{Version: cacheIndexVersion, Entries: map[string]cacheEntry{}}
}

func entryKey(filePath string, mode extractor.Mode) string {
	return string(mode) + ":" + filePath
}

func (c *factsCache) indexPath() string {
	return filepath.Join(c.dir, "index.json")
}

func (c *factsCache) factsPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, "facts", hex.EncodeToString(sum[:])+".json")
}

// Load reads the index. A missing index or one of another format leaves the
// cache empty.
func (c *factsCache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("cache mkdir: %w", err)
	}
	data, err := os.ReadFile(c.indexPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cache index: %w", err)
	}
	var idx cacheIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("parse cache index: %w", err)
	}
	if idx.Version != cacheIndexVersion || idx.Entries == nil {
		c.index = emptyCacheIndex()
		return nil
	}
	c.index = idx
	return nil
}

func (c *factsCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return writeJSONAtomic(c.indexPath(), c.index)
}

// Get returns the stored facts when the file content, the mode and both
// tool versions all match what was stored.
func (c *factsCache) Get(filePath, contentHash string, mode extractor.Mode) (extractor.FileFacts, bool, error) {
	c.mu.Lock()
	entry, ok := c.index.Entries[entryKey(filePath, mode)]
	c.mu.Unlock()

	fresh := ok &&
		entry.ContentHash == contentHash &&
		entry.ParserVersion == c.versions.parser &&
		entry.ExtractorVersion == c.versions.extractor
	if !fresh {
		return extractor.FileFacts{}, false, nil
	}

	data, err := os.ReadFile(entry.FactsPath)
	if err != nil {
		return extractor.FileFacts{}, false, fmt.Errorf("read cached facts: %w", err)
	}
	var ff extractor.FileFacts
	if err := json.Unmarshal(data, &ff); err != nil {
		return extractor.FileFacts{}, false, fmt.Errorf("parse cached facts: %w", err)
	}
	return ff, true, nil
}

func (c *factsCache) Put(filePath, contentHash string, ff extractor.FileFacts) error {
	key := entryKey(filePath, ff.Mode)
	path := c.factsPath(key)
	if err := writeJSONAtomic(path, ff); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.index.Entries[key] = cacheEntry{
		ContentHash:      contentHash,
		FactsPath:        path,
		ParserVersion:    c.versions.parser,
		ExtractorVersion: c.versions.extractor,
	}
	return nil
}

// writeJSONAtomic writes v through a temp file and a rename so a reader
// never sees a half-written cache file.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache json: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	switch {
	case werr != nil:
		err = fmt.Errorf("write cache file: %w", werr)
	case cerr != nil:
		err = fmt.Errorf("close cache file: %w", cerr)
	default:
		if rerr := os.Rename(tmpName, path); rerr != nil {
			err = fmt.Errorf("rename cache file: %w", rerr)
		}
	}
	if err != nil {
		_ = os.Remove(tmpName)
	}
	return err
}

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
