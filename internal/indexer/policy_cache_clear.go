package indexer

import (
	"fmt"
	"os"

	"github.com/robert-at-pretension-io/buffait/internal/config"
)

// ClearCache removes the extraction cache, the stored fact tables and the
// policy cache for the given root path. It returns the directory targeted.
func ClearCache(rootPath string, cfg *config.Config) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("clear cache: config is nil")
	}
	cacheDir := resolveCacheDir(rootPath, cfg)
	if err := os.RemoveAll(cacheDir); err != nil {
		return cacheDir, fmt.Errorf("remove cache: %w", err)
	}
	return cacheDir, nil
}

// ClearPolicyCache removes only the stored policy result, forcing the rules
// to be evaluated again on the next run.
func ClearPolicyCache(rootPath string, cfg *config.Config) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("clear policy cache: config is nil")
	}
	cacheDir := resolveCacheDir(rootPath, cfg)
	if err := clearPolicyCache(cacheDir); err != nil {
		return cacheDir, err
	}
	return cacheDir, nil
}

func clearPolicyCache(cacheDir string) error {
	if err := os.Remove(policyCachePath(cacheDir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove policy cache: %w", err)
	}
	return nil
}
