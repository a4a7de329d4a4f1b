package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/robert-at-pretension-io/buffait/internal/config"
	"github.com/robert-at-pretension-io/buffait/internal/policy"
)

const policyCacheVersion = 1

// policyCacheEntry is the last policy result, reusable while no source file
// changed and the settings that shape the fact tables and rules are the same.
type policyCacheEntry struct {
	Version    int           `json:"version"`
	ConfigHash string        `json:"config_hash"`
	Files      []string      `json:"files"`
	Result     policy.Result `json:"result"`
}

func loadPolicyCache(dir string) (*policyCacheEntry, error) {
	data, err := os.ReadFile(policyCachePath(dir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry policyCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parse policy cache: %w", err)
	}
	return &entry, nil
}

func savePolicyCache(dir string, entry policyCacheEntry) error {
	if err := writeJSONAtomic(policyCachePath(dir), entry); err != nil {
		return fmt.Errorf("write policy cache: %w", err)
	}
	return nil
}

func policyCachePath(dir string) string {
	return filepath.Join(dir, "policy_cache.json")
}

// policyCacheValid reports whether entry was produced from the same file set
// under the same settings and rules.
func policyCacheValid(entry *policyCacheEntry, hash string, files []string) bool {
	return entry != nil &&
		entry.Version == policyCacheVersion &&
		entry.ConfigHash == hash &&
		slices.Equal(entry.Files, files)
}

func policyConfigHash(cfg *config.Config, policiesDir string) (string, error) {
	rulesVersion, err := policy.RulesVersion(policiesDir)
	if err != nil {
		return "", fmt.Errorf("policy rules hash: %w", err)
	}
	ruleNames := make([]string, 0, len(cfg.Lint.Rules))
	for name := range cfg.Lint.Rules {
		ruleNames = append(ruleNames, name)
	}
	sort.Strings(ruleNames)
	rules := make([]string, 0, len(ruleNames))
	for _, name := range ruleNames {
		rules = append(rules, name+"="+cfg.Lint.Rules[name])
	}
	payload := struct {
		Mode         string   `json:"mode"`
		Duplicates   string   `json:"duplicates"`
		MaxDepth     int      `json:"max_depth"`
		Rules        []string `json:"rules"`
		RulesVersion string   `json:"rules_version"`
	}{
		Mode:         string(cfg.ExtractionMode()),
		Duplicates:   cfg.Graph.Duplicates,
		MaxDepth:     cfg.Graph.MaxDepth,
		Rules:        rules,
		RulesVersion: rulesVersion,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal policy config hash: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
