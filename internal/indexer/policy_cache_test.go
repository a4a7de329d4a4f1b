package indexer

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/robert-at-pretension-io/buffait/internal/config"
	"github.com/robert-at-pretension-io/buffait/internal/policy"
)

func TestPolicyCacheRoundTripAndValidity(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Lint.Rules = map[string]string{"unresolved_size": "error"}

	hash, err := policyConfigHash(cfg, "")
	if err != nil {
		t.Fatalf("policyConfigHash error: %v", err)
	}

	entry := policyCacheEntry{
		Version:    policyCacheVersion,
		ConfigHash: hash,
		Files:      []string{"a.c"},
		Result: policy.Result{
			Violations: []policy.Violation{{
				Rule:     "unresolved_size",
				Severity: "error",
				File:     "a.c",
				Line:     2,
				Name:     "buf",
				Message:  "size of buffer buf cannot be resolved (N not declared)",
			}},
			Summary: policy.Summary{TotalViolations: 1, Errors: 1},
		},
	}

	if err := savePolicyCache(dir, entry); err != nil {
		t.Fatalf("savePolicyCache error: %v", err)
	}
	loaded, err := loadPolicyCache(dir)
	if err != nil {
		t.Fatalf("loadPolicyCache error: %v", err)
	}
	if !reflect.DeepEqual(entry, *loaded) {
		t.Fatalf("policy cache mismatch: expected %#v got %#v", entry, loaded)
	}
	if !policyCacheValid(loaded, hash, []string{"a.c"}) {
		t.Fatalf("expected cache to be valid")
	}
	if policyCacheValid(loaded, hash, []string{"a.c", "b.c"}) {
		t.Fatalf("expected cache to be invalid for a different file set")
	}

	cfg.Lint.Rules["unresolved_size"] = "off"
	changed, err := policyConfigHash(cfg, "")
	if err != nil {
		t.Fatalf("policyConfigHash error: %v", err)
	}
	if policyCacheValid(loaded, changed, []string{"a.c"}) {
		t.Fatalf("expected cache to be invalid after config change")
	}

	cfg.Lint.Rules["unresolved_size"] = "error"
	cfg.Graph.MaxDepth = 8
	if deeper, _ := policyConfigHash(cfg, ""); deeper == hash {
		t.Fatalf("expected max_depth to change the hash")
	}
}

func TestPolicyCacheReusedWhenNothingChanged(t *testing.T) {
	dir := t.TempDir()
	copyFixture(t, dir, "problems.c")
	cfg := defaultTestConfig(filepath.Join(dir, ".cache"), true)

	first, err := NewWithConfig(cfg).Analyze(context.Background(), dir)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.PolicyCached {
		t.Fatalf("first run cannot reuse a policy result")
	}

	var count int32
	idx := NewWithConfig(cfg)
	idx.extractorFactory = countingFactory(&count)
	second, err := idx.Analyze(context.Background(), dir)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.PolicyCached || atomic.LoadInt32(&count) != 0 {
		t.Fatalf("expected cached policy result and no extraction, cached=%v extracts=%d", second.PolicyCached, count)
	}
	if !reflect.DeepEqual(first.Report.Violations, second.Report.Violations) {
		t.Fatalf("cached violations differ:\n%+v\n%+v", first.Report.Violations, second.Report.Violations)
	}
}

func TestClearPolicyCache(t *testing.T) {
	dir := t.TempDir()
	entry := policyCacheEntry{
		Version:    policyCacheVersion,
		ConfigHash: "hash",
		Files:      []string{"a.c"},
		Result:     policy.Result{},
	}
	if err := savePolicyCache(dir, entry); err != nil {
		t.Fatalf("savePolicyCache error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "policy_cache.json")); err != nil {
		t.Fatalf("expected cache file to exist: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Analysis.Cache.Dir = dir
	if _, err := ClearPolicyCache(dir, cfg); err != nil {
		t.Fatalf("ClearPolicyCache error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "policy_cache.json")); !os.IsNotExist(err) {
		t.Fatalf("expected cache file to be removed, got err: %v", err)
	}
}

func TestClearCache(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "a.c", "char buf[4];\n")
	cfg := defaultTestConfig(".cache", true)
	runIndexerForTest(t, NewWithConfig(cfg), dir)

	cacheDir, err := ClearCache(dir, cfg)
	if err != nil {
		t.Fatalf("ClearCache error: %v", err)
	}
	if cacheDir != filepath.Join(dir, ".cache") {
		t.Fatalf("unexpected cache dir %s", cacheDir)
	}
	if _, err := os.Stat(cacheDir); !os.IsNotExist(err) {
		t.Fatalf("expected cache dir to be removed, got err: %v", err)
	}
}
