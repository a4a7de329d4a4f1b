package policy_test

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/robert-at-pretension-io/buffait/internal/config"
	"github.com/robert-at-pretension-io/buffait/internal/indexer"
)

type ruleManifest map[string]string

// fixtureMaxDepth keeps the depth fixtures small.
const fixtureMaxDepth = 16

func TestPolicyRuleFixtures(t *testing.T) {
	repoRoot := findRepoRoot(t)
	fixturesDir := filepath.Join(repoRoot, "testdata", "policy_rules")
	manifest := loadManifest(t, filepath.Join(fixturesDir, "manifest.json"))

	byFile := map[string][]string{}
	for rule, file := range manifest {
		byFile[file] = append(byFile[file], rule)
	}

	for relFile, rules := range byFile {
		t.Run(relFile, func(t *testing.T) {
			report := lintFile(t, filepath.Join(fixturesDir, relFile))
			for _, rule := range rules {
				if !hasRule(report, rule) {
					t.Fatalf("expected rule %q for %s; got rules: %v", rule, relFile, collectRules(report))
				}
			}
		})
	}
}

func TestPolicyRuleNegativeFixtures(t *testing.T) {
	repoRoot := findRepoRoot(t)
	fixturesDir := filepath.Join(repoRoot, "testdata", "policy_rules")
	manifest := loadManifest(t, filepath.Join(fixturesDir, "manifest_negative.json"))

	byFile := map[string][]string{}
	for rule, file := range manifest {
		byFile[file] = append(byFile[file], rule)
	}

	for relFile, rules := range byFile {
		t.Run(relFile, func(t *testing.T) {
			report := lintFile(t, filepath.Join(fixturesDir, relFile))
			for _, rule := range rules {
				if hasRule(report, rule) {
					t.Fatalf("rule %q must not fire for %s; got rules: %v", rule, relFile, collectRules(report))
				}
			}
			for _, b := range report.Buffers {
				if b.Status != "resolved" {
					t.Fatalf("expected every buffer of %s to resolve, got %+v", relFile, b)
				}
			}
		})
	}
}

func loadManifest(t *testing.T, path string) ruleManifest {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}

	var manifest ruleManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	return manifest
}

func lintFile(t *testing.T, filePath string) indexer.Report {
	t.Helper()
	absFile, err := filepath.Abs(filePath)
	if err != nil {
		t.Fatalf("abs path: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Lint.Rules = map[string]string{}
	cfg.Graph.MaxDepth = fixtureMaxDepth
	disabled := false
	cfg.Analysis.Cache.Enabled = &disabled

	idx := indexer.NewWithConfig(cfg)
	idx.JSONOutput = true

	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe stdout: %v", err)
	}
	oldStdout := os.Stdout
	os.Stdout = writer

	runErr := idx.Run(absFile)
	_ = writer.Close()
	os.Stdout = oldStdout

	if runErr != nil {
		t.Fatalf("analysis failed: %v", runErr)
	}

	output, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	var report indexer.Report
	if err := json.Unmarshal(output, &report); err != nil {
		t.Fatalf("parse report: %v", err)
	}
	return report
}

func hasRule(report indexer.Report, rule string) bool {
	for _, v := range report.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

func collectRules(report indexer.Report) []string {
	rules := make([]string, 0, len(report.Violations))
	for _, v := range report.Violations {
		rules = append(rules, v.Rule)
	}
	return rules
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	dir := start
	for {
		candidate := filepath.Join(dir, "testdata", "policy_rules", "manifest.json")
		if _, err := os.Stat(candidate); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("repo root not found from %s", start)
		}
		dir = parent
	}
}
