package policy_test

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"testing"

	"github.com/robert-at-pretension-io/buffait/internal/policy"
)

func TestPolicyRuleManifestsCoverRegoRules(t *testing.T) {
	repoRoot := findRepoRoot(t)
	regoRules := collectRegoPolicyRules(t, repoRoot)

	fixturesDir := filepath.Join(repoRoot, "testdata", "policy_rules")
	manifest := loadManifest(t, filepath.Join(fixturesDir, "manifest.json"))
	negativeManifest := loadManifest(t, filepath.Join(fixturesDir, "manifest_negative.json"))
	ensureManifestParity(t, manifest, negativeManifest)

	var missing []string
	for rule := range regoRules {
		if _, ok := manifest[rule]; !ok {
			missing = append(missing, rule)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		t.Fatalf("policy rules missing from manifests: %v", missing)
	}

	var extra []string
	for rule := range manifest {
		if _, ok := regoRules[rule]; !ok {
			extra = append(extra, rule)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		t.Fatalf("manifests contain rules not found in rego sources: %v", extra)
	}
}

func TestBuiltinRulesMatchRegoSources(t *testing.T) {
	regoRules := collectRegoPolicyRules(t, findRepoRoot(t))

	listed := make(map[string]bool, len(policy.BuiltinRules))
	for _, r := range policy.BuiltinRules {
		listed[r.Name] = true
		if _, ok := regoRules[r.Name]; !ok {
			t.Fatalf("BuiltinRules lists %q, which no rego file defines", r.Name)
		}
	}
	for rule := range regoRules {
		if !listed[rule] {
			t.Fatalf("rego rule %q is missing from BuiltinRules", rule)
		}
	}
}

func ensureManifestParity(t *testing.T, positive, negative ruleManifest) {
	t.Helper()
	for rule := range positive {
		if _, ok := negative[rule]; !ok {
			t.Fatalf("rule %q has a positive fixture but no negative one", rule)
		}
	}
	for rule := range negative {
		if _, ok := positive[rule]; !ok {
			t.Fatalf("rule %q has a negative fixture but no positive one", rule)
		}
	}
}

func collectRegoPolicyRules(t *testing.T, repoRoot string) map[string]struct{} {
	t.Helper()
	root := filepath.Join(repoRoot, "internal", "policy", "rules")
	re := regexp.MustCompile(`"rule":\s*"([a-z0-9_]+)"`)
	rules := make(map[string]struct{})

	files, err := filepath.Glob(filepath.Join(root, "*.rego"))
	if err != nil {
		t.Fatalf("scan policy sources: %v", err)
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		for _, match := range re.FindAllStringSubmatch(string(data), -1) {
			rules[match[1]] = struct{}{}
		}
	}
	if len(rules) == 0 {
		t.Fatalf("no policy rules found in rego sources under %s", root)
	}
	return rules
}
