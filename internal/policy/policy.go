package policy

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/robert-at-pretension-io/buffait/internal/facts"
)

//go:embed rules/*.rego
var builtinRules embed.FS

const rulesPackage = "data.buffait.rules"

// Engine evaluates OPA policies against buffer size facts
type Engine struct {
	queries map[string]rego.PreparedEvalQuery
}

// Violation represents a policy violation
type Violation struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Name     string `json:"name,omitempty"`
	Message  string `json:"message"`
}

// Result contains the evaluation results
type Result struct {
	Violations []Violation `json:"violations"`
	Summary    Summary     `json:"summary"`
}

// Summary provides aggregate counts
type Summary struct {
	TotalViolations int `json:"total_violations"`
	Errors          int `json:"errors"`
	Warnings        int `json:"warnings"`
	Info            int `json:"info"`
}

// Input is the data structure passed to OPA: the fact tables, flattened.
type Input struct {
	facts.Tables
}

// Rule describes a built-in rule and its default severity.
type Rule struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Summary  string `json:"summary"`
}

// BuiltinRules lists the rules shipped in rules/*.rego.
var BuiltinRules = []Rule{
	{Name: "unresolved_size", Severity: "warning", Summary: "a buffer's size cannot be reduced to an integer"},
	{Name: "cyclic_size", Severity: "error", Summary: "a buffer's size depends on itself"},
	{Name: "dependency_cycle", Severity: "error", Summary: "the declarations of a file form a dependency cycle"},
	{Name: "depth_exceeded", Severity: "error", Summary: "a buffer's dependency chain is deeper than graph.max_depth"},
	{Name: "non_positive_size", Severity: "error", Summary: "a buffer resolves to zero or a negative size"},
	{Name: "duplicate_declaration", Severity: "warning", Summary: "a name is declared more than once"},
	{Name: "unsupported_negation", Severity: "info", Summary: "a negated symbol was dropped from a size expression"},
}

// New creates a new policy engine from the built-in rules plus every .rego
// file in extraDir. extraDir may be empty. Extra modules must use package
// buffait.rules and add to the violation set.
func New(extraDir string) (*Engine, error) {
	engine := &Engine{
		queries: make(map[string]rego.PreparedEvalQuery),
	}

	var modules []func(*rego.Rego)
	builtin, err := fs.Glob(builtinRules, "rules/*.rego")
	if err != nil {
		return nil, fmt.Errorf("finding built-in rules: %w", err)
	}
	for _, f := range builtin {
		content, err := builtinRules.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		modules = append(modules, rego.Module(f, string(content)))
	}

	if extraDir != "" {
		files, err := filepath.Glob(filepath.Join(extraDir, "*.rego"))
		if err != nil {
			return nil, fmt.Errorf("finding policy files: %w", err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no policy files found in %s", extraDir)
		}
		for _, f := range files {
			content, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", f, err)
			}
			modules = append(modules, rego.Module(f, string(content)))
		}
	}

	for name, path := range map[string]string{
		"violations": rulesPackage + ".all_violations",
		"summary":    rulesPackage + ".summary",
	} {
		opts := append(append([]func(*rego.Rego){}, modules...), rego.Query(path))
		query, err := rego.New(opts...).PrepareForEval(context.Background())
		if err != nil {
			return nil, fmt.Errorf("preparing %s query: %w", name, err)
		}
		engine.queries[name] = query
	}

	return engine, nil
}

// RulesVersion hashes the built-in rules plus the .rego files of extraDir,
// so cached results can be invalidated when any rule changes.
func RulesVersion(extraDir string) (string, error) {
	files, err := fs.Glob(builtinRules, "rules/*.rego")
	if err != nil {
		return "", fmt.Errorf("finding built-in rules: %w", err)
	}
	hasher := sha256.New()
	for _, f := range files {
		content, err := builtinRules.ReadFile(f)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", f, err)
		}
		hasher.Write([]byte(f))
		hasher.Write([]byte{0})
		hasher.Write(content)
		hasher.Write([]byte{0})
	}
	if extraDir != "" {
		extra, err := filepath.Glob(filepath.Join(extraDir, "*.rego"))
		if err != nil {
			return "", fmt.Errorf("finding policy files: %w", err)
		}
		sort.Strings(extra)
		for _, f := range extra {
			content, err := os.ReadFile(f)
			if err != nil {
				return "", fmt.Errorf("reading %s: %w", f, err)
			}
			hasher.Write([]byte(filepath.Base(f)))
			hasher.Write([]byte{0})
			hasher.Write(content)
			hasher.Write([]byte{0})
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Evaluate runs the policies against the input data
func (e *Engine) Evaluate(input Input) (*Result, error) {
	return e.EvaluateContext(context.Background(), input)
}

// EvaluateContext is Evaluate with a caller-supplied context.
func (e *Engine) EvaluateContext(ctx context.Context, input Input) (*Result, error) {
	// Convert input to map for OPA
	inputMap, err := structToMap(input)
	if err != nil {
		return nil, fmt.Errorf("converting input: %w", err)
	}

	result := &Result{Violations: []Violation{}}

	rs, err := e.queries["violations"].Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating violations: %w", err)
	}

	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		violations, ok := rs[0].Expressions[0].Value.([]interface{})
		if ok {
			for _, v := range violations {
				vmap, ok := v.(map[string]interface{})
				if !ok {
					continue
				}
				result.Violations = append(result.Violations, Violation{
					Rule:     getString(vmap, "rule"),
					Severity: getString(vmap, "severity"),
					File:     getString(vmap, "file"),
					Line:     getInt(vmap, "line"),
					Name:     getString(vmap, "name"),
					Message:  getString(vmap, "message"),
				})
			}
		}
	}
	SortViolations(result.Violations)

	rs, err = e.queries["summary"].Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating summary: %w", err)
	}

	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		smap, ok := rs[0].Expressions[0].Value.(map[string]interface{})
		if ok {
			result.Summary = Summary{
				TotalViolations: getInt(smap, "total_violations"),
				Errors:          getInt(smap, "errors"),
				Warnings:        getInt(smap, "warnings"),
				Info:            getInt(smap, "info"),
			}
		}
	}

	return result, nil
}

// ApplyRuleSettings drops violations of rules set to "off", rewrites the
// severity of rules with an override and recomputes the summary.
func ApplyRuleSettings(result *Result, rules map[string]string) {
	if result == nil || len(rules) == 0 {
		return
	}
	kept := result.Violations[:0]
	for _, v := range result.Violations {
		if severity, ok := rules[v.Rule]; ok {
			if severity == "off" {
				continue
			}
			v.Severity = severity
		}
		kept = append(kept, v)
	}
	result.Violations = kept
	result.Summary = Summarize(kept)
}

// Summarize counts violations by severity.
func Summarize(violations []Violation) Summary {
	s := Summary{TotalViolations: len(violations)}
	for _, v := range violations {
		switch v.Severity {
		case "error":
			s.Errors++
		case "warning":
			s.Warnings++
		case "info":
			s.Info++
		}
	}
	return s
}

// SortViolations orders violations by file, line, rule and name.
func SortViolations(violations []Violation) {
	sort.SliceStable(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		return a.Name < b.Name
	})
}

// Helper functions
func structToMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	err = json.Unmarshal(data, &result)
	return result, err
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		case json.Number:
			i, _ := n.Int64()
			return int(i)
		}
	}
	return 0
}
