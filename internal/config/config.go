package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/robert-at-pretension-io/buffait/internal/extractor"
	"github.com/robert-at-pretension-io/buffait/internal/graph"
)

// Config is the top-level configuration for buffait
type Config struct {
	// Sources selects the files to analyze
	Sources SourcesConfig `json:"sources" yaml:"sources"`

	// Extraction controls how files are split into declaration units
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction"`

	// Graph controls registry and resolver behavior
	Graph GraphConfig `json:"graph" yaml:"graph"`

	// Lint contains rule configuration
	Lint LintConfig `json:"lint" yaml:"lint"`

	// Analysis contains analysis options
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`
}

// SourcesConfig lists the source files of a project
type SourcesConfig struct {
	// Files is a list of glob patterns (** allowed) relative to the root
	Files []string `json:"files" yaml:"files"`

	// Exclude is a list of glob patterns removed from Files
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
}

// ExtractionConfig selects the extraction mode
type ExtractionConfig struct {
	// Mode is "lines" (one unit per physical line) or "statements"
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`
}

// GraphConfig controls the dependency graph
type GraphConfig struct {
	// Duplicates is "overwrite" (last declaration wins) or "reject"
	Duplicates string `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`

	// MaxDepth bounds dependency chains during resolution (0 = default)
	MaxDepth int `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`
}

// LintConfig contains linting configuration
type LintConfig struct {
	// Rules maps rule names to severity: "off", "info", "warning", "error"
	Rules map[string]string `json:"rules,omitempty" yaml:"rules,omitempty"`

	// IgnorePatterns is a list of file patterns to skip entirely
	IgnorePatterns []string `json:"ignore_patterns,omitempty" yaml:"ignore_patterns,omitempty"`
}

// CacheConfig controls incremental indexing cache behavior
type CacheConfig struct {
	// Enabled turns on incremental cache usage
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// Dir is the cache directory (relative to project root if not absolute)
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// AnalysisConfig contains analysis options
type AnalysisConfig struct {
	// MaxParallelFiles limits concurrent file processing (0 = auto)
	MaxParallelFiles int `json:"max_parallel_files,omitempty" yaml:"max_parallel_files,omitempty"`

	// Cache controls incremental indexing cache behavior
	Cache CacheConfig `json:"cache" yaml:"cache"`
}

const defaultCacheDir = ".buffait_cache"

var defaultSourcePatterns = []string{"*.c", "*.h", "**/*.c", "**/*.h"}

var severities = map[string]bool{"off": true, "info": true, "warning": true, "error": true}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Sources: SourcesConfig{
			Files:   append([]string(nil), defaultSourcePatterns...),
			Exclude: []string{},
		},
		Extraction: ExtractionConfig{
			Mode: string(extractor.ModeLines),
		},
		Graph: GraphConfig{
			Duplicates: graph.DuplicateOverwrite.String(),
			MaxDepth:   graph.DefaultMaxDepth,
		},
		Lint: LintConfig{
			Rules:          map[string]string{},
			IgnorePatterns: []string{},
		},
		Analysis: AnalysisConfig{
			MaxParallelFiles: 0, // auto
			Cache: CacheConfig{
				Enabled: boolPtr(true),
				Dir:     defaultCacheDir,
			},
		},
	}
}

func boolPtr(v bool) *bool {
	return &v
}

// configNames are the file names looked for in each search directory
var configNames = []string{"buffait.json", ".buffait.json", "buffait.yaml", "buffait.yml", ".buffait.yaml", ".buffait.yml"}

// Load finds and loads the configuration file
// Search order:
//  1. ./buffait.{json,yaml,yml} and the dot-file variants (current working directory)
//  2. the same names under <rootPath> (if different from cwd)
//  3. ~/.config/buffait/config.json
//
// Returns DefaultConfig if no config file is found
func Load(rootPath string) (*Config, error) {
	cwd, _ := os.Getwd()

	var searchPaths []string
	for _, name := range configNames {
		searchPaths = append(searchPaths, filepath.Join(cwd, name))
	}

	if info, err := os.Stat(rootPath); err == nil && info.IsDir() {
		absRoot, _ := filepath.Abs(rootPath)
		if absRoot != cwd {
			for _, name := range configNames {
				searchPaths = append(searchPaths, filepath.Join(rootPath, name))
			}
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "buffait", "config.json"))
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}

	return DefaultConfig(), nil
}

// LoadFile loads configuration from a specific file. Files ending in
// .yaml or .yml are decoded as YAML, everything else as JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// applyDefaults fills in missing configuration with defaults
func (c *Config) applyDefaults() {
	if len(c.Sources.Files) == 0 {
		c.Sources.Files = append([]string(nil), defaultSourcePatterns...)
	}
	if c.Extraction.Mode == "" {
		c.Extraction.Mode = string(extractor.ModeLines)
	}
	if c.Graph.Duplicates == "" {
		c.Graph.Duplicates = graph.DuplicateOverwrite.String()
	}
	if c.Graph.MaxDepth == 0 {
		c.Graph.MaxDepth = graph.DefaultMaxDepth
	}
	if c.Lint.Rules == nil {
		c.Lint.Rules = make(map[string]string)
	}
	if c.Analysis.Cache.Dir == "" {
		c.Analysis.Cache.Dir = defaultCacheDir
	}
	if c.Analysis.Cache.Enabled == nil {
		c.Analysis.Cache.Enabled = boolPtr(true)
	}
}

// Validate rejects values the analysis cannot act on.
func (c *Config) Validate() error {
	if _, err := extractor.ParseMode(c.Extraction.Mode); err != nil {
		return err
	}
	if _, err := graph.ParseDuplicatePolicy(c.Graph.Duplicates); err != nil {
		return err
	}
	if c.Graph.MaxDepth < 0 {
		return fmt.Errorf("graph.max_depth must not be negative, got %d", c.Graph.MaxDepth)
	}
	if c.Analysis.MaxParallelFiles < 0 {
		return fmt.Errorf("analysis.max_parallel_files must not be negative, got %d", c.Analysis.MaxParallelFiles)
	}
	for _, patterns := range [][]string{c.Sources.Files, c.Sources.Exclude, c.Lint.IgnorePatterns} {
		if _, err := compileGlobs(patterns); err != nil {
			return err
		}
	}
	for rule, severity := range c.Lint.Rules {
		if !severities[severity] {
			return fmt.Errorf("lint.rules.%s: unknown severity %q (want off, info, warning or error)", rule, severity)
		}
	}
	return nil
}

// Save writes the configuration to a file, as YAML when path ends in
// .yaml or .yml and as indented JSON otherwise.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ExtractionMode returns the configured extraction mode, defaulting to lines.
func (c *Config) ExtractionMode() extractor.Mode {
	mode, err := extractor.ParseMode(c.Extraction.Mode)
	if err != nil {
		return extractor.ModeLines
	}
	return mode
}

// GraphOptions translates the graph section into registry options.
func (c *Config) GraphOptions() []graph.Option {
	policy, err := graph.ParseDuplicatePolicy(c.Graph.Duplicates)
	if err != nil {
		policy = graph.DuplicateOverwrite
	}
	return []graph.Option{
		graph.WithDuplicatePolicy(policy),
		graph.WithMaxDepth(c.Graph.MaxDepth),
	}
}

// CacheEnabled reports whether incremental caching is on.
func (c *Config) CacheEnabled() bool {
	return c.Analysis.Cache.Enabled == nil || *c.Analysis.Cache.Enabled
}

// GetRuleSeverity returns the severity for a rule, or the default if not configured
func (c *Config) GetRuleSeverity(rule string, defaultSeverity string) string {
	if severity, ok := c.Lint.Rules[rule]; ok {
		return severity
	}
	return defaultSeverity
}

// IsRuleEnabled returns true if the rule is not set to "off"
func (c *Config) IsRuleEnabled(rule string) bool {
	if severity, ok := c.Lint.Rules[rule]; ok {
		return severity != "off"
	}
	return true // enabled by default
}

// ShouldIgnoreFile reports whether filePath, or its base name, matches one of
// lint.ignore_patterns. Malformed patterns match nothing.
func (c *Config) ShouldIgnoreFile(filePath string) bool {
	slashed := filepath.ToSlash(filePath)
	base := filepath.Base(filePath)
	for _, pattern := range c.Lint.IgnorePatterns {
		g, err := glob.Compile(filepath.ToSlash(pattern), '/')
		if err != nil {
			continue
		}
		if g.Match(slashed) || g.Match(base) {
			return true
		}
	}
	return false
}
