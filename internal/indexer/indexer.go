package indexer

// =============================================================================
// INDEXER PHILOSOPHY: TRUST THE EXTRACTOR, VALIDATE WITH CUE
// =============================================================================
//
// The indexer sits between extraction and policy evaluation. Its job is to:
// 1. Find the source files of a project and extract their declarations
// 2. Build one registry per file and link it (each file is its own unit)
// 3. Resolve every buffer size and flatten the graphs into fact tables
// 4. Hand the tables to the rego rules and assemble the report
//
// IMPORTANT: The indexer should NOT work around extraction bugs!
//
// If a size resolves wrongly, the fix belongs in the extractor's grammars or
// in the graph package, never in a special case here. The CUE validator
// (internal/validator) catches rows that drift from what the rules expect.
// If validation fails, fix the producer, don't suppress the error.
// =============================================================================

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robert-at-pretension-io/buffait/internal/config"
	"github.com/robert-at-pretension-io/buffait/internal/extractor"
	"github.com/robert-at-pretension-io/buffait/internal/facts"
	"github.com/robert-at-pretension-io/buffait/internal/graph"
	"github.com/robert-at-pretension-io/buffait/internal/policy"
	"github.com/robert-at-pretension-io/buffait/internal/validator"
)

// Indexer runs the analysis pipeline over a file or directory.
type Indexer struct {
	// Configuration loaded from buffait.json / buffait.yaml
	Config *config.Config

	// PoliciesDir holds extra .rego files evaluated next to the built-in rules
	PoliciesDir string

	// Verbose output
	Verbose bool

	// Progress output (one line per file)
	Progress bool

	// JSON output mode
	JSONOutput bool

	// Timing output (JSONL)
	Timing     bool
	TimingPath string

	// Optional extractor factory (for tests)
	extractorFactory func(mode extractor.Mode) FactsExtractor

	// Optional cache version override (for tests)
	cacheVersionOverride *cacheVersions
}

// Report is the structured result of an analysis run. It is printed with
// --json and must satisfy the #Report definition of the CUE schema, so
// every slice is non-nil.
type Report struct {
	Files       []string           `json:"files"`
	Buffers     []BufferSize       `json:"buffers"`
	Violations  []policy.Violation `json:"violations"`
	Summary     policy.Summary     `json:"summary"`
	Stats       Stats              `json:"stats"`
	ParseErrors []ParseError       `json:"parse_errors"`
}

// BufferSize is the resolution outcome of one buffer declaration.
type BufferSize struct {
	Name   string `json:"name"`
	File   string `json:"file"`
	Line   int    `json:"line"`
	Size   string `json:"size"`
	Status string `json:"status"`
	Value  int64  `json:"value"`
	Detail string `json:"detail,omitempty"`
}

// Stats provides counts of extracted and resolved elements
type Stats struct {
	Files      int `json:"files"`
	Units      int `json:"units"`
	Nodes      int `json:"nodes"`
	Buffers    int `json:"buffers"`
	Integers   int `json:"integers"`
	Resolved   int `json:"resolved"`
	Unresolved int `json:"unresolved"`
	CacheHits  int `json:"cache_hits"`
}

// ParseError represents a file that could not be read or parsed
type ParseError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Analysis is everything one run produced: the report plus the intermediate
// state the verbose output and the fact exporter need.
type Analysis struct {
	Report *Report
	Tables facts.Tables
	Units  []facts.Unit

	// Delta against the fact tables of the previous run, nil without cache.
	Delta *facts.Delta

	// ChangedFiles were extracted rather than served from cache.
	ChangedFiles []string

	// PolicyCached is set when the policy result was reused.
	PolicyCached bool

	// PipelineErrors are soft failures (cache, timing) that did not stop
	// the analysis.
	PipelineErrors []error

	stages []stageDuration
}

type stageDuration struct {
	name     string
	duration time.Duration
	status   string
}

// FactsExtractor abstracts extraction for caching tests
type FactsExtractor interface {
	Extract(path string) (extractor.FileFacts, error)
}

// New creates a new Indexer with default configuration
func New() *Indexer {
	return &Indexer{
		Config: config.DefaultConfig(),
	}
}

// NewWithConfig creates a new Indexer with the given configuration
func NewWithConfig(cfg *config.Config) *Indexer {
	idx := New()
	idx.Config = cfg
	return idx
}

func (idx *Indexer) newExtractor() FactsExtractor {
	mode := idx.Config.ExtractionMode()
	if idx.extractorFactory != nil {
		return idx.extractorFactory(mode)
	}
	return extractor.NewWithMode(mode)
}

func (idx *Indexer) cacheVersions() cacheVersions {
	if idx.cacheVersionOverride != nil {
		return *idx.cacheVersionOverride
	}
	return computeCacheVersions()
}

func (idx *Indexer) parallelism() int {
	if n := idx.Config.Analysis.MaxParallelFiles; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Run analyses rootPath and prints the report to stdout, as text or JSON.
func (idx *Indexer) Run(rootPath string) error {
	runStart := time.Now()
	timing := newTimingRecorder(runStart, idx.resolveTimingPath(rootPath))
	defer timing.Close()

	analysis, err := idx.analyze(context.Background(), rootPath, timing, !idx.JSONOutput)
	if err != nil {
		return err
	}
	if err := timing.Err(); err != nil {
		analysis.PipelineErrors = append(analysis.PipelineErrors, fmt.Errorf("timing output disabled: %w", err))
	}

	stepStart := time.Now()
	if idx.JSONOutput {
		if err := idx.writeJSON(analysis.Report); err != nil {
			return err
		}
	} else {
		idx.printText(analysis)
	}
	timing.RecordStage("output", stepStart, time.Since(stepStart), "")

	if idx.Verbose && !idx.JSONOutput {
		analysis.stages = append(analysis.stages, stageDuration{name: "total", duration: time.Since(runStart)})
		printTimingSummary(analysis.stages)
	}
	timing.RecordStage("total", runStart, time.Since(runStart), "")

	if len(analysis.PipelineErrors) > 0 {
		return fmt.Errorf("pipeline errors:\n%s", formatPipelineErrors(analysis.PipelineErrors))
	}
	return nil
}

// Analyze runs the pipeline without printing anything.
func (idx *Indexer) Analyze(ctx context.Context, rootPath string) (*Analysis, error) {
	timing := newTimingRecorder(time.Now(), "")
	return idx.analyze(ctx, rootPath, timing, false)
}

func (idx *Indexer) analyze(ctx context.Context, rootPath string, timing *timingRecorder, printing bool) (*Analysis, error) {
	analysis := &Analysis{}
	record := func(name string, start time.Time, status string) {
		d := time.Since(start)
		analysis.stages = append(analysis.stages, stageDuration{name: name, duration: d, status: status})
		timing.RecordStage(name, start, d, status)
	}

	// 0. Load configuration if not already loaded
	if idx.Config == nil {
		cfg, err := config.Load(rootPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		idx.Config = cfg
	}

	// 1. Find all source files
	stepStart := time.Now()
	files, err := idx.findSourceFiles(rootPath)
	if err != nil {
		return nil, fmt.Errorf("scanning files: %w", err)
	}
	if printing {
		fmt.Printf("Found %d source files\n", len(files))
	}
	record("scan", stepStart, "")

	// 2. Parallel extraction (with optional cache)
	stepStart = time.Now()
	var cache *factsCache
	var cacheDir string
	if cacheEnabled(idx.Config) {
		cacheDir = resolveCacheDir(rootPath, idx.Config)
		versions := idx.cacheVersions()
		cache = newFactsCache(cacheDir, versions.parser, versions.extractor)
		if err := cache.Load(); err != nil {
			analysis.PipelineErrors = append(analysis.PipelineErrors, fmt.Errorf("cache disabled: %w", err))
			cache = nil
		}
	}
	extracted := idx.extractAll(ctx, files, cache, timing, printing && (idx.Verbose || idx.Progress))
	analysis.PipelineErrors = append(analysis.PipelineErrors, extracted.pipelineErrs...)
	analysis.ChangedFiles = extracted.changed
	if cache != nil {
		if err := cache.Save(); err != nil {
			analysis.PipelineErrors = append(analysis.PipelineErrors, fmt.Errorf("cache save failed: %w", err))
		}
	}
	record("extract", stepStart, "")

	// 3. One registry per file: add, link, detect cycles
	stepStart = time.Now()
	opts := idx.Config.GraphOptions()
	for _, ff := range extracted.facts {
		analysis.Units = append(analysis.Units, facts.Unit{
			Facts:    ff,
			Registry: graph.Build(ff.Nodes, opts...),
		})
	}
	record("build", stepStart, "")

	// 4. Resolve and flatten into fact tables, then enforce the contract
	stepStart = time.Now()
	analysis.Tables = facts.BuildTables(analysis.Units)
	factsValidator, err := validator.NewFactsValidator()
	if err != nil {
		return nil, fmt.Errorf("CRITICAL: Failed to initialize facts validator: %w", err)
	}
	if err := factsValidator.Validate(analysis.Tables); err != nil {
		return nil, fmt.Errorf("CRITICAL: Fact table contract violation: %w", err)
	}
	input := policy.Input{Tables: analysis.Tables}
	v, err := validator.New()
	if err != nil {
		return nil, fmt.Errorf("CRITICAL: Failed to initialize CUE validator: %w", err)
	}
	if err := v.Validate(input); err != nil {
		return nil, fmt.Errorf("CRITICAL: Data contract violation (Go -> policy engine mismatch): %w", err)
	}
	record("resolve", stepStart, "")

	inRun := make(map[string]bool, len(files))
	for _, f := range files {
		inRun[f] = true
	}
	var prevTables facts.Tables
	if cache != nil {
		prev, ok, err := loadFactTablesCache(cacheDir, idx.Config.ExtractionMode())
		if err != nil {
			analysis.PipelineErrors = append(analysis.PipelineErrors, fmt.Errorf("fact tables cache load failed: %w", err))
		} else if ok {
			prevTables = prev
			// Rows of files outside this run are not removals.
			delta := facts.FilterDeltaByFiles(facts.ComputeDelta(prev, analysis.Tables), inRun)
			analysis.Delta = &delta
		}
	}

	// 5. Policy evaluation, reusing the last result when nothing changed
	stepStart = time.Now()
	result, cached, errs := idx.evaluatePolicies(ctx, input, cacheDir, cache != nil, len(extracted.changed) > 0)
	if result == nil {
		return nil, errs[0]
	}
	analysis.PipelineErrors = append(analysis.PipelineErrors, errs...)
	analysis.PolicyCached = cached
	status := ""
	if cached {
		status = "cached"
	}
	record("policy", stepStart, status)

	if cache != nil {
		if err := saveFactTablesCache(cacheDir, idx.Config.ExtractionMode(), prevTables, analysis.Tables, inRun); err != nil {
			analysis.PipelineErrors = append(analysis.PipelineErrors, fmt.Errorf("fact tables cache save failed: %w", err))
		}
	}

	analysis.Report = buildReport(files, analysis, result, extracted)
	return analysis, nil
}

// findSourceFiles returns the configured sources under rootPath, or rootPath
// itself when it names a single file.
func (idx *Indexer) findSourceFiles(rootPath string) ([]string, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if idx.Config.ShouldIgnoreFile(rootPath) {
			return []string{}, nil
		}
		return []string{rootPath}, nil
	}
	return idx.Config.ResolveSources(rootPath)
}

type extraction struct {
	facts        []extractor.FileFacts
	parseErrors  []ParseError
	changed      []string
	cacheHits    int
	pipelineErrs []error
}

// extractAll extracts every file concurrently. At most parallelism() files
// are in flight; each goroutine owns its result until it is collected.
func (idx *Indexer) extractAll(ctx context.Context, files []string, cache *factsCache, timing *timingRecorder, progressEnabled bool) extraction {
	ext := idx.newExtractor()
	mode := idx.Config.ExtractionMode()

	type fileResult struct {
		facts    extractor.FileFacts
		err      error
		cacheHit bool
		cacheErr []error
	}
	results := make([]fileResult, len(files))
	sem := make(chan struct{}, idx.parallelism())

	var wg sync.WaitGroup
	var progressMu sync.Mutex
	progress := 0
	if progressEnabled {
		fmt.Printf("\n=== Extraction Progress ===\n")
	}

	for i, file := range files {
		if ctx.Err() != nil {
			results[i].err = ctx.Err()
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, f string) {
			defer wg.Done()
			defer func() { <-sem }()
			fileStart := time.Now()
			res := &results[i]

			var contentHash string
			if cache != nil {
				h, err := hashFile(f)
				if err != nil {
					res.err = err
					return
				}
				contentHash = h
				cachedFacts, ok, err := cache.Get(f, contentHash, mode)
				if err != nil {
					res.cacheErr = append(res.cacheErr, fmt.Errorf("cache read failed for %s: %w", f, err))
				} else if ok {
					res.facts = cachedFacts
					res.cacheHit = true
					d := time.Since(fileStart)
					timing.RecordFile(f, "cache_hit", len(cachedFacts.Units), len(cachedFacts.Nodes), fileStart, d)
					if progressEnabled {
						emitProgress(&progressMu, &progress, len(files), cachedFacts, "cache hit", d)
					}
					return
				}
			}

			ff, err := ext.Extract(f)
			if err != nil {
				res.err = err
				return
			}
			res.facts = ff
			if cache != nil && contentHash != "" {
				if err := cache.Put(f, contentHash, ff); err != nil {
					res.cacheErr = append(res.cacheErr, fmt.Errorf("cache write failed for %s: %w", f, err))
				}
			}
			d := time.Since(fileStart)
			timing.RecordFile(f, "extracted", len(ff.Units), len(ff.Nodes), fileStart, d)
			if progressEnabled {
				emitProgress(&progressMu, &progress, len(files), ff, "extracted", d)
			}
		}(i, file)
	}
	wg.Wait()

	out := extraction{
		facts:       []extractor.FileFacts{},
		parseErrors: []ParseError{},
		changed:     []string{},
	}
	for i, res := range results {
		out.pipelineErrs = append(out.pipelineErrs, res.cacheErr...)
		if res.err != nil {
			out.parseErrors = append(out.parseErrors, ParseError{File: files[i], Error: res.err.Error()})
			continue
		}
		if res.cacheHit {
			out.cacheHits++
		} else {
			out.changed = append(out.changed, files[i])
		}
		out.facts = append(out.facts, res.facts)
	}
	return out
}

func (idx *Indexer) evaluatePolicies(ctx context.Context, input policy.Input, cacheDir string, useCache, changed bool) (*policy.Result, bool, []error) {
	var errs []error
	files := sortedFactFiles(input.Tables)

	hash := ""
	if useCache {
		h, err := policyConfigHash(idx.Config, idx.PoliciesDir)
		if err != nil {
			errs = append(errs, fmt.Errorf("policy cache disabled: %w", err))
		} else {
			hash = h
		}
	}
	if hash != "" && !changed {
		entry, err := loadPolicyCache(cacheDir)
		if err != nil {
			errs = append(errs, fmt.Errorf("policy cache load failed: %w", err))
		} else if policyCacheValid(entry, hash, files) {
			result := entry.Result
			if result.Violations == nil {
				result.Violations = []policy.Violation{}
			}
			return &result, true, errs
		}
	}

	engine, err := policy.New(idx.PoliciesDir)
	if err != nil {
		return nil, false, []error{fmt.Errorf("initialize policy engine: %w", err)}
	}
	result, err := engine.EvaluateContext(ctx, input)
	if err != nil {
		return nil, false, []error{fmt.Errorf("policy evaluation failed: %w", err)}
	}
	policy.ApplyRuleSettings(result, idx.Config.Lint.Rules)

	if hash != "" {
		if err := savePolicyCache(cacheDir, policyCacheEntry{
			Version:    policyCacheVersion,
			ConfigHash: hash,
			Files:      files,
			Result:     *result,
		}); err != nil {
			errs = append(errs, fmt.Errorf("policy cache save failed: %w", err))
		}
	}
	return result, false, errs
}

func buildReport(files []string, analysis *Analysis, result *policy.Result, extracted extraction) *Report {
	report := &Report{
		Files:       append([]string{}, files...),
		Buffers:     bufferSizes(analysis.Tables),
		Violations:  result.Violations,
		Summary:     result.Summary,
		ParseErrors: extracted.parseErrors,
		Stats: Stats{
			Files:     len(files),
			Integers:  len(analysis.Tables.Integers),
			CacheHits: extracted.cacheHits,
		},
	}
	for _, ff := range extracted.facts {
		report.Stats.Units += len(ff.Units)
		report.Stats.Nodes += len(ff.Nodes)
	}
	report.Stats.Buffers = len(report.Buffers)
	for _, b := range report.Buffers {
		if b.Status == facts.StatusResolved {
			report.Stats.Resolved++
		} else {
			report.Stats.Unresolved++
		}
	}
	return report
}

// bufferSizes joins the buffer rows with their resolutions.
func bufferSizes(tables facts.Tables) []BufferSize {
	type key struct {
		file string
		name string
	}
	sizes := make(map[key]string, len(tables.Buffers))
	for _, b := range tables.Buffers {
		sizes[key{b.File, b.Name}] = b.Size
	}

	out := []BufferSize{}
	for _, r := range tables.Resolutions {
		if r.Kind != graph.KindBuffer.String() {
			continue
		}
		out = append(out, BufferSize{
			Name:   r.Name,
			File:   r.File,
			Line:   r.Line,
			Size:   sizes[key{r.File, r.Name}],
			Status: r.Status,
			Value:  r.Value,
			Detail: r.Detail,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func sortedFactFiles(tables facts.Tables) []string {
	files := make([]string, 0, len(tables.Files))
	for _, file := range tables.Files {
		files = append(files, file.Path)
	}
	sort.Strings(files)
	return files
}

func (idx *Indexer) writeJSON(report *Report) error {
	out, err := validator.NewOutputValidator()
	if err != nil {
		return fmt.Errorf("CRITICAL: Failed to initialize output validator: %w", err)
	}
	if err := out.Validate(report); err != nil {
		return fmt.Errorf("CRITICAL: Report contract violation: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}

func formatPipelineErrors(errs []error) string {
	var b strings.Builder
	for i, err := range errs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(err.Error())
	}
	return b.String()
}
