// =============================================================================
// buffait - Buffer Size Analysis Entry Point
// =============================================================================
//
// buffait statically works out how big the fixed-size buffers of a C program
// are, following #define macros and int declarations through chains of
// symbolic sizes.
//
// THE PIPELINE:
//   1. Source files are split into units (physical lines, or C statements
//      via tree-sitter)
//   2. The extractor matches macro, int and buffer declarations in each unit
//   3. Each file's declarations are linked into a dependency graph
//   4. Every buffer size is resolved, or reported unresolved or cyclic
//   5. CUE validates the fact tables, OPA evaluates the rules over them
//
// WHEN A SIZE LOOKS WRONG:
//   Start at the beginning of the pipeline, not the end!
//   Run buffait-units on the file to see which declarations were matched.
// =============================================================================

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/robert-at-pretension-io/buffait/internal/config"
	"github.com/robert-at-pretension-io/buffait/internal/indexer"
	"github.com/robert-at-pretension-io/buffait/internal/policy"
)

type options struct {
	verbose     bool
	progress    bool
	jsonOutput  bool
	timing      bool
	policyOnly  bool
	configPath  string
	policiesDir string
	args        []string
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printUsage()
		os.Exit(1)
	}
	if len(opts.args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch cmd := opts.args[0]; cmd {
	case "init":
		runInit()
	case "rules":
		runRules()
	case "resolve":
		if len(opts.args) < 2 {
			printUsage()
			os.Exit(1)
		}
		runResolve(opts, opts.args[1], opts.args[2:])
	case "clean-cache":
		path := "."
		if len(opts.args) > 1 {
			path = opts.args[1]
		}
		runCleanCache(opts, path)
	case "help":
		printUsage()
	default:
		runAnalysis(opts, cmd)
	}
}

func parseArgs(argv []string) (options, error) {
	var opts options
	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch arg {
		case "-v", "--verbose":
			opts.verbose = true
		case "-p", "--progress":
			opts.progress = true
		case "--json":
			opts.jsonOutput = true
		case "--timing":
			opts.timing = true
		case "--policy-only":
			opts.policyOnly = true
		case "-h", "--help":
			opts.args = []string{"help"}
			return opts, nil
		case "-c", "--config", "--policies":
			if i+1 >= len(argv) {
				return opts, fmt.Errorf("%s needs a value", arg)
			}
			i++
			if arg == "--policies" {
				opts.policiesDir = argv[i]
			} else {
				opts.configPath = argv[i]
			}
		default:
			if strings.HasPrefix(arg, "-") && arg != "-" {
				return opts, fmt.Errorf("unknown option %s", arg)
			}
			opts.args = append(opts.args, arg)
		}
	}
	return opts, nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: buffait [command] [options] <path>

Commands:
  init                      Create a buffait.json configuration file
  rules                     List the built-in rules and their default severity
  resolve <file> [name...]  Resolve the named buffers (default: all) of one file
  clean-cache [path]        Remove the analysis cache under path
                            (--policy-only keeps extracted facts)
  <path>                    Analyze the C sources in the given file or directory

Options:
  -v, --verbose             Enable verbose output
  -p, --progress            Print one line per extracted file
  -c, --config <file>       Use this config file instead of searching for one
      --json                Print the report as JSON
      --policies <dir>      Evaluate the .rego files in dir next to the built-in rules
      --timing              Write per-stage timing events to timing.jsonl
  -h, --help                Show this help message

Configuration:
  buffait looks for configuration in:
    1. ./buffait.json, ./.buffait.json, ./buffait.yaml, ...
    2. the same names inside <path>
    3. ~/.config/buffait/config.json

  Run 'buffait init' to create a default configuration file.`)
}

func loadConfig(opts options, path string) *config.Config {
	if opts.configPath != "" {
		cfg, err := config.LoadFile(opts.configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config %s: %v\n", opts.configPath, err)
			os.Exit(1)
		}
		return cfg
	}
	cfg, err := config.Load(path)
	if err != nil {
		if !opts.jsonOutput {
			fmt.Printf("Warning: Could not load config: %v (using defaults)\n", err)
		}
		cfg = config.DefaultConfig()
	}
	return cfg
}

func newIndexer(opts options, cfg *config.Config) *indexer.Indexer {
	idx := indexer.NewWithConfig(cfg)
	idx.Verbose = opts.verbose
	idx.Progress = opts.progress
	idx.JSONOutput = opts.jsonOutput
	idx.Timing = opts.timing
	idx.PoliciesDir = opts.policiesDir
	return idx
}

func runInit() {
	configPath := "buffait.json"

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config file %s already exists. Overwrite? [y/N]: ", configPath)
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println("\nEdit this file to configure:")
	fmt.Println("  - Source file patterns")
	fmt.Println("  - Extraction mode (lines or statements)")
	fmt.Println("  - Duplicate declaration policy and resolver depth")
	fmt.Println("  - Lint rule severities")
}

func runRules() {
	for _, r := range policy.BuiltinRules {
		fmt.Printf("%-22s %-8s %s\n", r.Name, r.Severity, r.Summary)
	}
}

func runResolve(opts options, file string, names []string) {
	idx := newIndexer(opts, loadConfig(opts, file))
	sizes, err := idx.ResolveFile(file, names)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, s := range sizes {
		fmt.Println(indexer.FormatBufferSize(s))
	}
}

func runCleanCache(opts options, path string) {
	clearFn := indexer.ClearCache
	if opts.policyOnly {
		clearFn = indexer.ClearPolicyCache
	}
	dir, err := clearFn(path, loadConfig(opts, path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed %s\n", dir)
}

func runAnalysis(opts options, path string) {
	idx := newIndexer(opts, loadConfig(opts, path))
	if err := idx.Run(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
