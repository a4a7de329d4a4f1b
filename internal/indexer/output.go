package indexer

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robert-at-pretension-io/buffait/internal/extractor"
	"github.com/robert-at-pretension-io/buffait/internal/facts"
	"github.com/robert-at-pretension-io/buffait/internal/graph"
)

func (idx *Indexer) printText(analysis *Analysis) {
	report := analysis.Report

	if idx.Verbose {
		printNodes(analysis.Units)
		printImpact(analysis)
		printChanges(analysis.Delta)
	}

	fmt.Printf("\n=== Buffer Sizes ===\n")
	for _, b := range report.Buffers {
		fmt.Printf("  %s\n", FormatBufferSize(b))
	}

	if len(report.Violations) > 0 {
		fmt.Printf("\n=== Policy Violations ===\n")
		for _, v := range report.Violations {
			icon := "ℹ"
			if v.Severity == "error" {
				icon = "✗"
			} else if v.Severity == "warning" {
				icon = "⚠"
			}
			fmt.Printf("%s [%s] %s:%d - %s\n", icon, v.Rule, v.File, v.Line, v.Message)
		}
	}

	fmt.Printf("\n=== Policy Summary ===\n")
	fmt.Printf("  Errors:   %d\n", report.Summary.Errors)
	fmt.Printf("  Warnings: %d\n", report.Summary.Warnings)
	fmt.Printf("  Info:     %d\n", report.Summary.Info)

	fmt.Printf("\n=== Extraction Summary ===\n")
	fmt.Printf("  Files:      %d\n", report.Stats.Files)
	fmt.Printf("  Units:      %d\n", report.Stats.Units)
	fmt.Printf("  Nodes:      %d\n", report.Stats.Nodes)
	fmt.Printf("  Buffers:    %d (%d resolved, %d unresolved)\n", report.Stats.Buffers, report.Stats.Resolved, report.Stats.Unresolved)
	fmt.Printf("  Integers:   %d\n", report.Stats.Integers)
	if report.Stats.CacheHits > 0 {
		fmt.Printf("  Cache hits: %d\n", report.Stats.CacheHits)
	}

	if len(report.ParseErrors) > 0 {
		fmt.Printf("\n=== Parse Errors ===\n")
		for _, e := range report.ParseErrors {
			fmt.Printf("  %s: %s\n", e.File, e.Error)
		}
	}
}

// FormatBufferSize renders one buffer as "file:line name[size] = value" or
// with the reason it has no value.
func FormatBufferSize(b BufferSize) string {
	decl := fmt.Sprintf("%s:%d %s[%s]", b.File, b.Line, b.Name, b.Size)
	if b.Status == facts.StatusResolved {
		return fmt.Sprintf("%s = %d", decl, b.Value)
	}
	if b.Detail != "" {
		return fmt.Sprintf("%s %s (%s)", decl, b.Status, b.Detail)
	}
	return fmt.Sprintf("%s %s", decl, b.Status)
}

func printNodes(units []facts.Unit) {
	fmt.Printf("\n=== Verbose: Extracted Nodes ===\n")
	for _, u := range units {
		if len(u.Facts.Nodes) == 0 {
			continue
		}
		fmt.Printf("  %s (%s, %d units)\n", u.Facts.File, u.Facts.Mode, len(u.Facts.Units))
		for _, n := range u.Facts.Nodes {
			op := n.Operand()
			fmt.Printf("    line %d: %s %s = %q (%s)\n", n.Line, n.Kind, n.Name, n.Text, op.Kind)
			if len(n.Dropped) > 0 {
				fmt.Printf("      dropped: %s\n", strings.Join(n.Dropped, ", "))
			}
		}
	}
}

// printImpact shows which declarations depend on each integer of the files
// that changed in this run (every file when there is no cache).
func printImpact(analysis *Analysis) {
	changed := make(map[string]bool, len(analysis.ChangedFiles))
	for _, f := range analysis.ChangedFiles {
		changed[f] = true
	}

	var b strings.Builder
	for _, u := range analysis.Units {
		if len(changed) > 0 && !changed[u.Facts.File] {
			continue
		}
		reg := u.Registry
		dependents := reg.Dependents()
		var roots []string
		for _, n := range reg.Integers() {
			if len(dependents[n.ID]) > 0 {
				roots = append(roots, n.Name)
			}
		}
		if len(roots) == 0 {
			continue
		}
		sort.Strings(roots)
		b.WriteString(fmt.Sprintf("  %s\n", u.Facts.File))
		for _, name := range roots {
			report, err := reg.Impact(name)
			if err != nil {
				continue
			}
			for _, line := range strings.Split(strings.TrimRight(graph.FormatImpact(report), "\n"), "\n") {
				b.WriteString("  " + line + "\n")
			}
		}
	}
	if b.Len() == 0 {
		return
	}
	fmt.Printf("\n=== Verbose: Size Impact ===\n")
	fmt.Print(b.String())
}

func printChanges(delta *facts.Delta) {
	if delta == nil {
		return
	}
	fmt.Printf("\n=== Verbose: Changes Since Last Run ===\n")
	if delta.Empty() {
		fmt.Printf("  no changes\n")
		return
	}
	for _, r := range delta.Removed.Resolutions {
		fmt.Printf("  - %s:%d %s %s %s\n", r.File, r.Line, r.Kind, r.Name, describeResolution(r))
	}
	for _, r := range delta.Added.Resolutions {
		fmt.Printf("  + %s:%d %s %s %s\n", r.File, r.Line, r.Kind, r.Name, describeResolution(r))
	}
	for _, d := range delta.Removed.Diagnostics {
		fmt.Printf("  - %s:%d %s\n", d.File, d.Line, d.Message)
	}
	for _, d := range delta.Added.Diagnostics {
		fmt.Printf("  + %s:%d %s\n", d.File, d.Line, d.Message)
	}
}

func describeResolution(r facts.ResolutionRow) string {
	if r.Status == facts.StatusResolved {
		return fmt.Sprintf("= %d", r.Value)
	}
	return r.Status
}

func printTimingSummary(stages []stageDuration) {
	fmt.Printf("\n=== Timing Summary ===\n")
	for _, s := range stages {
		label := s.name + ":"
		if s.status != "" {
			fmt.Printf("  %-9s %s (%s)\n", label, s.status, formatDuration(s.duration))
			continue
		}
		fmt.Printf("  %-9s %s\n", label, formatDuration(s.duration))
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%dus", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.2fm", d.Minutes())
	default:
		return fmt.Sprintf("%.2fh", d.Hours())
	}
}

func emitProgress(mu *sync.Mutex, progress *int, total int, ff extractor.FileFacts, status string, duration time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	*progress = *progress + 1
	fmt.Printf("  [%d/%d] %s (%s, %s)\n", *progress, total, ff.File, status, formatDuration(duration))
	fmt.Printf("    units=%d nodes=%d\n", len(ff.Units), len(ff.Nodes))
}
