// buffait-units shows what the extractor sees in one C file: the units the
// file is split into, the declarations matched in each, and optionally the
// tree-sitter nodes behind statement mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"

	"github.com/robert-at-pretension-io/buffait/internal/extractor"
)

func main() {
	modeFlag := flag.String("mode", "lines", "unit mode: lines or statements")
	showTree := flag.Bool("tree", false, "also print the top-level tree-sitter nodes")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: buffait-units [--mode lines|statements] [--tree] <file.c>")
		os.Exit(1)
	}
	path := flag.Arg(0)

	mode, err := extractor.ParseMode(*modeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ff, err := extractor.NewWithMode(mode).ExtractSource(path, source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s: %d units, %d nodes (%s mode)\n", path, len(ff.Units), len(ff.Nodes), mode)
	for _, u := range ff.Units {
		matched := 0
		for _, n := range ff.Nodes {
			if n.Line == u.Line {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		fmt.Printf("  [%d] %q\n", u.Line, u.Text)
		for _, n := range ff.Nodes {
			if n.Line == u.Line {
				fmt.Printf("      %s\n", n)
			}
		}
	}

	if *showTree {
		if err := dumpTree(source); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func dumpTree(source []byte) error {
	parser := sitter.NewParser()
	parser.SetLanguage(c.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return err
	}
	defer tree.Close()
	root := tree.RootNode()

	fmt.Printf("\n%s has %d children:\n", root.Type(), root.ChildCount())
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		fmt.Printf("  [%d] type=%s line=%d error=%t content=%q\n",
			i, child.Type(), child.StartPoint().Row+1, child.HasError(), child.Content(source))
	}
	return nil
}
