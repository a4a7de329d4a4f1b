package extractor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"

	"github.com/robert-at-pretension-io/buffait/internal/graph"
)

// Mode selects how a source file is split into units before the
// declaration grammars run.
type Mode string

const (
	// ModeLines treats every physical line as one unit.
	ModeLines Mode = "lines"
	// ModeStatements uses the C grammar to find declarations and macro
	// definitions, so a declaration spread over several lines is one unit.
	ModeStatements Mode = "statements"
)

// ParseMode maps a configuration value to a Mode. The empty string selects
// ModeLines.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeLines:
		return ModeLines, nil
	case ModeStatements:
		return ModeStatements, nil
	}
	return ModeLines, fmt.Errorf("unknown extraction mode %q (want lines or statements)", s)
}

// Extractor reads C-like source and extracts buffer and integer
// declarations. It is safe for concurrent use.
type Extractor struct {
	mode Mode
}

// Unit is one piece of source text the grammars are applied to.
type Unit struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// FileFacts contains everything extracted from a single source file
type FileFacts struct {
	File  string       `json:"file"`
	Mode  Mode         `json:"mode"`
	Units []Unit       `json:"units"`
	Nodes []graph.Node `json:"nodes"`
}

// Tree-sitter parsers are not goroutine safe; each extraction borrows one.
var cParsers = sync.Pool{
	New: func() interface{} {
		parser := sitter.NewParser()
		parser.SetLanguage(c.GetLanguage())
		return parser
	},
}

// New creates an Extractor in line mode
func New() *Extractor {
	return &Extractor{mode: ModeLines}
}

// NewWithMode creates an Extractor for the given mode.
func NewWithMode(mode Mode) *Extractor {
	if mode == "" {
		mode = ModeLines
	}
	return &Extractor{mode: mode}
}

// Mode reports how the extractor splits files into units.
func (e *Extractor) Mode() Mode {
	return e.mode
}

// Extract reads a source file and extracts its declarations
func (e *Extractor) Extract(filePath string) (FileFacts, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return FileFacts{File: filePath, Mode: e.mode}, fmt.Errorf("reading file: %w", err)
	}
	return e.ExtractSource(filePath, content)
}

// ExtractSource extracts declarations from content already in memory.
// filePath is recorded but not read.
func (e *Extractor) ExtractSource(filePath string, content []byte) (FileFacts, error) {
	facts := FileFacts{File: filePath, Mode: e.mode}

	units, err := e.Units(content)
	if err != nil {
		return facts, err
	}
	facts.Units = units

	for _, u := range units {
		for _, n := range ExtractLine(u.Text) {
			n.Line = u.Line
			facts.Nodes = append(facts.Nodes, n)
		}
	}
	return facts, nil
}

// Units splits content according to the extractor's mode.
func (e *Extractor) Units(content []byte) ([]Unit, error) {
	switch e.mode {
	case ModeLines:
		return lineUnits(string(content)), nil
	case ModeStatements:
		return statementUnits(content)
	}
	return nil, fmt.Errorf("unknown extraction mode %q", e.mode)
}

// ExtractLine applies the macro, integer and buffer grammars to one unit of
// text and returns the declared nodes in left-to-right order. Text that
// matches nothing yields nil.
func ExtractLine(line string) []graph.Node {
	matches := matchDeclarations(line)
	if len(matches) == 0 {
		return nil
	}
	nodes := make([]graph.Node, 0, len(matches))
	for _, m := range matches {
		switch m.kind {
		case declDefine, declInt:
			nodes = append(nodes, graph.NewInteger(m.name, m.expr))
		case declBuffer:
			nodes = append(nodes, graph.NewBuffer(m.name, m.expr))
		}
	}
	return nodes
}

func lineUnits(text string) []Unit {
	lines := splitLines(text)
	units := make([]Unit, 0, len(lines))
	for i, line := range lines {
		units = append(units, Unit{Line: i + 1, Text: strings.TrimSuffix(line, "\r")})
	}
	return units
}

func statementUnits(content []byte) ([]Unit, error) {
	parser := cParsers.Get().(*sitter.Parser)
	defer func() {
		parser.Reset()
		cParsers.Put(parser)
	}()

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	var units []Unit
	walkTree(tree.RootNode(), content, &units)
	return units, nil
}

// walkTree collects declarations and macro definitions in source order.
func walkTree(node *sitter.Node, source []byte, units *[]Unit) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "declaration", "preproc_def":
		*units = append(*units, Unit{
			Line: int(node.StartPoint().Row) + 1,
			Text: strings.Join(strings.Fields(node.Content(source)), " "),
		})
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walkTree(node.Child(i), source, units)
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
