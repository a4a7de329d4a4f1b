package facts

import (
	"errors"
	"sort"

	"github.com/robert-at-pretension-io/buffait/internal/extractor"
	"github.com/robert-at-pretension-io/buffait/internal/graph"
)

// Tables is the relational fact model handed to the policy engine.
// Each slice is a relation (table) with flat rows.
type Tables struct {
	Files        []FileRow       `json:"files"`
	Buffers      []BufferRow     `json:"buffers"`
	Integers     []IntegerRow    `json:"integers"`
	Dependencies []DependencyRow `json:"dependencies"`
	Resolutions  []ResolutionRow `json:"resolutions"`
	Diagnostics  []DiagnosticRow `json:"diagnostics"`
}

type FileRow struct {
	Path  string `json:"path"`
	Mode  string `json:"mode"`
	Units int    `json:"units"`
	Nodes int    `json:"nodes"`
}

type BufferRow struct {
	Name     string `json:"name"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Size     string `json:"size"`
	SizeKind string `json:"size_kind"`
}

type IntegerRow struct {
	Name      string `json:"name"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Value     string `json:"value"`
	ValueKind string `json:"value_kind"`
}

// DependencyRow is one edge of the size graph: From's operand mentions To.
type DependencyRow struct {
	File     string `json:"file"`
	From     string `json:"from"`
	To       string `json:"to"`
	Kind     string `json:"kind"` // "ref" or "term"
	Resolved bool   `json:"resolved"`
	Line     int    `json:"line"`
}

type ResolutionRow struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"` // "buffer" or "integer"
	File   string `json:"file"`
	Line   int    `json:"line"`
	Status string `json:"status"`
	Value  int64  `json:"value"`
	Detail string `json:"detail,omitempty"`
}

type DiagnosticRow struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	PrevLine int    `json:"prev_line"`
	Message  string `json:"message"`
}

// Resolution statuses
const (
	StatusResolved      = "resolved"
	StatusUnresolved    = "unresolved"
	StatusCyclic        = "cyclic"
	StatusDepthExceeded = "depth_exceeded"
)

// Unit is one analyzed source file: what was extracted and the linked
// registry built from it.
type Unit struct {
	Facts    extractor.FileFacts
	Registry *graph.Registry
}

// ClassifyResolution maps a resolver error to a resolution status and a
// human-readable detail. A nil error is StatusResolved.
func ClassifyResolution(err error) (string, string) {
	if err == nil {
		return StatusResolved, ""
	}
	var cycle *graph.CycleError
	switch {
	case errors.As(err, &cycle):
		return StatusCyclic, err.Error()
	case errors.Is(err, graph.ErrDepthExceeded):
		return StatusDepthExceeded, err.Error()
	default:
		return StatusUnresolved, err.Error()
	}
}

// BuildTables converts analyzed units into a normalized relational model.
// Only the live declaration of each name contributes node rows.
func BuildTables(units []Unit) Tables {
	tables := emptyTables()

	seenFiles := make(map[string]bool)
	for _, u := range units {
		file := u.Facts.File
		if !seenFiles[file] {
			seenFiles[file] = true
			tables.Files = append(tables.Files, FileRow{
				Path:  file,
				Mode:  string(u.Facts.Mode),
				Units: len(u.Facts.Units),
				Nodes: len(u.Facts.Nodes),
			})
		}
		if u.Registry == nil {
			continue
		}
		reg := u.Registry

		for _, n := range reg.Nodes() {
			if !reg.Live(n.ID) {
				continue
			}
			op := n.Operand()
			switch n.Kind {
			case graph.KindBuffer:
				tables.Buffers = append(tables.Buffers, BufferRow{
					Name:     n.Name,
					File:     file,
					Line:     n.Line,
					Size:     n.Text,
					SizeKind: op.Kind.String(),
				})
			case graph.KindInteger:
				tables.Integers = append(tables.Integers, IntegerRow{
					Name:      n.Name,
					File:      file,
					Line:      n.Line,
					Value:     n.Text,
					ValueKind: op.Kind.String(),
				})
			}

			tables.Dependencies = append(tables.Dependencies, dependencyRows(file, n)...)

			value, err := reg.Resolve(n.ID)
			status, detail := ClassifyResolution(err)
			tables.Resolutions = append(tables.Resolutions, ResolutionRow{
				Name:   n.Name,
				Kind:   n.Kind.String(),
				File:   file,
				Line:   n.Line,
				Status: status,
				Value:  value,
				Detail: detail,
			})
		}

		for _, d := range reg.Diagnostics() {
			tables.Diagnostics = append(tables.Diagnostics, DiagnosticRow{
				Kind:     string(d.Kind),
				Name:     d.Name,
				File:     file,
				Line:     d.Line,
				PrevLine: d.PrevLine,
				Message:  d.Message,
			})
		}
	}

	sort.Slice(tables.Files, func(i, j int) bool { return tables.Files[i].Path < tables.Files[j].Path })

	return tables
}

func dependencyRows(file string, n graph.Node) []DependencyRow {
	op := n.Operand()
	switch op.Kind {
	case graph.OperandName:
		return []DependencyRow{{File: file, From: n.Name, To: op.Name, Kind: "ref", Line: n.Line}}
	case graph.OperandRef:
		return []DependencyRow{{File: file, From: n.Name, To: op.Name, Kind: "ref", Resolved: true, Line: n.Line}}
	case graph.OperandExpr:
		var rows []DependencyRow
		for _, t := range op.Terms {
			if t.IsConst() {
				continue
			}
			rows = append(rows, DependencyRow{
				File:     file,
				From:     n.Name,
				To:       t.Name,
				Kind:     "term",
				Resolved: t.Bound(),
				Line:     n.Line,
			})
		}
		return rows
	}
	return nil
}
