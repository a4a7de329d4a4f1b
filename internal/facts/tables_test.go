package facts

import (
	"testing"

	"github.com/robert-at-pretension-io/buffait/internal/extractor"
	"github.com/robert-at-pretension-io/buffait/internal/graph"
)

func buildUnit(t *testing.T, file string, lines ...string) Unit {
	t.Helper()
	var nodes []graph.Node
	var units []extractor.Unit
	for i, line := range lines {
		units = append(units, extractor.Unit{Line: i + 1, Text: line})
		for _, n := range extractor.ExtractLine(line) {
			n.Line = i + 1
			nodes = append(nodes, n)
		}
	}
	facts := extractor.FileFacts{File: file, Mode: extractor.ModeLines, Units: units, Nodes: nodes}
	return Unit{Facts: facts, Registry: graph.Build(nodes)}
}

func TestBuildTablesPopulatesCoreRelations(t *testing.T) {
	unit := buildUnit(t, "src/a.c",
		"#define BUFF_SIZE 100",
		"char buf[BUFF_SIZE + n];",
		"int n = 4;",
		"char orphan[MISSING];",
	)

	tables := BuildTables([]Unit{unit})

	if len(tables.Files) != 1 || tables.Files[0].Units != 4 || tables.Files[0].Nodes != 4 {
		t.Fatalf("unexpected file rows: %+v", tables.Files)
	}
	if len(tables.Buffers) != 2 {
		t.Fatalf("expected 2 buffer rows, got %+v", tables.Buffers)
	}
	if tables.Buffers[0].Size != "BUFF_SIZE + n" || tables.Buffers[0].SizeKind != "expr" {
		t.Fatalf("unexpected buffer row: %+v", tables.Buffers[0])
	}
	if len(tables.Integers) != 2 {
		t.Fatalf("expected 2 integer rows, got %+v", tables.Integers)
	}

	deps := map[string]DependencyRow{}
	for _, d := range tables.Dependencies {
		deps[d.From+"->"+d.To] = d
	}
	if d, ok := deps["buf->n"]; !ok || d.Kind != "term" || !d.Resolved {
		t.Fatalf("expected resolved term edge buf->n, got %+v", tables.Dependencies)
	}
	if d, ok := deps["orphan->MISSING"]; !ok || d.Kind != "ref" || d.Resolved {
		t.Fatalf("expected unresolved ref edge orphan->MISSING, got %+v", tables.Dependencies)
	}

	res := map[string]ResolutionRow{}
	for _, r := range tables.Resolutions {
		res[r.Name] = r
	}
	if r := res["buf"]; r.Status != StatusResolved || r.Value != 104 {
		t.Fatalf("expected buf resolved to 104, got %+v", r)
	}
	if r := res["orphan"]; r.Status != StatusUnresolved || r.Detail == "" {
		t.Fatalf("expected orphan unresolved with detail, got %+v", r)
	}
}

func TestBuildTablesCycleAndDiagnostics(t *testing.T) {
	unit := buildUnit(t, "b.c",
		"int a = b;",
		"int b = a;",
		"int dup = 1;",
		"int dup = 2;",
	)

	tables := BuildTables([]Unit{unit})

	for _, r := range tables.Resolutions {
		if (r.Name == "a" || r.Name == "b") && r.Status != StatusCyclic {
			t.Fatalf("expected %s to be cyclic, got %+v", r.Name, r)
		}
		if r.Name == "dup" && r.Value != 2 {
			t.Fatalf("expected live dup = 2, got %+v", r)
		}
	}
	if len(tables.Integers) != 3 {
		t.Fatalf("expected shadowed dup to be omitted, got %+v", tables.Integers)
	}

	kinds := map[string]bool{}
	for _, d := range tables.Diagnostics {
		kinds[d.Kind] = true
		if d.File != "b.c" {
			t.Fatalf("diagnostic without file: %+v", d)
		}
	}
	if !kinds["duplicate_declaration"] || !kinds["cyclic_dependency"] {
		t.Fatalf("expected duplicate and cycle diagnostics, got %+v", tables.Diagnostics)
	}
}

func TestBuildTablesSortsFiles(t *testing.T) {
	tables := BuildTables([]Unit{
		buildUnit(t, "z.c", "int z = 1;"),
		buildUnit(t, "a.c", "int a = 1;"),
	})
	if len(tables.Files) != 2 || tables.Files[0].Path != "a.c" {
		t.Fatalf("expected files sorted by path, got %+v", tables.Files)
	}
}

func TestClassifyResolution(t *testing.T) {
	reg := graph.Build([]graph.Node{graph.NewInteger("x", "x"), graph.NewBuffer("b", "y")})

	_, err := reg.ResolveName("x")
	if status, _ := ClassifyResolution(err); status != StatusCyclic {
		t.Fatalf("expected cyclic, got %s", status)
	}
	_, err = reg.ResolveName("b")
	if status, _ := ClassifyResolution(err); status != StatusUnresolved {
		t.Fatalf("expected unresolved, got %s", status)
	}
	overflow := graph.Build([]graph.Node{graph.NewBuffer("o", "9223372036854775807 + 1")})
	_, err = overflow.ResolveName("o")
	if status, _ := ClassifyResolution(err); status != StatusUnresolved {
		t.Fatalf("expected overflow to be unresolved, got %s", status)
	}
	if status, detail := ClassifyResolution(nil); status != StatusResolved || detail != "" {
		t.Fatalf("expected resolved, got %s %q", status, detail)
	}
}
