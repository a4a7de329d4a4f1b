package indexer

import (
	"fmt"

	"github.com/robert-at-pretension-io/buffait/internal/facts"
	"github.com/robert-at-pretension-io/buffait/internal/graph"
)

// ResolveFile extracts one file and resolves the named buffers, or every
// buffer when names is empty. A name the file never declares comes back
// unresolved with line 0.
func (idx *Indexer) ResolveFile(path string, names []string) ([]BufferSize, error) {
	ff, err := idx.newExtractor().Extract(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	reg := graph.Build(ff.Nodes, idx.Config.GraphOptions()...)

	if len(names) == 0 {
		for _, n := range reg.Buffers() {
			names = append(names, n.Name)
		}
	}

	out := make([]BufferSize, 0, len(names))
	for _, name := range names {
		size := BufferSize{Name: name, File: path}
		if id, ok := reg.Lookup(name); ok {
			n, _ := reg.Node(id)
			size.Line = n.Line
			size.Size = n.Text
		}
		value, err := reg.ResolveName(name)
		size.Status, size.Detail = facts.ClassifyResolution(err)
		size.Value = value
		out = append(out, size)
	}
	return out, nil
}
