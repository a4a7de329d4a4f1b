package facts

// Delta captures added and removed fact rows between two snapshots.
type Delta struct {
	Added   Tables `json:"added"`
	Removed Tables `json:"removed"`
}

// ComputeDelta computes row-level additions and removals between two
// snapshots. Rows are compared whole, so a buffer whose resolved value
// changes shows up once as removed and once as added.
func ComputeDelta(prev, next Tables) Delta {
	return Delta{
		Added:   subtract(next, prev),
		Removed: subtract(prev, next),
	}
}

// Empty reports whether the delta carries no rows at all.
func (d Delta) Empty() bool {
	return d.Added.Len() == 0 && d.Removed.Len() == 0
}

// Len returns the total number of rows across every relation.
func (t Tables) Len() int {
	return len(t.Files) + len(t.Buffers) + len(t.Integers) + len(t.Dependencies) + len(t.Resolutions) + len(t.Diagnostics)
}

// subtract returns the rows of a that b does not contain.
func subtract(a, b Tables) Tables {
	return Tables{
		Files:        missingFrom(a.Files, b.Files),
		Buffers:      missingFrom(a.Buffers, b.Buffers),
		Integers:     missingFrom(a.Integers, b.Integers),
		Dependencies: missingFrom(a.Dependencies, b.Dependencies),
		Resolutions:  missingFrom(a.Resolutions, b.Resolutions),
		Diagnostics:  missingFrom(a.Diagnostics, b.Diagnostics),
	}
}

func emptyTables() Tables {
	return Tables{
		Files:        []FileRow{},
		Buffers:      []BufferRow{},
		Integers:     []IntegerRow{},
		Dependencies: []DependencyRow{},
		Resolutions:  []ResolutionRow{},
		Diagnostics:  []DiagnosticRow{},
	}
}

func missingFrom[T comparable](rows, other []T) []T {
	seen := make(map[T]struct{}, len(other))
	for _, r := range other {
		seen[r] = struct{}{}
	}
	out := make([]T, 0)
	for _, r := range rows {
		if _, ok := seen[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}
