package facts

// FilterTablesByFiles keeps the rows that belong to one of files. An empty
// set keeps nothing.
func FilterTablesByFiles(tables Tables, files map[string]bool) Tables {
	return selectRows(tables, func(file string) bool { return files[file] })
}

// ExcludeFiles keeps the rows that belong to none of files.
func ExcludeFiles(tables Tables, files map[string]bool) Tables {
	return selectRows(tables, func(file string) bool { return !files[file] })
}

// FilterDeltaByFiles restricts both sides of a delta to files.
func FilterDeltaByFiles(delta Delta, files map[string]bool) Delta {
	return Delta{
		Added:   FilterTablesByFiles(delta.Added, files),
		Removed: FilterTablesByFiles(delta.Removed, files),
	}
}

// Merge returns the rows of a followed by the rows of b.
func Merge(a, b Tables) Tables {
	out := emptyTables()
	out.Files = append(append(out.Files, a.Files...), b.Files...)
	out.Buffers = append(append(out.Buffers, a.Buffers...), b.Buffers...)
	out.Integers = append(append(out.Integers, a.Integers...), b.Integers...)
	out.Dependencies = append(append(out.Dependencies, a.Dependencies...), b.Dependencies...)
	out.Resolutions = append(append(out.Resolutions, a.Resolutions...), b.Resolutions...)
	out.Diagnostics = append(append(out.Diagnostics, a.Diagnostics...), b.Diagnostics...)
	return out
}

func selectRows(tables Tables, keep func(file string) bool) Tables {
	return Tables{
		Files:        where(tables.Files, func(r FileRow) bool { return keep(r.Path) }),
		Buffers:      where(tables.Buffers, func(r BufferRow) bool { return keep(r.File) }),
		Integers:     where(tables.Integers, func(r IntegerRow) bool { return keep(r.File) }),
		Dependencies: where(tables.Dependencies, func(r DependencyRow) bool { return keep(r.File) }),
		Resolutions:  where(tables.Resolutions, func(r ResolutionRow) bool { return keep(r.File) }),
		Diagnostics:  where(tables.Diagnostics, func(r DiagnosticRow) bool { return keep(r.File) }),
	}
}

// where never returns nil so the result still satisfies the CUE contract.
func where[T any](rows []T, keep func(T) bool) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
