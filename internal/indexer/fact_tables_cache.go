package indexer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/robert-at-pretension-io/buffait/internal/extractor"
	"github.com/robert-at-pretension-io/buffait/internal/facts"
)

const factTablesCacheVersion = 2

// tablesSnapshot is the fact tables of the previous run. Deltas are only
// meaningful between snapshots taken in the same extraction mode.
type tablesSnapshot struct {
	Version int            `json:"version"`
	Mode    extractor.Mode `json:"mode"`
	Tables  facts.Tables   `json:"tables"`
}

func factTablesPath(dir string) string {
	return filepath.Join(dir, "fact_tables.json")
}

// loadFactTablesCache returns the stored tables when a snapshot of the
// current format and mode exists.
func loadFactTablesCache(dir string, mode extractor.Mode) (facts.Tables, bool, error) {
	data, err := os.ReadFile(factTablesPath(dir))
	if os.IsNotExist(err) {
		return facts.Tables{}, false, nil
	}
	if err != nil {
		return facts.Tables{}, false, fmt.Errorf("read fact tables cache: %w", err)
	}
	var snap tablesSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return facts.Tables{}, false, fmt.Errorf("parse fact tables cache: %w", err)
	}
	if snap.Version != factTablesCacheVersion || snap.Mode != mode {
		return facts.Tables{}, false, nil
	}
	return snap.Tables, true, nil
}

// saveFactTablesCache stores tables for the files of this run and keeps the
// stored rows of every other file, so a single-file run does not forget the
// rest of the project.
func saveFactTablesCache(dir string, mode extractor.Mode, prev, tables facts.Tables, inRun map[string]bool) error {
	snap := tablesSnapshot{
		Version: factTablesCacheVersion,
		Mode:    mode,
		Tables:  facts.Merge(facts.ExcludeFiles(prev, inRun), tables),
	}
	if err := writeJSONAtomic(factTablesPath(dir), snap); err != nil {
		return fmt.Errorf("write fact tables cache: %w", err)
	}
	return nil
}
