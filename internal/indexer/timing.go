package indexer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// timingEvent is one line of the timing JSONL file. Stage events span a
// pipeline step; file events span one file inside the extract step and carry
// what the extractor produced for it.
type timingEvent struct {
	Phase      string  `json:"phase"`
	Kind       string  `json:"kind"`
	File       string  `json:"file,omitempty"`
	Status     string  `json:"status,omitempty"`
	Units      int     `json:"units,omitempty"`
	Nodes      int     `json:"nodes,omitempty"`
	StartMS    float64 `json:"start_ms"`
	DurationMS float64 `json:"duration_ms"`
	EndMS      float64 `json:"end_ms"`
}

// timingRecorder appends events to a JSONL file. A recorder without a path
// accepts every call and writes nothing.
type timingRecorder struct {
	start time.Time
	mu    sync.Mutex
	file  *os.File
	enc   *json.Encoder
	err   error
}

func newTimingRecorder(start time.Time, path string) *timingRecorder {
	tr := &timingRecorder{start: start}
	if path == "" {
		return tr
	}
	f, err := os.Create(path)
	if err != nil {
		tr.err = err
		return tr
	}
	tr.file = f
	tr.enc = json.NewEncoder(f)
	return tr
}

func (tr *timingRecorder) Err() error {
	if tr == nil {
		return nil
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.err
}

func (tr *timingRecorder) Close() {
	if tr == nil || tr.file == nil {
		return
	}
	_ = tr.file.Close()
}

func (tr *timingRecorder) emit(ev timingEvent, start time.Time, duration time.Duration) {
	if tr == nil || tr.enc == nil {
		return
	}
	ev.StartMS = millis(start.Sub(tr.start))
	ev.DurationMS = millis(duration)
	ev.EndMS = ev.StartMS + ev.DurationMS

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if err := tr.enc.Encode(ev); err != nil && tr.err == nil {
		tr.err = err
	}
}

// RecordStage records a pipeline stage (scan, extract, build, ...).
func (tr *timingRecorder) RecordStage(phase string, start time.Time, duration time.Duration, status string) {
	tr.emit(timingEvent{Phase: phase, Kind: "stage", Status: status}, start, duration)
}

// RecordFile records one file of the extract stage.
func (tr *timingRecorder) RecordFile(file, status string, units, nodes int, start time.Time, duration time.Duration) {
	tr.emit(timingEvent{
		Phase:  "extract",
		Kind:   "file",
		File:   file,
		Status: status,
		Units:  units,
		Nodes:  nodes,
	}, start, duration)
}

func millis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

// resolveTimingPath picks the JSONL destination: BUFFAIT_TIMING_JSONL wins,
// then Timing or BUFFAIT_TIMING turn on TimingPath or <root>/timing.jsonl.
func (idx *Indexer) resolveTimingPath(rootPath string) string {
	if idx == nil {
		return ""
	}
	if envPath := os.Getenv("BUFFAIT_TIMING_JSONL"); envPath != "" {
		return envPath
	}
	if !idx.Timing && !envBool("BUFFAIT_TIMING") {
		return ""
	}
	if idx.TimingPath != "" {
		return idx.TimingPath
	}
	return filepath.Join(timingBaseDir(rootPath), "timing.jsonl")
}

func timingBaseDir(rootPath string) string {
	if rootPath == "" {
		return "."
	}
	if info, err := os.Stat(rootPath); err == nil && !info.IsDir() {
		return filepath.Dir(rootPath)
	}
	return rootPath
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
