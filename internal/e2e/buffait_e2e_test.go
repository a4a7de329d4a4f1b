package e2e

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/robert-at-pretension-io/buffait/internal/facts"
	"github.com/robert-at-pretension-io/buffait/internal/indexer"
	"github.com/robert-at-pretension-io/buffait/internal/validator"
)

func TestBuffaitE2E_Testdata(t *testing.T) {
	repoRoot := findRepoRoot(t)
	bin := buildBinary(t, repoRoot, "buffait")
	work, env := isolatedEnv(t)

	paths := []string{
		filepath.Join(repoRoot, "testdata", "c"),
		filepath.Join(repoRoot, "testdata", "policy_rules"),
	}

	outputValidator, err := validator.NewOutputValidator()
	if err != nil {
		t.Fatalf("output validator: %v", err)
	}

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			src := copyTree(t, path)
			stdout := runCommand(t, bin, work, env, "--json", src)
			if err := outputValidator.ValidateJSON(stdout); err != nil {
				t.Fatalf("report does not match schema: %v\n%s", err, stdout)
			}

			var report indexer.Report
			if err := json.Unmarshal(stdout, &report); err != nil {
				t.Fatalf("parse JSON output for %s: %v\nstdout:\n%s", path, err, stdout)
			}
			if len(report.ParseErrors) > 0 {
				t.Fatalf("parse errors in %s: %v", path, report.ParseErrors)
			}
			if report.Stats.Buffers == 0 {
				t.Fatalf("expected buffers in %s, got %+v", path, report.Stats)
			}
		})
	}
}

func TestBuffaitE2E_Resolve(t *testing.T) {
	repoRoot := findRepoRoot(t)
	bin := buildBinary(t, repoRoot, "buffait")
	work, env := isolatedEnv(t)

	src := copyTree(t, filepath.Join(repoRoot, "testdata", "c"))
	out := string(runCommand(t, bin, work, env, "resolve", filepath.Join(src, "paper-example.c"), "buf", "missing"))
	for _, want := range []string{"buf[BUFF_SIZE] = 100", "missing[] unresolved"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in resolve output:\n%s", want, out)
		}
	}
}

func TestBuffaitFactsE2E_Delta(t *testing.T) {
	repoRoot := findRepoRoot(t)
	bin := buildBinary(t, repoRoot, "buffait-facts")
	work, env := isolatedEnv(t)

	src := t.TempDir()
	file := filepath.Join(src, "a.c")
	writeFile(t, file, "#define N 8\nchar buf[N];\n")
	before := filepath.Join(work, "before.json")
	runCommand(t, bin, work, env, "--output", before, src)

	writeFile(t, file, "#define N 12\nchar buf[N];\n")
	deltaPath := filepath.Join(work, "delta.json")
	stdout := runCommand(t, bin, work, env, "--delta-from", before, "--delta-out", deltaPath, src)

	var tables facts.Tables
	if err := json.Unmarshal(stdout, &tables); err != nil {
		t.Fatalf("parse facts: %v\n%s", err, stdout)
	}
	if len(tables.Buffers) != 1 || tables.Buffers[0].Name != "buf" {
		t.Fatalf("expected buf in the facts, got %+v", tables.Buffers)
	}

	data, err := os.ReadFile(deltaPath)
	if err != nil {
		t.Fatalf("read delta: %v", err)
	}
	var delta facts.Delta
	if err := json.Unmarshal(data, &delta); err != nil {
		t.Fatalf("parse delta: %v", err)
	}
	if !hasResolution(delta.Added, "buf", 12) || !hasResolution(delta.Removed, "buf", 8) {
		t.Fatalf("expected buf 8 -> 12 in the delta, got %+v", delta)
	}
}

func hasResolution(tables facts.Tables, name string, value int64) bool {
	for _, r := range tables.Resolutions {
		if r.Name == name && r.Value == value {
			return true
		}
	}
	return false
}

// isolatedEnv returns a working directory and an environment in which no
// user or project configuration can be found.
func isolatedEnv(t *testing.T) (string, []string) {
	t.Helper()
	home := t.TempDir()
	env := append(os.Environ(),
		"HOME="+home,
		"XDG_CONFIG_HOME="+filepath.Join(home, ".config"),
		"BUFFAIT_TIMING=",
		"BUFFAIT_TIMING_JSONL=",
	)
	return t.TempDir(), env
}

func runCommand(t *testing.T, bin, dir string, env []string, args ...string) []byte {
	t.Helper()

	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	cmd.Env = env
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("%s %v failed: %v\nstderr:\n%s", filepath.Base(bin), args, err, stderr.String())
	}
	return stdout.Bytes()
}

func buildBinary(t *testing.T, repoRoot, name string) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), name)
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/"+name)
	cmd.Dir = repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build %s failed: %v\n%s", name, err, string(out))
	}
	return binPath
}

// copyTree copies the .c files of dir into a temp directory so cache
// directories never land in testdata.
func copyTree(t *testing.T, dir string) string {
	t.Helper()
	dst := t.TempDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".c" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		writeFile(t, filepath.Join(dst, e.Name()), string(data))
	}
	return dst
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	dir := start
	for {
		candidate := filepath.Join(dir, "testdata", "policy_rules", "manifest.json")
		if _, err := os.Stat(candidate); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("repo root not found from %s", start)
		}
		dir = parent
	}
}
