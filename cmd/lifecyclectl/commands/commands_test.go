package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openfroyo/lifecycle/pkg/stores"
)

const edgeManifest = `
name: "edge"
components: [
	{name: "net", priority: "high", version: "1.0.0"},
	{
		name:     "web"
		requires: ["net"]
		simulate: {fail_on: ["start"], code: 42}
	},
	{name: "metrics", priority: "idle", uses: ["web"]},
]
`

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// quietConfig writes a configuration that keeps telemetry logs off the
// test output.
func quietConfig(t *testing.T, dir string) string {
	t.Helper()
	return writeTestFile(t, dir, "lifecycle.yaml", "telemetry:\n  logging:\n    level: error\n")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := quietConfig(t, dir)
	manifest := writeTestFile(t, dir, "edge.cue", edgeManifest)

	out, err := runCLI(t, "--config", cfg, "validate", manifest)
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "3 components: valid") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestValidateCommand_Invalid(t *testing.T) {
	dir := t.TempDir()
	cfg := quietConfig(t, dir)
	manifest := writeTestFile(t, dir, "bad.yaml", `
components:
  - name: Bad
  - name: a
    requires: [b]
  - name: b
    requires: [a]
  - name: c
    requires: [ghost]
`)

	out, err := runCLI(t, "--config", cfg, "validate", manifest)
	if err == nil {
		t.Fatalf("expected validation failure:\n%s", out)
	}

	for _, want := range []string{"REJECTED   Bad", "component-naming", "UNRESOLVED c requires undeclared ghost", "CYCLE", "4 components: invalid"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	// Without policies the bad name is admitted.
	out, _ = runCLI(t, "--config", cfg, "validate", "--no-policy", manifest)
	if strings.Contains(out, "REJECTED") {
		t.Errorf("expected no rejections without policies:\n%s", out)
	}
}

func TestValidateCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	cfg := quietConfig(t, dir)
	manifest := writeTestFile(t, dir, "order.yaml", `
components:
  - name: app
    priority: critical
    requires: [db]
  - name: db
    priority: low
`)

	out, err := runCLI(t, "--config", cfg, "--json", "validate", manifest)
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, out)
	}

	var report validationReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if !report.Valid || len(report.Conflicts) != 1 {
		t.Errorf("expected one ordering conflict on a valid manifest, got %+v", report)
	}
	if report.Conflicts[0].Component != "app" || report.Conflicts[0].Dependency != "db" {
		t.Errorf("unexpected conflict: %+v", report.Conflicts[0])
	}
}

func TestGraphCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := quietConfig(t, dir)
	manifest := writeTestFile(t, dir, "edge.cue", edgeManifest)

	out, err := runCLI(t, "--config", cfg, "graph", manifest)
	if err != nil {
		t.Fatalf("graph failed: %v", err)
	}
	if !strings.HasPrefix(out, "digraph Components {") {
		t.Errorf("expected DOT output, got:\n%s", out)
	}
	if !strings.Contains(out, `"net" -> "web"`) {
		t.Errorf("expected net -> web edge:\n%s", out)
	}
}

func TestSimulateCommand_WithJournal(t *testing.T) {
	dir := t.TempDir()
	cfg := quietConfig(t, dir)
	manifest := writeTestFile(t, dir, "edge.cue", edgeManifest)
	db := filepath.Join(dir, "journal.db")

	out, err := runCLI(t, "--config", cfg, "simulate", "--journal", db, "--metrics", manifest)
	if err != nil {
		t.Fatalf("simulate failed: %v\n%s", err, out)
	}

	for _, want := range []string{"== bring-up", "== start", "failed web", "code=42", "== shutdown", "lifecycle_transitions_total"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	out, err = runCLI(t, "--config", cfg, "--json", "journal", "runs", "--db", db)
	if err != nil {
		t.Fatalf("journal runs failed: %v", err)
	}
	var runs []*stores.BulkRun
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 journaled runs, got %d", len(runs))
	}

	var startRun *stores.BulkRun
	for _, r := range runs {
		if r.Operation == "start_all" {
			startRun = r
		}
	}
	if startRun == nil || startRun.Failed != 1 {
		t.Fatalf("expected start_all run with one failure, got %+v", startRun)
	}

	out, err = runCLI(t, "--config", cfg, "journal", "show", startRun.ID, "--db", db)
	if err != nil {
		t.Fatalf("journal show failed: %v", err)
	}
	if !strings.Contains(out, "web") || !strings.Contains(out, "failed") {
		t.Errorf("expected web failure in run detail:\n%s", out)
	}

	out, err = runCLI(t, "--config", cfg, "journal", "transitions", "--failed", "--db", db)
	if err != nil {
		t.Fatalf("journal transitions failed: %v", err)
	}
	if !strings.Contains(out, "web") {
		t.Errorf("expected failed web transition:\n%s", out)
	}
}

func TestSimulateCommand_SingleSteps(t *testing.T) {
	dir := t.TempDir()
	cfg := quietConfig(t, dir)
	manifest := writeTestFile(t, dir, "edge.cue", edgeManifest)

	out, err := runCLI(t, "--config", cfg, "--json", "simulate",
		"--steps", "init:net,start:net,suspend:net,resume:net,unregister:metrics", manifest)
	if err != nil {
		t.Fatalf("simulate failed: %v\n%s", err, out)
	}

	var results []stepResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 steps, got %d", len(results))
	}
	for _, r := range results {
		if r.Error != "" {
			t.Errorf("step %s failed: %s", r.Step, r.Error)
		}
		if r.Report != nil {
			t.Errorf("single step %s should not produce a bulk report", r.Step)
		}
	}

	last := results[len(results)-1]
	if len(last.Components) != 2 {
		t.Errorf("expected metrics to be unregistered, got %+v", last.Components)
	}
	if last.Components[0].Name != "net" || last.Components[0].Status != "running" {
		t.Errorf("expected net running after resume, got %+v", last.Components[0])
	}

	if _, err := runCLI(t, "--config", cfg, "simulate", "--steps", "explode", manifest); err == nil {
		t.Error("expected invalid step error")
	}
	if _, err := runCLI(t, "--config", cfg, "simulate", "--steps", "suspend:", manifest); err == nil {
		t.Error("expected invalid step error")
	}
}

func TestPolicyListCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := quietConfig(t, dir)

	out, err := runCLI(t, "--config", cfg, "policy", "list")
	if err != nil {
		t.Fatalf("policy list failed: %v", err)
	}
	for _, name := range []string{"component-naming", "dependency-sanity", "priority-ordering", "version-format"} {
		if !strings.Contains(out, name) {
			t.Errorf("expected %s in output:\n%s", name, out)
		}
	}
}
