package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oguzcantas/benchsum/internal/verify"
	"github.com/oguzcantas/benchsum/pkg/types"
)

// --- Init Command ---

func TestInitCommand_CreatesConfigAndRunsRoot(t *testing.T) {
	chdirTemp(t)

	if err := newInitCommand().Execute(); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, p := range []string{"benchsum.yaml", "runs"} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("init missing %q: %v", p, err)
		}
	}
}

func TestInitCommand_Idempotent(t *testing.T) {
	chdirTemp(t)

	if err := newInitCommand().Execute(); err != nil {
		t.Fatal(err)
	}
	// Running again should not error or clobber an edited config.
	if err := os.WriteFile("benchsum.yaml", []byte("runs_root: elsewhere\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := newInitCommand().Execute(); err != nil {
		t.Fatalf("second init: %v", err)
	}
	raw, _ := os.ReadFile("benchsum.yaml")
	if !strings.Contains(string(raw), "elsewhere") {
		t.Error("second init overwrote existing config")
	}
}

// --- Collect Command ---

func TestCollectCommand_MissingFlags(t *testing.T) {
	cmd := newCollectCommand()
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for missing --run and --records")
	}
}

func TestCollectCommand_WritesRecords(t *testing.T) {
	chdirTemp(t)
	src := writeRecordsFixture(t, ".")

	cmd := newCollectCommand()
	cmd.SetArgs([]string{"--run", "nightly-01", "--records", src})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("collect: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join("runs", "nightly-01", "records.json"))
	if err != nil {
		t.Fatal(err)
	}
	var records []types.JobRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for _, r := range records {
		if r.RecordID == "" || r.RunLabel != "nightly-01" || r.System == "" {
			t.Errorf("record not normalized: %+v", r)
		}
	}
}

// --- Summarize Command ---

func TestSummarizeCommand_Markdown(t *testing.T) {
	chdirTemp(t)
	collectFixture(t, "nightly-01")

	cmd := newSummarizeCommand()
	cmd.SetArgs([]string{"--run", "nightly-01"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("summarize: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join("runs", "nightly-01", "collected", "summary.md"))
	if err != nil {
		t.Fatal(err)
	}
	body := string(raw)
	for _, want := range []string{
		"# Benchmark Summary: nightly-01",
		"Total records: 3",
		"## Workflow Metrics",
		"## System Comparison",
		"## Prompt Side-by-Side",
		"## Failure Taxonomy",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("summary missing %q", want)
		}
	}
}

func TestSummarizeCommand_JSON(t *testing.T) {
	chdirTemp(t)
	collectFixture(t, "nightly-01")

	cmd := newSummarizeCommand()
	cmd.SetArgs([]string{"--run", "nightly-01", "--format", "json"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("summarize json: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join("runs", "nightly-01", "collected", "summary.json"))
	if err != nil {
		t.Fatal(err)
	}
	var s types.Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatal(err)
	}
	if s.RunLabel != "nightly-01" || s.TotalRecords != 3 {
		t.Fatalf("unexpected summary header: %+v", s)
	}
}

func TestSummarizeCommand_MissingRun(t *testing.T) {
	chdirTemp(t)

	cmd := newSummarizeCommand()
	cmd.SetArgs([]string{"--run", "no-such-run"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for run without records")
	}
}

// --- Verify Command ---

func TestVerifyCommand_PassesFreshSummary(t *testing.T) {
	chdirTemp(t)
	collectFixture(t, "nightly-01")
	summarizeRun(t, "nightly-01")

	outPath := filepath.Join(t.TempDir(), "verify.json")
	cmd := newVerifyCommand()
	cmd.SetArgs([]string{"--run", "nightly-01", "--out", outPath})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("verify: %v", err)
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	var r verify.Report
	if err := json.Unmarshal(raw, &r); err != nil {
		t.Fatal(err)
	}
	if !r.Passed || r.ExitCode != verify.ExitPass {
		t.Fatalf("expected verify pass, got exit %d: %v", r.ExitCode, r.Violations)
	}
}

func TestVerifyCommand_CountMismatchExitCode(t *testing.T) {
	chdirTemp(t)
	collectFixture(t, "nightly-01")
	summarizeRun(t, "nightly-01")

	path := filepath.Join("runs", "nightly-01", "collected", "summary.md")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(raw), "Total records: 3", "Total records: 7", 1)
	if tampered == string(raw) {
		t.Fatal("fixture summary did not contain expected total")
	}
	if err := os.WriteFile(path, []byte(tampered), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newVerifyCommand()
	cmd.SetArgs([]string{"--run", "nightly-01"})
	err = cmd.Execute()
	if err == nil {
		t.Fatal("expected verify failure for tampered total")
	}
	var ce cliError
	if !errors.As(err, &ce) {
		t.Fatalf("expected cliError, got %T: %v", err, err)
	}
	if ce.code != verify.ExitCountMismatch {
		t.Fatalf("expected exit code %d, got %d", verify.ExitCountMismatch, ce.code)
	}
}

func TestVerifyCommand_MissingSummaryExitCode(t *testing.T) {
	chdirTemp(t)

	cmd := newVerifyCommand()
	cmd.SetArgs([]string{"--run", "no-such-run"})
	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected verify failure for missing summary")
	}
	var ce cliError
	if !errors.As(err, &ce) {
		t.Fatalf("expected cliError, got %T: %v", err, err)
	}
	if ce.code != verify.ExitMissing {
		t.Fatalf("expected exit code %d, got %d", verify.ExitMissing, ce.code)
	}
}

// --- Compare Command ---

func TestCompareCommand_RendersAcrossRuns(t *testing.T) {
	chdirTemp(t)
	for _, label := range []string{"nightly-01", "nightly-02"} {
		collectFixture(t, label)
		summarizeRun(t, label)
	}

	cmd := newCompareCommand()
	cmd.SetArgs([]string{"--runs", "nightly-01,nightly-02", "--out", "compare.md"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("compare: %v", err)
	}

	raw, err := os.ReadFile("compare.md")
	if err != nil {
		t.Fatal(err)
	}
	body := string(raw)
	for _, want := range []string{"# Benchmark Comparison", "nightly-01", "nightly-02", "opencode"} {
		if !strings.Contains(body, want) {
			t.Errorf("comparison missing %q", want)
		}
	}
}

func TestCompareCommand_RequiresTwoRuns(t *testing.T) {
	cmd := newCompareCommand()
	cmd.SetArgs([]string{"--runs", "only-one"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for a single run label")
	}
}

// --- Hook Command ---

func TestHookRunCommand_NoOpOutsideRepo(t *testing.T) {
	chdirTemp(t)

	cmd := newHookCommand()
	cmd.SetArgs([]string{"run"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("hook run outside a repo should succeed: %v", err)
	}
}

func TestHookCommand_Help(t *testing.T) {
	cmd := newHookCommand()
	cmd.SetArgs([]string{"--help"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("hook help: %v", err)
	}
}

// --- Helpers ---

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a, b ,,c ")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected split: %v", got)
	}
}

func chdirTemp(t *testing.T) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	tmp := t.TempDir()
	if err := os.Chdir(tmp); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

// writeRecordsFixture writes a three-record harness output file covering
// two workflows, one failure, and one retried success.
func writeRecordsFixture(t *testing.T, dir string) string {
	t.Helper()
	records := []map[string]any{
		{
			"workflow_id":     "opencode_run_headless",
			"prompt_id":       "p-001",
			"category":        "coding",
			"status":          "ok",
			"retries":         0,
			"startup_ms":      250,
			"first_output_ms": 700,
			"completion_ms":   2000,
		},
		{
			"workflow_id":     "opencode_run_headless",
			"prompt_id":       "p-002",
			"category":        "reasoning",
			"status":          "fail",
			"failure_reason":  "quota_or_rate_limit",
			"retries":         1,
			"startup_ms":      300,
			"first_output_ms": 0,
			"completion_ms":   0,
		},
		{
			"workflow_id":     "gemini_run_headless",
			"prompt_id":       "p-001",
			"category":        "coding",
			"status":          "ok",
			"retries":         0,
			"startup_ms":      500,
			"first_output_ms": 1200,
			"completion_ms":   3500,
		},
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "harness-records.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func collectFixture(t *testing.T, label string) {
	t.Helper()
	src := writeRecordsFixture(t, t.TempDir())
	cmd := newCollectCommand()
	cmd.SetArgs([]string{"--run", label, "--records", src})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("collect %s: %v", label, err)
	}
}

func summarizeRun(t *testing.T, label string) {
	t.Helper()
	cmd := newSummarizeCommand()
	cmd.SetArgs([]string{"--run", label})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("summarize %s: %v", label, err)
	}
}
