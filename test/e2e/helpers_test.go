//go:build e2e

package e2e

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oguzcantas/benchsum/internal/aggregate"
	"github.com/oguzcantas/benchsum/internal/collect"
	"github.com/oguzcantas/benchsum/internal/config"
	"github.com/oguzcantas/benchsum/internal/report"
	"github.com/oguzcantas/benchsum/internal/store"
	"github.com/oguzcantas/benchsum/pkg/types"
)

// harnessRecords mimics what a benchmark harness emits: raw job records
// with no record ids, no run label, and no system names, across two
// workflows with one failure and one retried success.
func harnessRecords() []map[string]any {
	return []map[string]any{
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
			"status":          "ok",
			"retries":         2,
			"startup_ms":      400,
			"first_output_ms": 900,
			"completion_ms":   4200,
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
		{
			"workflow_id":     "gemini_run_headless",
			"prompt_id":       "p-002",
			"category":        "reasoning",
			"status":          "fail",
			"failure_reason":  "quota_or_rate_limit",
			"retries":         1,
			"startup_ms":      600,
			"first_output_ms": 0,
			"completion_ms":   0,
		},
	}
}

func writeHarnessFile(t *testing.T, dir string) string {
	t.Helper()
	raw, err := json.MarshalIndent(harnessRecords(), "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "records.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// collectRun ingests the fixture records into the store under label.
func collectRun(t *testing.T, st store.Store, label string) []types.JobRecord {
	t.Helper()
	src := writeHarnessFile(t, t.TempDir())
	res, err := collect.Run(collect.Options{
		RunLabel: label,
		Source:   src,
		Config:   config.Default(),
		Store:    st,
	})
	if err != nil {
		t.Fatalf("collect %s: %v", label, err)
	}
	return res.Records
}

// summarizeRun aggregates a run's stored records and writes summary.md,
// returning its path.
func summarizeRun(t *testing.T, st store.Store, label string) string {
	t.Helper()
	records, err := st.ReadRecords(label)
	if err != nil {
		t.Fatalf("read records %s: %v", label, err)
	}
	s := aggregate.Build(label, time.Now(), records)
	path, err := st.WriteSummary(label, []byte(report.BuildMarkdown(s)))
	if err != nil {
		t.Fatalf("write summary %s: %v", label, err)
	}
	return path
}
