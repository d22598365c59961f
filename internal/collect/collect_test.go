package collect

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oguzcantas/benchsum/internal/config"
	"github.com/oguzcantas/benchsum/internal/store"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const okRecord = `{"workflow_id":"opencode_run_headless","prompt_id":"p-001","category":"coding_ability","status":"ok","retries":0,"startup_ms":400,"first_output_ms":900,"completion_ms":5000,"recorded_at":"2026-08-30T10:00:00Z"}`
const failRecord = `{"workflow_id":"gemini_run_headless","prompt_id":"p-002","category":"robustness","status":"fail","failure_reason":"quota_or_rate_limit","retries":2,"startup_ms":300,"first_output_ms":700,"completion_ms":0,"recorded_at":"2026-08-30T10:05:00Z"}`

func TestRun_JSONLines(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "jobs.jsonl", okRecord+"\n\n"+failRecord+"\n")

	res, err := Run(Options{
		RunLabel: "run-a",
		Source:   src,
		Config:   config.Default(),
		Store:    store.New(t.TempDir()),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d", len(res.Records))
	}
	for _, rec := range res.Records {
		if rec.RecordID == "" {
			t.Error("record id not assigned")
		}
		if rec.RunLabel != "run-a" {
			t.Errorf("run label = %q", rec.RunLabel)
		}
	}
	if res.Records[0].System != "opencode" {
		t.Errorf("system = %q, want inferred opencode", res.Records[0].System)
	}

	raw, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk []map[string]any
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatal(err)
	}
	if len(onDisk) != 2 {
		t.Fatalf("canonical records = %d", len(onDisk))
	}
}

func TestRun_JSONArray(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "jobs.json", "["+okRecord+","+failRecord+"]")

	res, err := Run(Options{RunLabel: "run-a", Source: src, Config: config.Default(), Store: store.New(t.TempDir())})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d", len(res.Records))
	}
}

func TestRun_SingleFileSource(t *testing.T) {
	src := t.TempDir()
	path := writeFile(t, src, "only.jsonl", okRecord+"\n")

	res, err := Run(Options{RunLabel: "run-a", Source: path, Config: config.Default(), Store: store.New(t.TempDir())})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d", len(res.Records))
	}
}

func TestRun_SchemaViolation(t *testing.T) {
	src := t.TempDir()
	bad := strings.Replace(okRecord, `"ok"`, `"passed"`, 1)
	writeFile(t, src, "jobs.jsonl", bad+"\n")

	_, err := Run(Options{RunLabel: "run-a", Source: src, Config: config.Default(), Store: store.New(t.TempDir())})
	if err == nil {
		t.Fatal("expected schema violation")
	}
	if !strings.Contains(err.Error(), "jobs.jsonl") {
		t.Errorf("error does not name file: %v", err)
	}
}

func TestRun_SystemMappingOverride(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "jobs.jsonl", okRecord+"\n")

	cfg := config.Default()
	cfg.Systems["opencode_run_headless"] = "opencode-nightly"
	res, err := Run(Options{RunLabel: "run-a", Source: src, Config: cfg, Store: store.New(t.TempDir())})
	if err != nil {
		t.Fatal(err)
	}
	if res.Records[0].System != "opencode-nightly" {
		t.Errorf("system = %q", res.Records[0].System)
	}
}

func TestRun_UnknownReasonNormalized(t *testing.T) {
	src := t.TempDir()
	bare := strings.Replace(failRecord, `"failure_reason":"quota_or_rate_limit",`, "", 1)
	writeFile(t, src, "jobs.jsonl", bare+"\n")

	res, err := Run(Options{RunLabel: "run-a", Source: src, Config: config.Default(), Store: store.New(t.TempDir())})
	if err != nil {
		t.Fatal(err)
	}
	if res.Records[0].FailureReason != "unknown" {
		t.Errorf("failure reason = %q", res.Records[0].FailureReason)
	}
}

func TestRun_DedupSameJob(t *testing.T) {
	src := t.TempDir()
	retry := strings.Replace(okRecord, "2026-08-30T10:00:00Z", "2026-08-30T11:00:00Z", 1)
	retry = strings.Replace(retry, `"completion_ms":5000`, `"completion_ms":4000`, 1)
	writeFile(t, src, "jobs.jsonl", okRecord+"\n"+retry+"\n")

	res, err := Run(Options{RunLabel: "run-a", Source: src, Config: config.Default(), Store: store.New(t.TempDir())})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d, want deduplicated 1", len(res.Records))
	}
	if res.Records[0].CompletionMS != 4000 {
		t.Errorf("kept completion_ms = %d, want latest record", res.Records[0].CompletionMS)
	}
}

func TestRun_EmptySource(t *testing.T) {
	if _, err := Run(Options{RunLabel: "run-a", Source: t.TempDir(), Config: config.Default(), Store: store.New(t.TempDir())}); err == nil {
		t.Fatal("expected error for empty source dir")
	}
}

func TestRun_MissingLabel(t *testing.T) {
	if _, err := Run(Options{Source: t.TempDir()}); err == nil {
		t.Fatal("expected error for missing run label")
	}
}
