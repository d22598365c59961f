package collect

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oguzcantas/benchsum/internal/aggregate"
	"github.com/oguzcantas/benchsum/internal/config"
	"github.com/oguzcantas/benchsum/internal/store"
	"github.com/oguzcantas/benchsum/pkg/schema"
	"github.com/oguzcantas/benchsum/pkg/types"
)

type Options struct {
	RunLabel string
	// Source is a record file or a directory of record files. Files may
	// be JSON arrays (.json) or one record per line (.jsonl).
	Source string
	Config config.Config
	Store  store.Store
}

type Result struct {
	Path    string
	Records []types.JobRecord
}

// Run ingests harness output for one run: every record is validated
// against the job record schema, normalized, deduplicated per
// (workflow, prompt) pair, and written as the run's canonical
// records.json.
func Run(opts Options) (Result, error) {
	if opts.RunLabel == "" {
		return Result{}, fmt.Errorf("run label is required")
	}
	files, err := recordFiles(opts.Source)
	if err != nil {
		return Result{}, err
	}
	if len(files) == 0 {
		return Result{}, fmt.Errorf("no record files under %s", opts.Source)
	}

	records := make([]types.JobRecord, 0)
	for _, f := range files {
		docs, err := decodeFile(f)
		if err != nil {
			return Result{}, err
		}
		for i, doc := range docs {
			violations, err := schema.ValidateJobRecord(doc)
			if err != nil {
				return Result{}, fmt.Errorf("record %d in %s: %w", i+1, f, err)
			}
			if len(violations) > 0 {
				return Result{}, fmt.Errorf("record %d in %s: %s", i+1, f, strings.Join(violations, "; "))
			}
			rec, err := toRecord(doc)
			if err != nil {
				return Result{}, fmt.Errorf("record %d in %s: %w", i+1, f, err)
			}
			normalize(&rec, opts)
			records = append(records, rec)
		}
	}

	records = aggregate.Dedup(records)
	path, err := opts.Store.WriteRecords(opts.RunLabel, records)
	if err != nil {
		return Result{}, err
	}
	return Result{Path: path, Records: records}, nil
}

func normalize(rec *types.JobRecord, opts Options) {
	if rec.RecordID == "" {
		rec.RecordID = uuid.NewString()
	}
	rec.RunLabel = opts.RunLabel
	if rec.System == "" {
		rec.System = opts.Config.SystemFor(rec.WorkflowID)
	}
	if rec.Status == types.StatusFail && rec.FailureReason == "" {
		rec.FailureReason = types.ReasonUnknown
	}
	if rec.RecordedAt == "" {
		rec.RecordedAt = time.Now().UTC().Format(time.RFC3339)
	}
}

func recordFiles(source string) ([]string, error) {
	fi, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("record source: %w", err)
	}
	if !fi.IsDir() {
		return []string{source}, nil
	}
	entries, err := os.ReadDir(source)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".jsonl") {
			files = append(files, filepath.Join(source, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

func decodeFile(path string) ([]map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".jsonl") {
		return decodeLines(path, raw)
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var docs []map[string]any
		if err := json.Unmarshal(raw, &docs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return docs, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return []map[string]any{doc}, nil
}

func decodeLines(path string, raw []byte) ([]map[string]any, error) {
	docs := make([]map[string]any, 0)
	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return nil, fmt.Errorf("decode %s line %d: %w", path, line, err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return docs, nil
}

func toRecord(doc map[string]any) (types.JobRecord, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return types.JobRecord{}, err
	}
	var rec types.JobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return types.JobRecord{}, err
	}
	return rec, nil
}
