package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/oguzcantas/benchsum/pkg/types"
)

const (
	recordsFile  = "records.json"
	collectedDir = "collected"
	summaryFile  = "summary.md"
	jsonFile     = "summary.json"
)

// Store is the on-disk layout of benchmark runs:
//
//	<root>/<run-label>/records.json
//	<root>/<run-label>/collected/summary.md
type Store struct {
	Root string
}

func New(root string) Store {
	if root == "" {
		root = "runs"
	}
	return Store{Root: root}
}

func (s Store) RunDir(label string) string {
	return filepath.Join(s.Root, label)
}

func (s Store) RecordsPath(label string) string {
	return filepath.Join(s.RunDir(label), recordsFile)
}

func (s Store) SummaryPath(label string) string {
	return filepath.Join(s.RunDir(label), collectedDir, summaryFile)
}

func (s Store) SummaryJSONPath(label string) string {
	return filepath.Join(s.RunDir(label), collectedDir, jsonFile)
}

func (s Store) EnsureRunDir(label string) error {
	if label == "" {
		return fmt.Errorf("run label is required")
	}
	if err := os.MkdirAll(filepath.Join(s.RunDir(label), collectedDir), 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	return nil
}

func (s Store) WriteRecords(label string, records []types.JobRecord) (string, error) {
	if err := s.EnsureRunDir(label); err != nil {
		return "", err
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal records: %w", err)
	}
	path := s.RecordsPath(label)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write records: %w", err)
	}
	return path, nil
}

func (s Store) ReadRecords(label string) ([]types.JobRecord, error) {
	raw, err := os.ReadFile(s.RecordsPath(label))
	if err != nil {
		return nil, err
	}
	var records []types.JobRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.RecordsPath(label), err)
	}
	return records, nil
}

func (s Store) WriteSummary(label string, markdown []byte) (string, error) {
	if err := s.EnsureRunDir(label); err != nil {
		return "", err
	}
	path := s.SummaryPath(label)
	if err := os.WriteFile(path, markdown, 0o644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return path, nil
}

// ListRuns returns the sorted labels of run directories that contain
// records or a collected summary.
func (s Store) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	labels := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		label := e.Name()
		if fileExists(s.RecordsPath(label)) || fileExists(s.SummaryPath(label)) {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
