package types

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	StatusOK   = "ok"
	StatusFail = "fail"
)

const (
	KindCategory = "category"
	KindReason   = "reason"
)

// TaxonomyNoneKey is the placeholder key emitted when a run has no failures.
const TaxonomyNoneKey = "none"

// ReasonUnknown is substituted for failed records that carry no reason.
const ReasonUnknown = "unknown"

// EmptyCell marks a workflow that never executed a given prompt.
const EmptyCell = "-"

// JobRecord is one benchmark job execution as emitted by a harness run.
// Retries are attempts beyond the first for the same job, so one record
// covers the whole attempt set for its (workflow, prompt) pair.
type JobRecord struct {
	RecordID      string `json:"record_id"`
	RunLabel      string `json:"run_label"`
	WorkflowID    string `json:"workflow_id"`
	System        string `json:"system"`
	PromptID      string `json:"prompt_id"`
	Category      string `json:"category"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	Retries       int    `json:"retries"`
	StartupMS     int64  `json:"startup_ms"`
	FirstOutputMS int64  `json:"first_output_ms"`
	CompletionMS  int64  `json:"completion_ms"`
	RecordedAt    string `json:"recorded_at"`
}

func (r JobRecord) Failed() bool { return r.Status == StatusFail }

// Reason returns the failure reason, defaulting to "unknown" for failed
// records that were ingested without one.
func (r JobRecord) Reason() string {
	if !r.Failed() {
		return ""
	}
	if r.FailureReason == "" {
		return ReasonUnknown
	}
	return r.FailureReason
}

// Metrics holds the rate and latency columns shared by the Workflow
// Metrics and System Comparison tables. Rates are percentages already
// rounded to one decimal; latencies are integer milliseconds.
type Metrics struct {
	Jobs                int     `json:"jobs"`
	SuccessRate         float64 `json:"success_rate"`
	RetryRate           float64 `json:"retry_rate"`
	MeanStartupMS       int64   `json:"mean_startup_ms"`
	MedianFirstOutputMS int64   `json:"median_first_output_ms"`
	MedianCompletionMS  int64   `json:"median_completion_ms"`
}

type WorkflowMetrics struct {
	WorkflowID string `json:"workflow_id"`
	Metrics
}

type SystemComparison struct {
	System string `json:"system"`
	Metrics
}

// PromptRow is one Prompt Side-by-Side row: one outcome cell per workflow
// column, keyed by workflow_id.
type PromptRow struct {
	PromptID string            `json:"prompt_id"`
	Category string            `json:"category"`
	Outcomes map[string]string `json:"outcomes"`
}

type TaxonomyEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
	Kind  string `json:"kind"`
}

// Summary is the full content of one run's collected/summary.md.
type Summary struct {
	RunLabel      string             `json:"run_label"`
	GeneratedAt   string             `json:"generated_at"`
	TotalRecords  int                `json:"total_records"`
	Workflows     []WorkflowMetrics  `json:"workflow_metrics"`
	Systems       []SystemComparison `json:"system_comparison"`
	WorkflowOrder []string           `json:"workflow_order"`
	Prompts       []PromptRow        `json:"prompt_side_by_side"`
	Taxonomy      []TaxonomyEntry    `json:"failure_taxonomy"`
}

// NoFailures reports whether the taxonomy is the placeholder-only form,
// which by contract means no prompt cell may contain a failure.
func (s Summary) NoFailures() bool {
	return len(s.Taxonomy) == 1 &&
		s.Taxonomy[0].Key == TaxonomyNoneKey &&
		s.Taxonomy[0].Count == 0 &&
		s.Taxonomy[0].Kind == KindCategory
}

// OKCell renders a successful outcome cell, e.g. "ok (1234ms)".
func OKCell(completionMS int64) string {
	return fmt.Sprintf("ok (%dms)", completionMS)
}

// FailCell renders a failed outcome cell, e.g. "fail:quota_or_rate_limit".
func FailCell(reason string) string {
	if reason == "" {
		reason = ReasonUnknown
	}
	return "fail:" + reason
}

// ParseCell splits an outcome cell back into its parts. ran is false for
// the empty-cell marker. For ok cells ms carries the completion latency,
// for fail cells reason carries the taxonomy reason.
func ParseCell(cell string) (ok bool, ms int64, reason string, ran bool, err error) {
	cell = strings.TrimSpace(cell)
	switch {
	case cell == EmptyCell || cell == "":
		return false, 0, "", false, nil
	case strings.HasPrefix(cell, "fail:"):
		reason = strings.TrimPrefix(cell, "fail:")
		if reason == "" {
			return false, 0, "", true, fmt.Errorf("fail cell missing reason: %q", cell)
		}
		return false, 0, reason, true, nil
	case strings.HasPrefix(cell, "ok ("):
		body := strings.TrimPrefix(cell, "ok (")
		if !strings.HasSuffix(body, "ms)") {
			return false, 0, "", true, fmt.Errorf("malformed ok cell: %q", cell)
		}
		ms, err = strconv.ParseInt(strings.TrimSuffix(body, "ms)"), 10, 64)
		if err != nil {
			return false, 0, "", true, fmt.Errorf("malformed ok cell: %q", cell)
		}
		return true, ms, "", true, nil
	default:
		return false, 0, "", true, fmt.Errorf("unrecognized outcome cell: %q", cell)
	}
}
