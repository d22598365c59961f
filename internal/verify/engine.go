package verify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"

	"github.com/oguzcantas/benchsum/internal/report"
	"github.com/oguzcantas/benchsum/pkg/types"
)

type Options struct {
	// SummaryPath locates the summary.md to check. Ignored when Summary
	// is set directly.
	SummaryPath string
	Summary     *types.Summary
	// RecordsPath optionally points at the run's records.json for
	// cross-checking the summary against the raw records.
	RecordsPath string
}

// Run checks a summary against the format's consistency contract: record
// counts, rate arithmetic, outcome cells, and the failure taxonomy must
// all agree with each other (and with the raw records when provided).
func Run(opts Options) Report {
	r := Report{Passed: true, ExitCode: ExitPass}

	var s types.Summary
	if opts.Summary != nil {
		s = *opts.Summary
	} else {
		loaded, err := report.ReadSummary(opts.SummaryPath)
		if err != nil {
			code := ExitFormatFail
			if errors.Is(err, fs.ErrNotExist) {
				code = ExitMissing
			}
			r.addFailure("summary", "read", code, err)
			return r
		}
		s = loaded
	}
	r.RunLabel = s.RunLabel

	checkTotals(&r, s)
	checkWorkflowRates(&r, s)
	checkTaxonomy(&r, s)

	if opts.RecordsPath != "" {
		checkRecords(&r, s, opts.RecordsPath)
	}
	return r
}

// checkTotals verifies Total records against the jobs columns of both
// aggregate tables.
func checkTotals(r *Report, s types.Summary) {
	sum := 0
	for _, wf := range s.Workflows {
		sum += wf.Jobs
	}
	if sum != s.TotalRecords {
		r.addFailure("workflow_metrics", "total_records", ExitCountMismatch,
			fmt.Errorf("workflow jobs sum to %d, total records is %d", sum, s.TotalRecords))
	} else {
		r.addPass("workflow_metrics", "total_records")
	}

	sum = 0
	for _, sys := range s.Systems {
		sum += sys.Jobs
	}
	if sum != s.TotalRecords {
		r.addFailure("system_comparison", "total_records", ExitCountMismatch,
			fmt.Errorf("system jobs sum to %d, total records is %d", sum, s.TotalRecords))
	} else {
		r.addPass("system_comparison", "total_records")
	}
}

// checkWorkflowRates verifies that each workflow's success_rate times jobs
// is an integer success count (within one-decimal rendering tolerance) and
// that the count agrees with the ok/fail cells in that workflow's column.
func checkWorkflowRates(r *Report, s types.Summary) {
	for _, wf := range s.Workflows {
		successes, ok := integralCount(wf.SuccessRate, wf.Jobs)
		if !ok {
			r.addFailure("workflow_metrics", "success_rate:"+wf.WorkflowID, ExitRateMismatch,
				fmt.Errorf("success_rate %s of %d jobs is not an integer count", report.Rate(wf.SuccessRate), wf.Jobs))
			continue
		}
		if _, ok := integralCount(wf.RetryRate, wf.Jobs); !ok {
			r.addFailure("workflow_metrics", "retry_rate:"+wf.WorkflowID, ExitRateMismatch,
				fmt.Errorf("retry_rate %s of %d jobs is not an integer count", report.Rate(wf.RetryRate), wf.Jobs))
		}

		okCells, failCells := cellCounts(s, wf.WorkflowID)
		if okCells != successes {
			r.addFailure("prompt_side_by_side", "success_count:"+wf.WorkflowID, ExitRateMismatch,
				fmt.Errorf("%d ok cells but success_rate implies %d successes", okCells, successes))
			continue
		}
		if okCells+failCells != wf.Jobs {
			r.addFailure("prompt_side_by_side", "job_count:"+wf.WorkflowID, ExitCountMismatch,
				fmt.Errorf("%d outcome cells for %d jobs", okCells+failCells, wf.Jobs))
			continue
		}
		r.addPass("prompt_side_by_side", "outcomes:"+wf.WorkflowID)
	}
}

func checkTaxonomy(r *Report, s types.Summary) {
	wantReasons := map[string]int{}
	wantCategories := map[string]int{}
	for _, row := range s.Prompts {
		for _, cell := range row.Outcomes {
			ok, _, reason, ran, err := types.ParseCell(cell)
			if err != nil || !ran || ok {
				continue
			}
			wantReasons[reason]++
			wantCategories[row.Category]++
		}
	}

	if len(wantReasons) == 0 {
		if !s.NoFailures() {
			r.addFailure("failure_taxonomy", "placeholder", ExitTaxonomyMismatch,
				fmt.Errorf("no fail cells but taxonomy is not the single (none, 0, category) row"))
		} else {
			r.addPass("failure_taxonomy", "placeholder")
		}
		return
	}
	if s.NoFailures() {
		r.addFailure("failure_taxonomy", "placeholder", ExitTaxonomyMismatch,
			fmt.Errorf("taxonomy claims no failures but fail cells are present"))
		return
	}

	gotReasons := map[string]int{}
	gotCategories := map[string]int{}
	for _, e := range s.Taxonomy {
		if e.Key == types.TaxonomyNoneKey {
			r.addFailure("failure_taxonomy", "placeholder", ExitTaxonomyMismatch,
				fmt.Errorf("placeholder row mixed with real taxonomy entries"))
			return
		}
		switch e.Kind {
		case types.KindReason:
			gotReasons[e.Key] = e.Count
		case types.KindCategory:
			gotCategories[e.Key] = e.Count
		}
	}

	passed := true
	passed = matchCounts(r, "reason", wantReasons, gotReasons) && passed
	passed = matchCounts(r, "category", wantCategories, gotCategories) && passed
	if passed {
		r.addPass("failure_taxonomy", "counts")
	}
}

func matchCounts(r *Report, kind string, want, got map[string]int) bool {
	passed := true
	for key, n := range want {
		gotN, ok := got[key]
		if !ok {
			r.addFailure("failure_taxonomy", kind+":"+key, ExitTaxonomyMismatch,
				fmt.Errorf("%d fail cells with %s %q but no taxonomy row", n, kind, key))
			passed = false
			continue
		}
		if gotN != n {
			r.addFailure("failure_taxonomy", kind+":"+key, ExitTaxonomyMismatch,
				fmt.Errorf("taxonomy counts %d for %s %q, cells count %d", gotN, kind, key, n))
			passed = false
		}
	}
	for key := range got {
		if _, ok := want[key]; !ok {
			r.addFailure("failure_taxonomy", kind+":"+key, ExitTaxonomyMismatch,
				fmt.Errorf("taxonomy row for %s %q has no matching fail cells", kind, key))
			passed = false
		}
	}
	return passed
}

// checkRecords cross-checks the summary against the run's raw records.
func checkRecords(r *Report, s types.Summary, recordsPath string) {
	raw, err := os.ReadFile(recordsPath)
	if err != nil {
		code := ExitFormatFail
		if errors.Is(err, fs.ErrNotExist) {
			code = ExitMissing
		}
		r.addFailure("records", "read", code, err)
		return
	}
	var records []types.JobRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		r.addFailure("records", "decode", ExitFormatFail, err)
		return
	}

	if len(records) != s.TotalRecords {
		r.addFailure("records", "total_records", ExitCountMismatch,
			fmt.Errorf("%d records on disk, summary says %d", len(records), s.TotalRecords))
	} else {
		r.addPass("records", "total_records")
	}

	perWorkflow := map[string]int{}
	for _, rec := range records {
		perWorkflow[rec.WorkflowID]++
	}
	for _, wf := range s.Workflows {
		if perWorkflow[wf.WorkflowID] != wf.Jobs {
			r.addFailure("records", "jobs:"+wf.WorkflowID, ExitCountMismatch,
				fmt.Errorf("%d records for workflow, summary says %d jobs", perWorkflow[wf.WorkflowID], wf.Jobs))
		}
		delete(perWorkflow, wf.WorkflowID)
	}
	for wf, n := range perWorkflow {
		r.addFailure("records", "jobs:"+wf, ExitCountMismatch,
			fmt.Errorf("%d records for workflow %s absent from summary", n, wf))
	}
}

// cellCounts tallies ok and fail cells in one workflow's column.
func cellCounts(s types.Summary, workflowID string) (okCells, failCells int) {
	for _, row := range s.Prompts {
		cell, present := row.Outcomes[workflowID]
		if !present {
			continue
		}
		ok, _, _, ran, err := types.ParseCell(cell)
		if err != nil || !ran {
			continue
		}
		if ok {
			okCells++
		} else {
			failCells++
		}
	}
	return okCells, failCells
}

// integralCount inverts a one-decimal percentage back to a count. The
// tolerance covers the rounding applied when the rate was rendered.
func integralCount(rate float64, jobs int) (int, bool) {
	if jobs == 0 {
		return 0, rate == 0
	}
	raw := rate / 100 * float64(jobs)
	count := math.Round(raw)
	tol := 0.0005*float64(jobs) + 1e-9
	if math.Abs(raw-count) > tol {
		return 0, false
	}
	return int(count), true
}

func (r *Report) addPass(section, check string) {
	r.Checks = append(r.Checks, CheckResult{Section: section, Check: check, Passed: true, Message: "ok"})
}

func (r *Report) addFailure(section, check string, exit int, err error) {
	r.Passed = false
	if r.ExitCode == ExitPass || exit > r.ExitCode {
		r.ExitCode = exit
	}
	msg := err.Error()
	r.Checks = append(r.Checks, CheckResult{Section: section, Check: check, Passed: false, Message: msg})
	r.Violations = append(r.Violations, fmt.Sprintf("%s/%s: %s", section, check, msg))
}

func WriteJSON(path string, r Report) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// BuildMarkdown renders a verification report for humans.
func BuildMarkdown(r Report) string {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	out := fmt.Sprintf("# Benchmark Summary Verification: %s\n\n- Status: **%s**\n- Exit Code: `%d`\n\n## Checks\n\n| Section | Check | Passed | Message |\n|---|---|---:|---|\n",
		r.RunLabel, status, r.ExitCode)
	for _, c := range r.Checks {
		out += fmt.Sprintf("| %s | %s | %t | %s |\n", c.Section, c.Check, c.Passed, c.Message)
	}
	if len(r.Violations) > 0 {
		out += "\n## Violations\n\n"
		for _, v := range r.Violations {
			out += "- " + v + "\n"
		}
	}
	return out
}

func WriteMarkdown(path string, r Report) error {
	return os.WriteFile(path, []byte(BuildMarkdown(r)), 0o644)
}
