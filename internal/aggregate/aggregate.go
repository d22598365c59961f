package aggregate

import (
	"sort"
	"time"

	"github.com/oguzcantas/benchsum/pkg/types"
)

// Build aggregates a run's job records into the summary that backs
// collected/summary.md. Records are deduplicated per (workflow, prompt)
// pair first, latest recorded_at winning, so the consistency contract
// between Workflow Metrics jobs counts and Prompt Side-by-Side cells
// holds by construction.
func Build(runLabel string, generatedAt time.Time, records []types.JobRecord) types.Summary {
	records = Dedup(records)

	s := types.Summary{
		RunLabel:     runLabel,
		GeneratedAt:  generatedAt.UTC().Format(time.RFC3339),
		TotalRecords: len(records),
	}

	byWorkflow := map[string][]types.JobRecord{}
	bySystem := map[string][]types.JobRecord{}
	for _, r := range records {
		byWorkflow[r.WorkflowID] = append(byWorkflow[r.WorkflowID], r)
		bySystem[r.System] = append(bySystem[r.System], r)
	}

	s.WorkflowOrder = sortedKeys(byWorkflow)
	for _, wf := range s.WorkflowOrder {
		s.Workflows = append(s.Workflows, types.WorkflowMetrics{
			WorkflowID: wf,
			Metrics:    computeMetrics(byWorkflow[wf]),
		})
	}
	for _, sys := range sortedKeys(bySystem) {
		s.Systems = append(s.Systems, types.SystemComparison{
			System:  sys,
			Metrics: computeMetrics(bySystem[sys]),
		})
	}

	s.Prompts = promptRows(records)
	s.Taxonomy = taxonomy(records)
	return s
}

func computeMetrics(records []types.JobRecord) types.Metrics {
	var successes, retried int
	startups := make([]int64, 0, len(records))
	firstOutputs := make([]int64, 0, len(records))
	completions := make([]int64, 0, len(records))
	for _, r := range records {
		if !r.Failed() {
			successes++
		}
		if r.Retries > 0 {
			retried++
		}
		startups = append(startups, r.StartupMS)
		firstOutputs = append(firstOutputs, r.FirstOutputMS)
		completions = append(completions, r.CompletionMS)
	}
	return types.Metrics{
		Jobs:                len(records),
		SuccessRate:         percent(successes, len(records)),
		RetryRate:           percent(retried, len(records)),
		MeanStartupMS:       meanMS(startups),
		MedianFirstOutputMS: medianMS(firstOutputs),
		MedianCompletionMS:  medianMS(completions),
	}
}

func promptRows(records []types.JobRecord) []types.PromptRow {
	type key struct{ prompt, category string }
	rows := map[key]*types.PromptRow{}
	for _, r := range records {
		k := key{r.PromptID, r.Category}
		row, ok := rows[k]
		if !ok {
			row = &types.PromptRow{
				PromptID: r.PromptID,
				Category: r.Category,
				Outcomes: map[string]string{},
			}
			rows[k] = row
		}
		if r.Failed() {
			row.Outcomes[r.WorkflowID] = types.FailCell(r.Reason())
		} else {
			row.Outcomes[r.WorkflowID] = types.OKCell(r.CompletionMS)
		}
	}

	out := make([]types.PromptRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PromptID != out[j].PromptID {
			return out[i].PromptID < out[j].PromptID
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func taxonomy(records []types.JobRecord) []types.TaxonomyEntry {
	categories := map[string]int{}
	reasons := map[string]int{}
	for _, r := range records {
		if !r.Failed() {
			continue
		}
		categories[r.Category]++
		reasons[r.Reason()]++
	}
	if len(categories) == 0 {
		return []types.TaxonomyEntry{{Key: types.TaxonomyNoneKey, Count: 0, Kind: types.KindCategory}}
	}

	out := make([]types.TaxonomyEntry, 0, len(categories)+len(reasons))
	for _, k := range sortedCountKeys(categories) {
		out = append(out, types.TaxonomyEntry{Key: k, Count: categories[k], Kind: types.KindCategory})
	}
	for _, k := range sortedCountKeys(reasons) {
		out = append(out, types.TaxonomyEntry{Key: k, Count: reasons[k], Kind: types.KindReason})
	}
	return out
}

// Dedup keeps one record per (workflow, prompt) pair. Latest recorded_at
// wins; unparsable or equal timestamps fall back to input order.
func Dedup(records []types.JobRecord) []types.JobRecord {
	type key struct{ workflow, prompt string }
	chosen := map[key]int{}
	at := func(i int) time.Time {
		t, err := time.Parse(time.RFC3339, records[i].RecordedAt)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	order := make([]key, 0, len(records))
	for i, r := range records {
		k := key{r.WorkflowID, r.PromptID}
		prev, ok := chosen[k]
		if !ok {
			chosen[k] = i
			order = append(order, k)
			continue
		}
		if !at(i).Before(at(prev)) {
			chosen[k] = i
		}
	}
	out := make([]types.JobRecord, 0, len(order))
	for _, k := range order {
		out = append(out, records[chosen[k]])
	}
	return out
}

func sortedKeys(m map[string][]types.JobRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedCountKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
