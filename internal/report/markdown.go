package report

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/oguzcantas/benchsum/pkg/types"
)

const metricsHeader = "| workflow_id | jobs | success_rate | retry_rate | mean_startup_ms | median_first_output_ms | median_completion_ms |"
const systemsHeader = "| system | jobs | success_rate | retry_rate | mean_startup_ms | median_first_output_ms | median_completion_ms |"
const taxonomyHeader = "| key | count | kind |"

// BuildMarkdown renders a summary in the collected/summary.md format:
// title, Generated and Total records lines, then the Workflow Metrics,
// System Comparison, Prompt Side-by-Side, and Failure Taxonomy tables in
// that order.
func BuildMarkdown(s types.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Benchmark Summary: %s\n\n", s.RunLabel)
	fmt.Fprintf(&b, "Generated: %s\n\n", s.GeneratedAt)
	fmt.Fprintf(&b, "Total records: %d\n\n", s.TotalRecords)

	b.WriteString("## Workflow Metrics\n\n")
	b.WriteString(metricsHeader + "\n")
	b.WriteString(separator(7) + "\n")
	for _, wf := range s.Workflows {
		writeMetricsRow(&b, wf.WorkflowID, wf.Metrics)
	}

	b.WriteString("\n## System Comparison\n\n")
	b.WriteString(systemsHeader + "\n")
	b.WriteString(separator(7) + "\n")
	for _, sys := range s.Systems {
		writeMetricsRow(&b, sys.System, sys.Metrics)
	}

	b.WriteString("\n## Prompt Side-by-Side\n\n")
	b.WriteString("| prompt_id | category | " + strings.Join(s.WorkflowOrder, " | ") + " |\n")
	b.WriteString(separator(2+len(s.WorkflowOrder)) + "\n")
	for _, row := range s.Prompts {
		cells := make([]string, 0, 2+len(s.WorkflowOrder))
		cells = append(cells, row.PromptID, row.Category)
		for _, wf := range s.WorkflowOrder {
			cell, ok := row.Outcomes[wf]
			if !ok {
				cell = types.EmptyCell
			}
			cells = append(cells, cell)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	b.WriteString("\n## Failure Taxonomy\n\n")
	b.WriteString(taxonomyHeader + "\n")
	b.WriteString(separator(3) + "\n")
	for _, e := range s.Taxonomy {
		fmt.Fprintf(&b, "| %s | %d | %s |\n", e.Key, e.Count, e.Kind)
	}

	return b.String()
}

func writeMetricsRow(b *strings.Builder, key string, m types.Metrics) {
	fmt.Fprintf(b, "| %s | %d | %s | %s | %d | %d | %d |\n",
		key, m.Jobs, Rate(m.SuccessRate), Rate(m.RetryRate),
		m.MeanStartupMS, m.MedianFirstOutputMS, m.MedianCompletionMS)
}

// Rate renders a percentage with one decimal, e.g. "94.4%".
func Rate(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}

func separator(columns int) string {
	return strings.Repeat("|---", columns) + "|"
}

func WriteMarkdown(path string, s types.Summary) error {
	return os.WriteFile(path, []byte(BuildMarkdown(s)), 0o644)
}
