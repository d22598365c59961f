package compare

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/oguzcantas/benchsum/internal/report"
	"github.com/oguzcantas/benchsum/internal/store"
	"github.com/oguzcantas/benchsum/pkg/types"
)

// RunSummary pairs a run label with its parsed summary.
type RunSummary struct {
	Label   string
	Summary types.Summary
}

// Load parses the collected summary of each requested run.
func Load(st store.Store, labels []string) ([]RunSummary, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("at least one run label is required")
	}
	out := make([]RunSummary, 0, len(labels))
	for _, label := range labels {
		s, err := report.ReadSummary(st.SummaryPath(label))
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", label, err)
		}
		out = append(out, RunSummary{Label: label, Summary: s})
	}
	return out, nil
}

// BuildMarkdown renders a cross-run comparison: one success-rate table
// and one completion-latency table, systems as rows and runs as columns.
// Systems absent from a run render the empty-cell marker.
func BuildMarkdown(runs []RunSummary) string {
	var b strings.Builder
	b.WriteString("# Benchmark Comparison\n\n")
	b.WriteString(fmt.Sprintf("Runs: %d\n\n", len(runs)))

	systems := systemNames(runs)
	labels := make([]string, 0, len(runs))
	for _, r := range runs {
		labels = append(labels, r.Label)
	}

	b.WriteString("## Success Rate by System\n\n")
	writeTable(&b, systems, labels, runs, func(m types.Metrics) string {
		return fmt.Sprintf("%s (n=%d)", report.Rate(m.SuccessRate), m.Jobs)
	})

	b.WriteString("\n## Median Completion Latency by System\n\n")
	writeTable(&b, systems, labels, runs, func(m types.Metrics) string {
		return fmt.Sprintf("%dms", m.MedianCompletionMS)
	})

	return b.String()
}

func writeTable(b *strings.Builder, systems, labels []string, runs []RunSummary, cell func(types.Metrics) string) {
	b.WriteString("| system | " + strings.Join(labels, " | ") + " |\n")
	b.WriteString(strings.Repeat("|---", 1+len(labels)) + "|\n")
	for _, sys := range systems {
		cells := make([]string, 0, 1+len(runs))
		cells = append(cells, sys)
		for _, r := range runs {
			m, ok := systemMetrics(r.Summary, sys)
			if !ok {
				cells = append(cells, types.EmptyCell)
				continue
			}
			cells = append(cells, cell(m))
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
}

func systemNames(runs []RunSummary) []string {
	seen := map[string]struct{}{}
	for _, r := range runs {
		for _, sys := range r.Summary.Systems {
			seen[sys.System] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for sys := range seen {
		out = append(out, sys)
	}
	sort.Strings(out)
	return out
}

func systemMetrics(s types.Summary, system string) (types.Metrics, bool) {
	for _, sys := range s.Systems {
		if sys.System == system {
			return sys.Metrics, true
		}
	}
	return types.Metrics{}, false
}

func WriteMarkdown(path string, runs []RunSummary) error {
	return os.WriteFile(path, []byte(BuildMarkdown(runs)), 0o644)
}
