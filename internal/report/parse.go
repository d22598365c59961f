package report

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/oguzcantas/benchsum/pkg/types"
)

// ParseMarkdown reads a collected/summary.md back into a Summary. The
// required sections must appear in order with the exact header rows; any
// deviation is an error naming the offending line.
func ParseMarkdown(raw []byte) (types.Summary, error) {
	p := &parser{lines: strings.Split(string(raw), "\n")}
	s := types.Summary{}

	title, err := p.expectPrefix("# Benchmark Summary: ")
	if err != nil {
		return s, err
	}
	s.RunLabel = title

	generated, err := p.expectPrefix("Generated: ")
	if err != nil {
		return s, err
	}
	s.GeneratedAt = generated

	totalRaw, err := p.expectPrefix("Total records: ")
	if err != nil {
		return s, err
	}
	total, err := strconv.Atoi(totalRaw)
	if err != nil {
		return s, fmt.Errorf("summary line %d: bad total records %q", p.pos, totalRaw)
	}
	s.TotalRecords = total

	if err := p.expectSection("## Workflow Metrics", metricsHeader); err != nil {
		return s, err
	}
	for _, cells := range p.tableRows() {
		m, err := parseMetricsRow(cells, 7, p.pos)
		if err != nil {
			return s, err
		}
		s.Workflows = append(s.Workflows, types.WorkflowMetrics{WorkflowID: cells[0], Metrics: m})
	}

	if err := p.expectSection("## System Comparison", systemsHeader); err != nil {
		return s, err
	}
	for _, cells := range p.tableRows() {
		m, err := parseMetricsRow(cells, 7, p.pos)
		if err != nil {
			return s, err
		}
		s.Systems = append(s.Systems, types.SystemComparison{System: cells[0], Metrics: m})
	}

	if err := p.expectHeading("## Prompt Side-by-Side"); err != nil {
		return s, err
	}
	header, err := p.promptHeader()
	if err != nil {
		return s, err
	}
	s.WorkflowOrder = header
	for _, cells := range p.tableRows() {
		if len(cells) != 2+len(header) {
			return s, fmt.Errorf("summary line %d: prompt row has %d cells, want %d", p.pos, len(cells), 2+len(header))
		}
		row := types.PromptRow{PromptID: cells[0], Category: cells[1], Outcomes: map[string]string{}}
		for i, wf := range header {
			cell := cells[2+i]
			if cell == types.EmptyCell {
				continue
			}
			if _, _, _, _, err := types.ParseCell(cell); err != nil {
				return s, fmt.Errorf("summary line %d: %w", p.pos, err)
			}
			row.Outcomes[wf] = cell
		}
		s.Prompts = append(s.Prompts, row)
	}

	if err := p.expectSection("## Failure Taxonomy", taxonomyHeader); err != nil {
		return s, err
	}
	for _, cells := range p.tableRows() {
		if len(cells) != 3 {
			return s, fmt.Errorf("summary line %d: taxonomy row has %d cells, want 3", p.pos, len(cells))
		}
		count, err := strconv.Atoi(cells[1])
		if err != nil {
			return s, fmt.Errorf("summary line %d: bad taxonomy count %q", p.pos, cells[1])
		}
		if cells[2] != types.KindCategory && cells[2] != types.KindReason {
			return s, fmt.Errorf("summary line %d: bad taxonomy kind %q", p.pos, cells[2])
		}
		s.Taxonomy = append(s.Taxonomy, types.TaxonomyEntry{Key: cells[0], Count: count, Kind: cells[2]})
	}

	if len(s.Taxonomy) == 0 {
		return s, fmt.Errorf("summary: failure taxonomy table has no rows")
	}
	return s, nil
}

// ReadSummary parses the summary.md at path.
func ReadSummary(path string) (types.Summary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Summary{}, err
	}
	s, err := ParseMarkdown(raw)
	if err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

type parser struct {
	lines []string
	pos   int
}

func (p *parser) next() (string, bool) {
	for p.pos < len(p.lines) {
		line := strings.TrimRight(p.lines[p.pos], " \t\r")
		p.pos++
		if line == "" {
			continue
		}
		return line, true
	}
	return "", false
}

func (p *parser) expectPrefix(prefix string) (string, error) {
	line, ok := p.next()
	if !ok {
		return "", fmt.Errorf("summary: unexpected end of file, want %q", prefix)
	}
	if !strings.HasPrefix(line, prefix) {
		return "", fmt.Errorf("summary line %d: want %q, got %q", p.pos, prefix, line)
	}
	value := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	if value == "" {
		return "", fmt.Errorf("summary line %d: empty value after %q", p.pos, prefix)
	}
	return value, nil
}

func (p *parser) expectHeading(heading string) error {
	line, ok := p.next()
	if !ok {
		return fmt.Errorf("summary: missing section %q", heading)
	}
	if line != heading {
		return fmt.Errorf("summary line %d: want section %q, got %q", p.pos, heading, line)
	}
	return nil
}

func (p *parser) expectSection(heading, header string) error {
	if err := p.expectHeading(heading); err != nil {
		return err
	}
	line, ok := p.next()
	if !ok || line != header {
		return fmt.Errorf("summary line %d: bad header row for %s", p.pos, heading)
	}
	if err := p.expectSeparator(); err != nil {
		return err
	}
	return nil
}

func (p *parser) expectSeparator() error {
	line, ok := p.next()
	if !ok || !strings.HasPrefix(line, "|---") {
		return fmt.Errorf("summary line %d: missing table separator row", p.pos)
	}
	return nil
}

func (p *parser) promptHeader() ([]string, error) {
	line, ok := p.next()
	if !ok {
		return nil, fmt.Errorf("summary: missing prompt table header")
	}
	cells := splitRow(line)
	if len(cells) < 2 || cells[0] != "prompt_id" || cells[1] != "category" {
		return nil, fmt.Errorf("summary line %d: bad prompt table header %q", p.pos, line)
	}
	if err := p.expectSeparator(); err != nil {
		return nil, err
	}
	return cells[2:], nil
}

// tableRows consumes data rows until the next non-row line, which is
// pushed back for the caller.
func (p *parser) tableRows() [][]string {
	rows := [][]string{}
	for {
		line, ok := p.next()
		if !ok {
			return rows
		}
		if !strings.HasPrefix(line, "|") {
			p.pos--
			return rows
		}
		rows = append(rows, splitRow(line))
	}
}

func splitRow(line string) []string {
	line = strings.Trim(line, "|")
	parts := strings.Split(line, "|")
	out := make([]string, 0, len(parts))
	for _, c := range parts {
		out = append(out, strings.TrimSpace(c))
	}
	return out
}

func parseMetricsRow(cells []string, width, pos int) (types.Metrics, error) {
	if len(cells) != width {
		return types.Metrics{}, fmt.Errorf("summary line %d: metrics row has %d cells, want %d", pos, len(cells), width)
	}
	jobs, err := strconv.Atoi(cells[1])
	if err != nil {
		return types.Metrics{}, fmt.Errorf("summary line %d: bad jobs %q", pos, cells[1])
	}
	success, err := parseRate(cells[2])
	if err != nil {
		return types.Metrics{}, fmt.Errorf("summary line %d: %w", pos, err)
	}
	retry, err := parseRate(cells[3])
	if err != nil {
		return types.Metrics{}, fmt.Errorf("summary line %d: %w", pos, err)
	}
	latencies := make([]int64, 3)
	for i, cell := range cells[4:7] {
		v, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return types.Metrics{}, fmt.Errorf("summary line %d: bad latency %q", pos, cell)
		}
		latencies[i] = v
	}
	return types.Metrics{
		Jobs:                jobs,
		SuccessRate:         success,
		RetryRate:           retry,
		MeanStartupMS:       latencies[0],
		MedianFirstOutputMS: latencies[1],
		MedianCompletionMS:  latencies[2],
	}, nil
}

func parseRate(cell string) (float64, error) {
	if !strings.HasSuffix(cell, "%") {
		return 0, fmt.Errorf("bad rate %q", cell)
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(cell, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("bad rate %q", cell)
	}
	return v, nil
}
