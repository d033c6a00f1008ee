package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"PatentReporter/internal/domain"
	"PatentReporter/internal/logging"
)

const (
	reportTimeLayout        = "2006-01-02 15:04:05"
	reportSeparator         = "\n\n---\n\n"
	DefaultPerCategoryLimit = 30
)

const reportFooter = `## Notes
- This report was generated automatically by an AI pipeline.
- Patent summaries were written by a large language model.
- Categories were assigned by the model from the invention name and summary.
- Search KIPRIS by application number for the full patent documents.`

// Reporter renders the final report. It makes no external calls and, for a fixed clock, is deterministic.
type Reporter struct {
	taxonomy         domain.Taxonomy
	perCategoryLimit int
	now              func() time.Time
	logger           *slog.Logger
}

// NewReporter builds the stage; a nil clock means time.Now and limit < 1 means DefaultPerCategoryLimit.
func NewReporter(taxonomy domain.Taxonomy, perCategoryLimit int, now func() time.Time, logger *slog.Logger) *Reporter {
	if perCategoryLimit < 1 {
		perCategoryLimit = DefaultPerCategoryLimit
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Reporter{taxonomy: taxonomy, perCategoryLimit: perCategoryLimit, now: now, logger: logger}
}

// Name identifies the stage in logs and in the error trail.
func (r *Reporter) Name() string {
	return "Reporter"
}

// Run writes state.FinalReport.
func (r *Reporter) Run(_ context.Context, state *domain.PipelineState) error {
	state.FinalReport = r.Render(state)
	state.Notify("Report generated")
	r.logger.Info("report generated", "bytes", len(state.FinalReport))
	return nil
}

// Render assembles header, distribution table, per-category sections, errors and footer.
func (r *Reporter) Render(state *domain.PipelineState) string {
	categorized := &state.CategorizedRecords
	total := categorized.Total()

	parts := []string{r.header(state, total)}
	if table := distributionTable(categorized, total); table != "" {
		parts = append(parts, table)
	}
	if sections := r.categorySections(categorized); sections != "" {
		parts = append(parts, sections)
	}
	if len(state.ErrorLog) > 0 {
		parts = append(parts, errorSection(state.ErrorLog))
	}
	parts = append(parts, reportFooter)

	return strings.Join(parts, reportSeparator)
}

func (r *Reporter) header(state *domain.PipelineState, processed int) string {
	source := state.Source
	if source == "" {
		source = domain.NotAvailable
	}

	var b strings.Builder
	b.WriteString("# KIPRIS Patent AI Summary Report\n\n")
	b.WriteString("## Overview\n")
	fmt.Fprintf(&b, "- **Collected at**: %s\n", r.now().Format(reportTimeLayout))
	fmt.Fprintf(&b, "- **Data source**: %s\n", source)
	fmt.Fprintf(&b, "- **Patents collected**: %d\n", len(state.RawRecords))
	fmt.Fprintf(&b, "- **Patents processed**: %d", processed)
	return b.String()
}

type categoryCount struct {
	label string
	count int
}

func distributionTable(categorized *domain.Categorized, total int) string {
	if total <= 0 {
		return ""
	}

	var counts []categoryCount
	for _, label := range categorized.Labels() {
		if n := categorized.Count(label); n > 0 {
			counts = append(counts, categoryCount{label: label, count: n})
		}
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].count > counts[j].count
	})

	rows := make([]string, 0, len(counts))
	for _, c := range counts {
		share := float64(c.count) / float64(total) * 100
		rows = append(rows, fmt.Sprintf("| %s | %d | %.1f%% |", c.label, c.count, share))
	}

	return "## Patents by Category\n\n" +
		"| Category | Patents | Share |\n|----------|---------|-------|\n" +
		strings.Join(rows, "\n")
}

func (r *Reporter) categorySections(categorized *domain.Categorized) string {
	var sections []string
	for _, label := range r.taxonomy.Labels() {
		patents := categorized.Patents(label)
		if len(patents) == 0 {
			continue
		}

		shown := patents[:min(len(patents), r.perCategoryLimit)]
		items := make([]string, 0, len(shown))
		for i, p := range shown {
			items = append(items, fmt.Sprintf("#### %d. %s\n- **Application No.**: %s\n- **Registration No.**: %s\n- **Summary**: %s",
				i+1, p.InventionName, p.ApplicationNumber, p.RegistrationNumber, p.SummaryOrAbstract()))
		}

		sections = append(sections, fmt.Sprintf("### %s (%d)\n\n%s", label, len(patents), strings.Join(items, "\n")))
	}

	if len(sections) == 0 {
		return ""
	}
	return "## Top Patents by Category\n\n" + strings.Join(sections, reportSeparator)
}

func errorSection(lines []string) string {
	items := make([]string, len(lines))
	for i, line := range lines {
		items[i] = "- " + line
	}
	return "## Errors Encountered\n\n" + strings.Join(items, "\n")
}
