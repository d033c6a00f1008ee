package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"PatentReporter/internal/batch"
	"PatentReporter/internal/domain"
	"PatentReporter/internal/logging"
	"PatentReporter/internal/ports"
)

// Organizer assigns each summarized record to exactly one label of the taxonomy.
// A failed classification call lands in the catch-all bucket, same as an unrecognised label.
type Organizer struct {
	generator ports.TextGenerator
	taxonomy  domain.Taxonomy
	batchSize int
	logger    *slog.Logger
}

// NewOrganizer wires the classifier and the closed category set.
func NewOrganizer(gen ports.TextGenerator, taxonomy domain.Taxonomy, batchSize int, logger *slog.Logger) *Organizer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Organizer{generator: gen, taxonomy: taxonomy, batchSize: batchSize, logger: logger}
}

// Name identifies the stage in logs and in the error trail.
func (o *Organizer) Name() string {
	return "Organizer"
}

type classification struct {
	label      string
	patent     domain.Patent
	diagnostic string
}

// Run fills state.CategorizedRecords from state.SummarizedRecords.
func (o *Organizer) Run(ctx context.Context, state *domain.PipelineState) error {
	o.logger.Info("classifying patents", "count", len(state.SummarizedRecords))

	results := batch.Run(ctx, batch.Config{Size: o.batchSize, Logger: o.logger},
		state.SummarizedRecords, o.classifyOne,
		func(f batch.Failure[domain.Patent]) (classification, bool) {
			return classification{
				label:      domain.OtherCategory,
				patent:     f.Item,
				diagnostic: fmt.Sprintf("Organizer: %s: %s", f.Item.InventionName, truncateRunes(f.Err.Error(), maxDiagnostic)),
			}, true
		})

	var categorized domain.Categorized
	for _, result := range results {
		if result.diagnostic != "" {
			state.AppendError("%s", result.diagnostic)
		}
		categorized.Add(result.label, result.patent)
	}
	state.CategorizedRecords = categorized

	state.Notify("Classified %d patents into %d categories", categorized.Total(), len(categorized.Labels()))
	if dist := o.distribution(&categorized); dist != "" {
		state.Notify("Category distribution: %s", dist)
		o.logger.Info("category distribution", "categories", dist)
	}
	return nil
}

func (o *Organizer) classifyOne(ctx context.Context, p domain.Patent) (classification, error) {
	if o.generator == nil {
		return classification{}, errNoGenerator
	}
	raw, err := o.generator.ClassifyCategory(ctx, p.InventionName, p.SummaryOrAbstract(), o.taxonomy.Labels())
	if err != nil {
		return classification{}, err
	}
	label := o.taxonomy.Resolve(raw)
	if label == domain.OtherCategory && strings.TrimSpace(raw) != domain.OtherCategory {
		o.logger.Debug("unrecognised category", "title", p.InventionName, "raw", raw)
	}
	return classification{label: label, patent: p}, nil
}

func (o *Organizer) distribution(c *domain.Categorized) string {
	var parts []string
	for _, label := range o.taxonomy.Labels() {
		if n := c.Count(label); n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", label, n))
		}
	}
	return strings.Join(parts, ", ")
}
