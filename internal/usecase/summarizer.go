package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"PatentReporter/internal/batch"
	"PatentReporter/internal/domain"
	"PatentReporter/internal/logging"
	"PatentReporter/internal/ports"
)

const (
	minAbstractLength = 50
	maxPromptAbstract = 1000
	maxDiagnostic     = 50
)

var (
	errEmptySummary = errors.New("empty summary")
	errNoGenerator  = errors.New("no text generator configured")
)

// Summarizer attaches a short generated summary to every raw record.
type Summarizer struct {
	generator ports.TextGenerator
	batchSize int
	logger    *slog.Logger
}

// NewSummarizer wires the text generator; batchSize < 1 uses batch.DefaultSize.
func NewSummarizer(gen ports.TextGenerator, batchSize int, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Summarizer{generator: gen, batchSize: batchSize, logger: logger}
}

// Name identifies the stage in logs and in the error trail.
func (s *Summarizer) Name() string {
	return "Summarizer"
}

type summaryOutcome struct {
	patent     domain.Patent
	diagnostic string
}

// Run summarizes state.RawRecords into state.SummarizedRecords, one output per input in the same order.
func (s *Summarizer) Run(ctx context.Context, state *domain.PipelineState) error {
	s.logger.Info("summarizing patents", "count", len(state.RawRecords))

	outcomes := batch.Run(ctx, batch.Config{Size: s.batchSize, Logger: s.logger},
		state.RawRecords, s.summarizeOne,
		func(f batch.Failure[domain.Patent]) (summaryOutcome, bool) {
			return fallbackSummary(f.Item, f.Err), true
		})

	summarized := make([]domain.Patent, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.diagnostic != "" {
			state.AppendError("%s", outcome.diagnostic)
		}
		summarized = append(summarized, outcome.patent)
	}

	state.SummarizedRecords = summarized
	state.Notify("Summarized %d patents", len(summarized))
	s.logger.Info("summaries done", "count", len(summarized))
	return nil
}

// summarizeOne never returns an error: every failure is folded into the abstract fallback.
func (s *Summarizer) summarizeOne(ctx context.Context, p domain.Patent) (summaryOutcome, error) {
	if len([]rune(p.Abstract)) < minAbstractLength {
		return summaryOutcome{patent: p.WithSummary(p.Abstract)}, nil
	}
	if s.generator == nil {
		return fallbackSummary(p, errNoGenerator), nil
	}

	summary, err := s.generator.GenerateSummary(ctx, p.InventionName, truncateRunes(p.Abstract, maxPromptAbstract))
	if err != nil {
		return fallbackSummary(p, err), nil
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fallbackSummary(p, errEmptySummary), nil
	}
	return summaryOutcome{patent: p.WithSummary(summary)}, nil
}

func fallbackSummary(p domain.Patent, err error) summaryOutcome {
	return summaryOutcome{
		patent:     p.WithSummary(p.Abstract),
		diagnostic: fmt.Sprintf("Summarizer: %s: %s", p.InventionName, truncateRunes(err.Error(), maxDiagnostic)),
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
