package ports

import (
	"context"
	"time"

	"PatentReporter/internal/domain"
)

// PatentSource pulls raw patent records from an upstream provider.
// A partial result together with a non-nil error is a valid, best-effort answer.
type PatentSource interface {
	FetchRawRecords(ctx context.Context) ([]domain.Patent, error)
}

// PatentCache is the flat tabular cache of raw records read instead of the source when present.
// Load returns no records and no error when the cache does not exist yet.
type PatentCache interface {
	Load(ctx context.Context) ([]domain.Patent, error)
	Save(ctx context.Context, patents []domain.Patent) error
	Location() string
}

// TextGenerator wraps the hosted language model used for summaries and classification.
type TextGenerator interface {
	GenerateSummary(ctx context.Context, title, text string) (string, error)
	ClassifyCategory(ctx context.Context, title, text string, allowedLabels []string) (string, error)
}

// RunRepository persists run history and the classified patents of each run.
type RunRepository interface {
	SaveRun(ctx context.Context, run domain.RunRecord, patents []domain.ClassifiedPatent) error
	RecentRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)
}

// ReportSink receives the rendered report (file, object storage, chat, etc.).
type ReportSink interface {
	Name() string
	Publish(ctx context.Context, runID, report string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
