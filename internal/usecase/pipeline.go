package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"PatentReporter/internal/domain"
	"PatentReporter/internal/logging"
	"PatentReporter/internal/ports"
)

// Stage is one step of the pipeline. It owns the state for the duration of Run.
type Stage interface {
	Name() string
	Run(ctx context.Context, state *domain.PipelineState) error
}

// PipelineDeps wires the four stages and the optional outbound adapters.
type PipelineDeps struct {
	Collector  Stage
	Summarizer Stage
	Organizer  Stage
	Reporter   Stage
	Repository ports.RunRepository
	Sinks      []ports.ReportSink
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Pipeline implements the collect → summarize → organize → report workflow.
type Pipeline struct {
	stages     []Stage
	repository ports.RunRepository
	sinks      []ports.ReportSink
	logger     *slog.Logger
	clock      func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewPipeline constructs the orchestration component; nil stages are skipped.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	var stages []Stage
	for _, stage := range []Stage{deps.Collector, deps.Summarizer, deps.Organizer, deps.Reporter} {
		if stage != nil {
			stages = append(stages, stage)
		}
	}

	return &Pipeline{
		stages:     stages,
		repository: deps.Repository,
		sinks:      deps.Sinks,
		logger:     logger,
		clock:      clock,
		entropy:    ulid.Monotonic(rand.Reader, 0),
	}
}

// Run executes every stage in order on a fresh state. Stage failures are recorded in the state's
// error log and never stop later stages. The returned error only reports sink or repository
// failures; the state (and its report) is returned in every case.
func (p *Pipeline) Run(ctx context.Context) (*domain.PipelineState, error) {
	startedAt := p.clock()
	state := domain.NewPipelineState(p.newRunID(startedAt), startedAt)
	logger := p.logger.With("run_id", state.RunID)
	logger.Info("pipeline started", "stages", len(p.stages))

	for _, stage := range p.stages {
		if err := runStage(ctx, stage, state); err != nil {
			logger.Error("stage failed", "stage", stage.Name(), "error", err)
			state.AppendError("%s: %v", stage.Name(), err)
		}
	}

	var errs []error
	if state.FinalReport != "" {
		for _, sink := range p.sinks {
			if err := sink.Publish(ctx, state.RunID, state.FinalReport); err != nil {
				logger.Error("publish report", "sink", sink.Name(), "error", err)
				errs = append(errs, fmt.Errorf("publish to %s: %w", sink.Name(), err))
				continue
			}
			logger.Info("report published", "sink", sink.Name())
		}
	}

	if p.repository != nil {
		run, patents := buildRunRecord(state, p.clock())
		if err := p.repository.SaveRun(ctx, run, patents); err != nil {
			logger.Error("persist run", "error", err)
			errs = append(errs, fmt.Errorf("persist run %s: %w", state.RunID, err))
		}
	}

	logger.Info("pipeline finished",
		"collected", len(state.RawRecords),
		"processed", state.CategorizedRecords.Total(),
		"errors", len(state.ErrorLog))
	return state, errors.Join(errs...)
}

func runStage(ctx context.Context, stage Stage, state *domain.PipelineState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return stage.Run(ctx, state)
}

func (p *Pipeline) newRunID(at time.Time) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), p.entropy).String()
}

func buildRunRecord(state *domain.PipelineState, finishedAt time.Time) (domain.RunRecord, []domain.ClassifiedPatent) {
	counts := map[string]int{}
	var patents []domain.ClassifiedPatent
	for _, label := range state.CategorizedRecords.Labels() {
		group := state.CategorizedRecords.Patents(label)
		counts[label] = len(group)
		for _, patent := range group {
			patents = append(patents, domain.ClassifiedPatent{RunID: state.RunID, Category: label, Patent: patent})
		}
	}

	status := domain.RunStatusCompleted
	if len(state.ErrorLog) > 0 {
		status = domain.RunStatusPartial
	}

	return domain.RunRecord{
		ID:             state.RunID,
		StartedAt:      state.StartedAt,
		FinishedAt:     finishedAt,
		Source:         state.Source,
		Collected:      len(state.RawRecords),
		Processed:      state.CategorizedRecords.Total(),
		CategoryCounts: counts,
		Errors:         append([]string(nil), state.ErrorLog...),
		Report:         state.FinalReport,
		Status:         status,
	}, patents
}
