package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"PatentReporter/internal/config"
	"PatentReporter/internal/domain"
	"PatentReporter/internal/infrastructure/csvcache"
	"PatentReporter/internal/infrastructure/kipris"
	"PatentReporter/internal/infrastructure/llm"
	"PatentReporter/internal/infrastructure/ml"
	"PatentReporter/internal/infrastructure/scheduler"
	"PatentReporter/internal/infrastructure/sink"
	"PatentReporter/internal/infrastructure/storage"
	"PatentReporter/internal/infrastructure/telegram"
	"PatentReporter/internal/logging"
	"PatentReporter/internal/ports"
	"PatentReporter/internal/usecase"
)

const stopTimeout = 30 * time.Second

// ErrHistoryDisabled is returned by History when no run repository is configured.
var ErrHistoryDisabled = errors.New("run history requires storage.dsn")

// Options overrides collaborators that are otherwise built from configuration.
type Options struct {
	HTTPClient *http.Client
	Clock      func() time.Time
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	pipeline   *usecase.Pipeline
	repository *storage.SQLRepository
}

// New builds the application from a validated configuration.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts Options) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	clock := opts.Clock
	if clock == nil {
		loc := cfg.Scheduler.Location()
		clock = func() time.Time { return time.Now().In(loc) }
	}

	generator, err := newGenerator(cfg, opts.HTTPClient)
	if err != nil {
		return nil, err
	}

	var cache ports.PatentCache
	if cfg.Cache.Path != "" {
		cache = csvcache.New(cfg.Cache.Path)
	}
	source := kipris.NewClient(cfg.Kipris, opts.HTTPClient, cfg.Pipeline.BatchSize, baseLogger.With("component", "kipris"))
	taxonomy := cfg.Pipeline.Taxonomy()

	app := &Application{cfg: cfg, logger: baseLogger}

	var repository ports.RunRepository
	if cfg.Storage.DSN != "" {
		repo, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("open run history: %w", err)
		}
		app.repository = repo
		repository = repo
	}

	sinks := app.buildSinks(ctx, opts.HTTPClient)

	app.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Collector:  usecase.NewCollector(source, cache, baseLogger.With("component", "collector")),
		Summarizer: usecase.NewSummarizer(generator, cfg.Pipeline.BatchSize, baseLogger.With("component", "summarizer")),
		Organizer:  usecase.NewOrganizer(generator, taxonomy, cfg.Pipeline.BatchSize, baseLogger.With("component", "organizer")),
		Reporter:   usecase.NewReporter(taxonomy, cfg.Pipeline.PerCategoryLimit, clock, baseLogger.With("component", "reporter")),
		Repository: repository,
		Sinks:      sinks,
		Logger:     baseLogger.With("component", "pipeline"),
		Clock:      clock,
	})
	return app, nil
}

func newGenerator(cfg config.Config, httpClient *http.Client) (ports.TextGenerator, error) {
	switch cfg.Generator.Provider {
	case config.ProviderOpenAI:
		return llm.NewOpenAIGenerator(cfg.OpenAI, httpClient), nil
	case config.ProviderInference:
		return ml.NewClient(cfg.Inference, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Generator.Provider)
	}
}

func (a *Application) buildSinks(ctx context.Context, httpClient *http.Client) []ports.ReportSink {
	var sinks []ports.ReportSink
	if a.cfg.Output.Dir != "" {
		sinks = append(sinks, sink.NewFileSink(a.cfg.Output.Dir))
	}

	if a.cfg.Minio.Endpoint != "" {
		minioSink, err := sink.NewMinioSink(a.cfg.Minio)
		if err != nil {
			a.logger.Warn("minio sink disabled", "error", err)
		} else {
			if err := minioSink.EnsureBucket(ctx); err != nil {
				a.logger.Warn("minio bucket check failed", "bucket", a.cfg.Minio.Bucket, "error", err)
			}
			sinks = append(sinks, minioSink)
		}
	}

	if a.cfg.Telegram.BotToken != "" {
		sinks = append(sinks, telegram.NewNotifier(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, "", httpClient))
	}
	return sinks
}

// Run performs a single pipeline execution. The state is returned even when err is non-nil.
func (a *Application) Run(ctx context.Context) (*domain.PipelineState, error) {
	return a.pipeline.Run(ctx)
}

// Watch runs the pipeline on the configured interval until ctx is cancelled.
func (a *Application) Watch(ctx context.Context) error {
	every := a.cfg.Scheduler.Every()
	sched := usecase.NewScheduler(scheduler.NewIntervalScheduler(every), a.pipeline, a.logger.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("watching", "interval", every.String())

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}

// History lists the most recent runs, newest first.
func (a *Application) History(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if a.repository == nil {
		return nil, ErrHistoryDisabled
	}
	return a.repository.RecentRuns(ctx, limit)
}

// Close releases the run history database.
func (a *Application) Close() error {
	if a.repository == nil {
		return nil
	}
	return a.repository.Close()
}
