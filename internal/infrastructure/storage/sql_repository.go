package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"PatentReporter/internal/config"
	"PatentReporter/internal/domain"
	"PatentReporter/internal/ports"
)

const (
	// fixed width keeps lexical order equal to chronological order
	timeLayout = "2006-01-02T15:04:05.000000000Z"

	insertChunk = 100
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	source TEXT NOT NULL,
	collected INTEGER NOT NULL,
	processed INTEGER NOT NULL,
	category_counts TEXT NOT NULL,
	errors TEXT NOT NULL,
	report TEXT NOT NULL,
	status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_patents (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	category TEXT NOT NULL,
	application_number TEXT NOT NULL,
	registration_number TEXT NOT NULL,
	invention_name TEXT NOT NULL,
	summary TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS runs_started_at_idx ON runs (started_at);
`

// SQLRepository persists run history in sqlite or postgres.
type SQLRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.RunRepository = (*SQLRepository)(nil)

// Open connects with the named driver and creates the schema when missing.
func Open(ctx context.Context, driver, dsn string) (*SQLRepository, error) {
	var placeholder sq.PlaceholderFormat
	switch driver {
	case config.DriverSQLite:
		placeholder = sq.Question
	case config.DriverPostgres:
		placeholder = sq.Dollar
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == config.DriverSQLite {
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}, nil
}

// Close releases the connection pool.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// SaveRun upserts the run and replaces its classified patents in one transaction.
func (r *SQLRepository) SaveRun(ctx context.Context, run domain.RunRecord, patents []domain.ClassifiedPatent) error {
	counts, err := json.Marshal(run.CategoryCounts)
	if err != nil {
		return fmt.Errorf("marshal category counts: %w", err)
	}
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	upsert, args, err := r.builder.
		Insert("runs").
		Columns("id", "started_at", "finished_at", "source", "collected", "processed", "category_counts", "errors", "report", "status").
		Values(run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt), run.Source, run.Collected, run.Processed,
			string(counts), string(errorsJSON), run.Report, string(run.Status)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			source = EXCLUDED.source,
			collected = EXCLUDED.collected,
			processed = EXCLUDED.processed,
			category_counts = EXCLUDED.category_counts,
			errors = EXCLUDED.errors,
			report = EXCLUDED.report,
			status = EXCLUDED.status`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, args...); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	del, args, err := r.builder.Delete("run_patents").Where(sq.Eq{"run_id": run.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("clear run patents: %w", err)
	}

	for start := 0; start < len(patents); start += insertChunk {
		end := min(start+insertChunk, len(patents))
		insert := r.builder.
			Insert("run_patents").
			Columns("run_id", "position", "category", "application_number", "registration_number", "invention_name", "summary")
		for i := start; i < end; i++ {
			p := patents[i]
			insert = insert.Values(run.ID, i, p.Category, p.Patent.ApplicationNumber, p.Patent.RegistrationNumber,
				p.Patent.InventionName, p.Patent.SummaryOrAbstract())
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("build patent insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert run patents: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (r *SQLRepository) RecentRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	query, args, err := r.builder.
		Select("id", "started_at", "finished_at", "source", "collected", "processed", "category_counts", "errors", "report", "status").
		From("runs").
		OrderBy("started_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var (
			run                         domain.RunRecord
			startedAt, finishedAt       string
			countsJSON, errorsJSON, sts string
		)
		if err := rows.Scan(&run.ID, &startedAt, &finishedAt, &run.Source, &run.Collected, &run.Processed,
			&countsJSON, &errorsJSON, &run.Report, &sts); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("run %s started_at: %w", run.ID, err)
		}
		if run.FinishedAt, err = time.Parse(timeLayout, finishedAt); err != nil {
			return nil, fmt.Errorf("run %s finished_at: %w", run.ID, err)
		}
		if err := json.Unmarshal([]byte(countsJSON), &run.CategoryCounts); err != nil {
			return nil, fmt.Errorf("run %s category counts: %w", run.ID, err)
		}
		if err := json.Unmarshal([]byte(errorsJSON), &run.Errors); err != nil {
			return nil, fmt.Errorf("run %s errors: %w", run.ID, err)
		}
		run.Status = domain.RunStatus(sts)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return runs, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
