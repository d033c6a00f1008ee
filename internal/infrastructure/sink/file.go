package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"PatentReporter/internal/ports"
)

// ReportFileName is the object and file name used for a run's report.
func ReportFileName(runID string) string {
	return fmt.Sprintf("patent_report_%s.md", runID)
}

// FileSink writes each report to its own Markdown file.
type FileSink struct {
	dir string
}

var _ ports.ReportSink = (*FileSink)(nil)

// NewFileSink returns a sink writing into dir, created on first use.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Name identifies the sink in logs.
func (s *FileSink) Name() string {
	return "file"
}

// Path returns where the report of runID is written.
func (s *FileSink) Path(runID string) string {
	return filepath.Join(s.dir, ReportFileName(runID))
}

// Publish writes the report, replacing an existing file for the same run.
func (s *FileSink) Publish(_ context.Context, runID, report string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(s.Path(runID), []byte(report), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
