package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"PatentReporter/internal/domain"
)

type fakeGenerator struct {
	summarize func(title, text string) (string, error)
	classify  func(title, text string, labels []string) (string, error)

	summaryCalls  atomic.Int64
	classifyCalls atomic.Int64

	mu         sync.Mutex
	summarized []string
}

func (f *fakeGenerator) GenerateSummary(_ context.Context, title, text string) (string, error) {
	f.summaryCalls.Add(1)
	f.mu.Lock()
	f.summarized = append(f.summarized, text)
	f.mu.Unlock()
	if f.summarize == nil {
		return "summary of " + title, nil
	}
	return f.summarize(title, text)
}

func (f *fakeGenerator) ClassifyCategory(_ context.Context, title, text string, labels []string) (string, error) {
	f.classifyCalls.Add(1)
	if f.classify == nil {
		return labels[0], nil
	}
	return f.classify(title, text, labels)
}

type fakeSource struct {
	patents []domain.Patent
	err     error
	calls   int
}

func (f *fakeSource) FetchRawRecords(context.Context) ([]domain.Patent, error) {
	f.calls++
	return f.patents, f.err
}

type fakeCache struct {
	loaded  []domain.Patent
	loadErr error
	saveErr error
	saved   []domain.Patent
}

func (f *fakeCache) Load(context.Context) ([]domain.Patent, error) { return f.loaded, f.loadErr }

func (f *fakeCache) Save(_ context.Context, patents []domain.Patent) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = patents
	return nil
}

func (f *fakeCache) Location() string { return "patent_data.csv" }

type fakeSink struct {
	name    string
	err     error
	reports map[string]string
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Publish(_ context.Context, runID, report string) error {
	if f.err != nil {
		return f.err
	}
	if f.reports == nil {
		f.reports = map[string]string{}
	}
	f.reports[runID] = report
	return nil
}

type fakeRepository struct {
	runs    []domain.RunRecord
	patents []domain.ClassifiedPatent
}

func (f *fakeRepository) SaveRun(_ context.Context, run domain.RunRecord, patents []domain.ClassifiedPatent) error {
	f.runs = append(f.runs, run)
	f.patents = append(f.patents, patents...)
	return nil
}

func (f *fakeRepository) RecentRuns(_ context.Context, limit int) ([]domain.RunRecord, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

type failingStage struct{ name string }

func (f failingStage) Name() string { return f.name }

func (f failingStage) Run(context.Context, *domain.PipelineState) error {
	return errors.New("source unreachable")
}

func longAbstract(seed string) string {
	return seed + " " + strings.Repeat("describes a method for training neural networks. ", 3)
}

func makePatents(n int) []domain.Patent {
	patents := make([]domain.Patent, n)
	for i := range patents {
		patents[i] = domain.Patent{
			ApplicationNumber:  fmt.Sprintf("10-2024-%07d", i+1),
			RegistrationNumber: fmt.Sprintf("10-%07d", i+1),
			InventionName:      fmt.Sprintf("Invention %d", i+1),
			Abstract:           longAbstract(fmt.Sprintf("Patent %d", i+1)),
		}
	}
	return patents
}
