package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"PatentReporter/internal/domain"
)

func TestSummarizerShortAbstractSkipsGenerator(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	s := NewSummarizer(gen, 10, nil)
	state := &domain.PipelineState{RawRecords: []domain.Patent{
		{InventionName: "Empty", Abstract: ""},
		{InventionName: "Short", Abstract: "A tiny abstract."},
		{InventionName: "Exactly 49", Abstract: strings.Repeat("x", 49)},
	}}

	if err := s.Run(context.Background(), state); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if gen.summaryCalls.Load() != 0 {
		t.Fatalf("expected no generator calls, got %d", gen.summaryCalls.Load())
	}
	for i, p := range state.SummarizedRecords {
		if p.AISummary != state.RawRecords[i].Abstract || !p.Summarized {
			t.Fatalf("record %d: expected abstract as summary, got %q", i, p.AISummary)
		}
	}
	if len(state.ErrorLog) != 0 {
		t.Fatalf("short-circuit is not an error: %v", state.ErrorLog)
	}
}

func TestSummarizerUsesTrimmedResponse(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{summarize: func(title, text string) (string, error) {
		return "  A concise summary.\n", nil
	}}
	s := NewSummarizer(gen, 10, nil)
	state := &domain.PipelineState{RawRecords: makePatents(3)}

	if err := s.Run(context.Background(), state); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, p := range state.SummarizedRecords {
		if p.AISummary != "A concise summary." {
			t.Fatalf("unexpected summary %q", p.AISummary)
		}
	}
	if gen.summaryCalls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", gen.summaryCalls.Load())
	}
	if len(state.Messages) != 1 || state.Messages[0] != "Summarized 3 patents" {
		t.Fatalf("unexpected messages %v", state.Messages)
	}
}

func TestSummarizerTruncatesPromptText(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	s := NewSummarizer(gen, 10, nil)
	state := &domain.PipelineState{RawRecords: []domain.Patent{
		{InventionName: "Long", Abstract: strings.Repeat("가", 1500)},
	}}

	if err := s.Run(context.Background(), state); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(gen.summarized) != 1 || len([]rune(gen.summarized[0])) != 1000 {
		t.Fatalf("expected 1000 runes sent to the generator")
	}
}

func TestSummarizerFallsBackOnFailure(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{summarize: func(title, text string) (string, error) {
		switch title {
		case "Invention 1":
			return "", errors.New("rate limited: " + strings.Repeat("retry later ", 20))
		case "Invention 2":
			return "   ", nil
		}
		return "fine", nil
	}}
	s := NewSummarizer(gen, 2, nil)
	raw := makePatents(3)
	state := &domain.PipelineState{RawRecords: raw}

	if err := s.Run(context.Background(), state); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(state.SummarizedRecords) != len(raw) {
		t.Fatalf("summarizer must never drop records: %d != %d", len(state.SummarizedRecords), len(raw))
	}
	if state.SummarizedRecords[0].AISummary != raw[0].Abstract {
		t.Fatalf("expected abstract fallback on error")
	}
	if state.SummarizedRecords[1].AISummary != raw[1].Abstract {
		t.Fatalf("expected abstract fallback on empty response")
	}
	if state.SummarizedRecords[2].AISummary != "fine" {
		t.Fatalf("unexpected summary %q", state.SummarizedRecords[2].AISummary)
	}

	if len(state.ErrorLog) != 2 {
		t.Fatalf("expected 2 diagnostics, got %v", state.ErrorLog)
	}
	prefix := "Summarizer: Invention 1: "
	if !strings.HasPrefix(state.ErrorLog[0], prefix) {
		t.Fatalf("unexpected diagnostic %q", state.ErrorLog[0])
	}
	if msg := strings.TrimPrefix(state.ErrorLog[0], prefix); len([]rune(msg)) != 50 {
		t.Fatalf("diagnostic must carry at most 50 characters of the error, got %d", len([]rune(msg)))
	}
	if state.ErrorLog[1] != "Summarizer: Invention 2: empty summary" {
		t.Fatalf("unexpected diagnostic %q", state.ErrorLog[1])
	}
}

func TestSummarizerPreservesOrderAcrossBatches(t *testing.T) {
	t.Parallel()

	s := NewSummarizer(&fakeGenerator{}, 4, nil)
	raw := makePatents(11)
	state := &domain.PipelineState{RawRecords: raw}

	if err := s.Run(context.Background(), state); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, p := range state.SummarizedRecords {
		if p.ApplicationNumber != raw[i].ApplicationNumber {
			t.Fatalf("record %d out of order", i)
		}
		if p.AISummary != "summary of "+raw[i].InventionName {
			t.Fatalf("record %d: unexpected summary %q", i, p.AISummary)
		}
	}
}

func TestSummarizerEmptyInput(t *testing.T) {
	t.Parallel()

	state := &domain.PipelineState{}
	if err := NewSummarizer(&fakeGenerator{}, 10, nil).Run(context.Background(), state); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(state.SummarizedRecords) != 0 || state.Messages[0] != "Summarized 0 patents" {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestStagesReportMissingGenerator(t *testing.T) {
	t.Parallel()

	state := &domain.PipelineState{RawRecords: makePatents(2)}
	if err := NewSummarizer(nil, 10, nil).Run(context.Background(), state); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if err := NewOrganizer(nil, domain.NewTaxonomy(nil), 10, nil).Run(context.Background(), state); err != nil {
		t.Fatalf("organize: %v", err)
	}

	for i, p := range state.SummarizedRecords {
		if p.AISummary != state.RawRecords[i].Abstract {
			t.Fatalf("record %d: expected abstract fallback, got %q", i, p.AISummary)
		}
	}
	if len(state.ErrorLog) != 4 {
		t.Fatalf("expected one line per record and stage, got %v", state.ErrorLog)
	}
	if state.ErrorLog[0] != "Summarizer: Invention 1: no text generator configured" ||
		state.ErrorLog[2] != "Organizer: Invention 1: no text generator configured" {
		t.Fatalf("unexpected error log %v", state.ErrorLog)
	}
}
