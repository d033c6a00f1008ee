package domain

import "time"

// NotAvailable marks a field the upstream source did not provide.
const NotAvailable = "N/A"

// Patent is a core entity describing one record fetched from KIPRIS or the CSV cache.
type Patent struct {
	ApplicationNumber  string
	RegistrationNumber string
	InventionName      string
	Abstract           string
	AISummary          string
	Summarized         bool
}

// WithSummary returns a copy of the patent carrying the generated summary.
func (p Patent) WithSummary(summary string) Patent {
	p.AISummary = summary
	p.Summarized = true
	return p
}

// SummaryOrAbstract returns the AI summary when the summarize stage produced one, otherwise the abstract.
func (p Patent) SummaryOrAbstract() string {
	if p.Summarized {
		return p.AISummary
	}
	return p.Abstract
}

// RunStatus enumerates pipeline milestones persisted with a run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
)

// RunRecord is the persisted snapshot of a single pipeline execution.
type RunRecord struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	Source         string
	Collected      int
	Processed      int
	CategoryCounts map[string]int
	Errors         []string
	Report         string
	Status         RunStatus
}

// ClassifiedPatent is a patent stored together with the category it was assigned in a run.
type ClassifiedPatent struct {
	RunID    string
	Category string
	Patent   Patent
}
