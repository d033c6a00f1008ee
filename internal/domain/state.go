package domain

import (
	"fmt"
	"time"
)

// Categorized groups patents by label and remembers the order in which labels were first seen.
// The zero value is ready to use.
type Categorized struct {
	order  []string
	groups map[string][]Patent
}

// Add appends the patent to the label's group.
func (c *Categorized) Add(label string, p Patent) {
	if c.groups == nil {
		c.groups = map[string][]Patent{}
	}
	if _, ok := c.groups[label]; !ok {
		c.order = append(c.order, label)
	}
	c.groups[label] = append(c.groups[label], p)
}

// Labels returns every non-empty label in first-seen order.
func (c *Categorized) Labels() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Patents returns the records assigned to label in insertion order.
func (c *Categorized) Patents(label string) []Patent {
	return c.groups[label]
}

// Count returns how many records were assigned to label.
func (c *Categorized) Count(label string) int {
	return len(c.groups[label])
}

// Total is the sum of all group sizes.
func (c *Categorized) Total() int {
	total := 0
	for _, group := range c.groups {
		total += len(group)
	}
	return total
}

// PipelineState is threaded through the stages; exactly one stage owns it at any time.
type PipelineState struct {
	RunID     string
	StartedAt time.Time
	Source    string

	RawRecords         []Patent
	SummarizedRecords  []Patent
	CategorizedRecords Categorized
	FinalReport        string

	ErrorLog []string
	Messages []string
}

// NewPipelineState creates the empty state for one run.
func NewPipelineState(runID string, startedAt time.Time) *PipelineState {
	return &PipelineState{RunID: runID, StartedAt: startedAt}
}

// AppendError records a swallowed, recoverable failure.
func (s *PipelineState) AppendError(format string, args ...any) {
	s.ErrorLog = append(s.ErrorLog, fmt.Sprintf(format, args...))
}

// Notify records a progress notice.
func (s *PipelineState) Notify(format string, args ...any) {
	s.Messages = append(s.Messages, fmt.Sprintf(format, args...))
}
