package domain

import "strings"

// OtherCategory is the catch-all bucket for unrecognised classifier output.
const OtherCategory = "Other"

// DefaultCategories lists the closed category set in canonical report order.
var DefaultCategories = []string{
	"AI/Machine Learning",
	"Autonomous Driving/Robotics",
	"Medical/Health",
	"Image Processing/Vision",
	"Natural Language Processing",
	"Network/Security",
	"Hardware/Sensors",
	OtherCategory,
}

// Taxonomy is the closed, ordered set of labels a patent may be assigned to.
type Taxonomy struct {
	labels []string
	index  map[string]struct{}
}

// NewTaxonomy deduplicates labels, keeps their order and guarantees OtherCategory is present (last when added).
func NewTaxonomy(labels []string) Taxonomy {
	t := Taxonomy{index: make(map[string]struct{}, len(labels)+1)}
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if _, ok := t.index[label]; ok {
			continue
		}
		t.index[label] = struct{}{}
		t.labels = append(t.labels, label)
	}
	if _, ok := t.index[OtherCategory]; !ok {
		t.index[OtherCategory] = struct{}{}
		t.labels = append(t.labels, OtherCategory)
	}
	return t
}

// Labels returns the categories in canonical order.
func (t Taxonomy) Labels() []string {
	out := make([]string, len(t.labels))
	copy(out, t.labels)
	return out
}

// Contains reports whether label is an exact member of the set.
func (t Taxonomy) Contains(label string) bool {
	_, ok := t.index[label]
	return ok
}

// Resolve maps raw classifier output onto the set; anything that is not an exact match becomes OtherCategory.
func (t Taxonomy) Resolve(raw string) string {
	label := strings.TrimSpace(raw)
	if t.Contains(label) {
		return label
	}
	return OtherCategory
}
