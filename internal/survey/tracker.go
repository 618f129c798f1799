package survey

import (
	"sort"

	"github.com/kalambet/anchor/internal/question"
)

// UsedSet is a set of question bank indices.
type UsedSet map[int]struct{}

// NewUsedSet returns a set holding indices.
func NewUsedSet(indices ...int) UsedSet {
	s := make(UsedSet, len(indices))
	for _, i := range indices {
		s.Add(i)
	}
	return s
}

func (s UsedSet) Add(i int) { s[i] = struct{}{} }
func (s UsedSet) Len() int  { return len(s) }

func (s UsedSet) Has(i int) bool {
	_, ok := s[i]
	return ok
}

// Indices returns the members in ascending order.
func (s UsedSet) Indices() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Tracker records which questions the user has answered during one pass.
type Tracker struct {
	answered UsedSet
}

// NewTracker returns a Tracker with the given indices already answered.
func NewTracker(answered ...int) *Tracker {
	return &Tracker{answered: NewUsedSet(answered...)}
}

// MarkAnswered records index as answered. Repeated calls are no-ops.
func (t *Tracker) MarkAnswered(index int) {
	if index < 0 {
		return
	}
	t.answered.Add(index)
}

// IsAnswered reports whether index has been answered.
func (t *Tracker) IsAnswered(index int) bool {
	return t.answered.Has(index)
}

// Count returns the number of answered questions.
func (t *Tracker) Count() int {
	return t.answered.Len()
}

// Answered returns the answered indices in ascending order.
func (t *Tracker) Answered() []int {
	return t.answered.Indices()
}

// IsComplete reports whether every question in a non-empty bank is answered.
// Scoring output is only accepted once this holds.
func (t *Tracker) IsComplete(bank question.Bank) bool {
	return len(bank) > 0 && t.answered.Len() == len(bank)
}
