// Package survey selects the next intake question from a free-text reply and
// tracks which questions have been used and answered.
package survey

import (
	"math/rand/v2"
	"strings"

	"github.com/kalambet/anchor/internal/question"
)

// Rand is the random source used to break ties between candidate questions.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Rule fires when a question mentions QuestionKeyword and the reply mentions
// ResponseKeyword.
type Rule struct {
	QuestionKeyword string
	ResponseKeyword string
}

// DefaultRules links everyday words in a reply to the topic of a question.
var DefaultRules = []Rule{
	{"family", "wife"},
	{"family", "husband"},
	{"family", "kids"},
	{"family", "children"},
	{"family", "mom"},
	{"family", "dad"},
	{"family", "parents"},
	{"relationship", "partner"},
	{"relationship", "girlfriend"},
	{"relationship", "boyfriend"},
	{"work", "job"},
	{"work", "boss"},
	{"work", "office"},
	{"work", "career"},
	{"drink", "alcohol"},
	{"drink", "beer"},
	{"drink", "wine"},
	{"drink", "bar"},
	{"sleep", "tired"},
	{"sleep", "insomnia"},
	{"sleep", "night"},
	{"health", "doctor"},
	{"health", "sick"},
	{"money", "debt"},
	{"money", "bills"},
	{"money", "rent"},
	{"friends", "lonely"},
}

// Selection is a question picked by the Matcher.
type Selection struct {
	Index int
	Text  string
}

// Matcher picks the next survey question. It holds no per-session state;
// the used set is owned by the caller.
type Matcher struct {
	rules []Rule
	rnd   Rand
}

// NewMatcher creates a Matcher. A nil rnd uses the global source and nil
// rules use DefaultRules.
func NewMatcher(rnd Rand, rules []Rule) *Matcher {
	if rnd == nil {
		rnd = globalRand{}
	}
	if rules == nil {
		rules = DefaultRules
	}
	return &Matcher{rules: rules, rnd: rnd}
}

// Next picks an unused question relevant to reply, falling back to any unused
// question. The chosen index is added to used. ok is false once every
// selectable question has been used.
func (m *Matcher) Next(reply string, bank question.Bank, used UsedSet) (sel Selection, ok bool) {
	resp := strings.ToLower(reply)

	var eligible, candidates []int
	for i, r := range bank {
		if used.Has(i) || !r.Selectable() {
			continue
		}
		eligible = append(eligible, i)
		if m.relevant(r, resp) {
			candidates = append(candidates, i)
		}
	}

	pool := candidates
	if len(pool) == 0 {
		pool = eligible
	}
	if len(pool) == 0 {
		return Selection{}, false
	}

	idx := pool[m.rnd.IntN(len(pool))]
	used.Add(idx)
	return Selection{Index: idx, Text: bank[idx].Text}, true
}

// relevant reports whether any heuristic ties r to the lower-cased reply.
func (m *Matcher) relevant(r question.Record, resp string) bool {
	if containsFold(resp, r.Category) || containsFold(resp, r.Type) {
		return true
	}
	text := strings.ToLower(r.Text)
	for _, rule := range m.rules {
		if containsFold(text, rule.QuestionKeyword) && containsFold(resp, rule.ResponseKeyword) {
			return true
		}
	}
	return false
}

// containsFold reports whether the already lower-cased s contains needle.
// An empty needle never matches.
func containsFold(s, needle string) bool {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return false
	}
	return strings.Contains(s, needle)
}
