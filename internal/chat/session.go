// Package chat runs the counselor conversation: a survey phase that asks
// questions from the bank, then free conversation with the completion service.
package chat

import (
	"log/slog"
	"time"

	"github.com/kalambet/anchor/internal/question"
	"github.com/kalambet/anchor/internal/scoring"
	"github.com/kalambet/anchor/internal/survey"
)

// Mode is the conversation phase.
type Mode string

const (
	ModeSurveying Mode = "surveying"
	// ModeFree is terminal: a session never returns to surveying.
	ModeFree Mode = "free_conversation"
)

// Turn is one transcript entry.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the mutable state of one user's conversation. It is not safe
// for concurrent use; callers serialise turns.
type Session struct {
	userID     string
	bank       question.Bank
	mode       Mode
	transcript []Turn
	used       survey.UsedSet
	tracker    *survey.Tracker
	lastAsked  int
	priorities []scoring.PriorityArea
}

// NewSession creates an empty session. It starts in ModeSurveying when the
// bank has questions and in ModeFree otherwise.
func NewSession(userID string, bank question.Bank) *Session {
	mode := ModeSurveying
	if len(bank) == 0 {
		mode = ModeFree
	}
	return &Session{
		userID:    userID,
		bank:      bank,
		mode:      mode,
		used:      survey.NewUsedSet(),
		tracker:   survey.NewTracker(),
		lastAsked: -1,
	}
}

func (s *Session) UserID() string      { return s.userID }
func (s *Session) Mode() Mode          { return s.mode }
func (s *Session) Bank() question.Bank { return s.bank }

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []Turn {
	out := make([]Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Priorities returns the most recent priority areas, or nil.
func (s *Session) Priorities() []scoring.PriorityArea {
	return s.priorities
}

// SurveyComplete reports whether every bank question has been answered.
func (s *Session) SurveyComplete() bool {
	return s.tracker.IsComplete(s.bank)
}

// Progress is the survey state needed to resume a session elsewhere.
type Progress struct {
	Mode      Mode  `json:"mode"`
	Used      []int `json:"used"`
	Answered  []int `json:"answered"`
	LastAsked int   `json:"last_asked"`
	// Bank is the fingerprint of the bank the indices refer to.
	Bank string `json:"bank"`
}

// Progress snapshots the session's survey state.
func (s *Session) Progress() Progress {
	return Progress{
		Mode:      s.mode,
		Used:      s.used.Indices(),
		Answered:  s.tracker.Answered(),
		LastAsked: s.lastAsked,
		Bank:      s.bank.Fingerprint(),
	}
}

// Resume restores survey state saved by Progress. State saved against any
// other bank is ignored, and indices outside the bank are dropped.
func (s *Session) Resume(p Progress) {
	if fp := s.bank.Fingerprint(); p.Bank != fp {
		slog.Info("question bank changed since progress was saved, restarting survey",
			"user_id", s.userID, "saved_bank", p.Bank, "bank", fp)
		return
	}

	inBank := func(i int) bool { return i >= 0 && i < len(s.bank) }

	s.used = survey.NewUsedSet()
	for _, i := range p.Used {
		if inBank(i) {
			s.used.Add(i)
		}
	}
	s.tracker = survey.NewTracker()
	for _, i := range p.Answered {
		if inBank(i) {
			s.tracker.MarkAnswered(i)
		}
	}
	s.lastAsked = -1
	if inBank(p.LastAsked) {
		s.lastAsked = p.LastAsked
	}
	if p.Mode == ModeFree || len(s.bank) == 0 {
		s.mode = ModeFree
	} else {
		s.mode = ModeSurveying
	}
}

func (s *Session) append(role, content string, at time.Time) {
	s.transcript = append(s.transcript, Turn{Role: role, Content: content, CreatedAt: at})
}
