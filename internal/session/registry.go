// Package session keeps one chat session per user and serialises the turns
// sent to it.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kalambet/anchor/internal/chat"
	"github.com/kalambet/anchor/internal/question"
	"github.com/kalambet/anchor/internal/scoring"
)

// BankSource supplies the question bank for new sessions.
// Implemented by question.CachedLoader.
type BankSource interface {
	Bank(ctx context.Context) (question.Bank, error)
}

// Status summarises a user's session.
type Status struct {
	Mode     chat.Mode `json:"mode"`
	Answered int       `json:"answered"`
	BankSize int       `json:"bank_size"`
	Complete bool      `json:"complete"`
}

type entry struct {
	mu sync.Mutex
	s  *chat.Session
}

// Registry hands out sessions keyed by user ID.
type Registry struct {
	ctrl  *chat.Controller
	bank  BankSource
	state StateStore

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewRegistry creates a Registry. A nil state uses an in-memory store.
func NewRegistry(ctrl *chat.Controller, bank BankSource, state StateStore) *Registry {
	if state == nil {
		state = NewMemoryStore(0)
	}
	return &Registry{
		ctrl:     ctrl,
		bank:     bank,
		state:    state,
		sessions: make(map[string]*entry),
	}
}

// Send runs one turn for userID. The returned error is only set when the
// session could not be opened; turn failures are reported in the Reply.
func (r *Registry) Send(ctx context.Context, userID, text string) (chat.Reply, error) {
	var reply chat.Reply
	err := r.with(ctx, userID, func(s *chat.Session) {
		reply = r.ctrl.Handle(ctx, s, text)
		if err := r.state.Save(ctx, userID, s.Progress()); err != nil {
			slog.Warn("checkpointing session failed", "user_id", userID, "error", err)
		}
	})
	return reply, err
}

// Transcript returns the user's conversation so far.
func (r *Registry) Transcript(ctx context.Context, userID string) ([]chat.Turn, error) {
	var turns []chat.Turn
	err := r.with(ctx, userID, func(s *chat.Session) {
		turns = s.Transcript()
	})
	return turns, err
}

// Priorities returns the user's latest priority areas, or nil.
func (r *Registry) Priorities(ctx context.Context, userID string) ([]scoring.PriorityArea, error) {
	var areas []scoring.PriorityArea
	err := r.with(ctx, userID, func(s *chat.Session) {
		areas = s.Priorities()
	})
	return areas, err
}

// Status reports survey progress for userID.
func (r *Registry) Status(ctx context.Context, userID string) (Status, error) {
	var st Status
	err := r.with(ctx, userID, func(s *chat.Session) {
		p := s.Progress()
		st = Status{
			Mode:     s.Mode(),
			Answered: len(p.Answered),
			BankSize: len(s.Bank()),
			Complete: s.SurveyComplete(),
		}
	})
	return st, err
}

// Reset forgets the user's session and saved progress. The stored transcript
// is kept; the next turn starts a fresh survey. A turn already in flight
// finishes and checkpoints first, so it cannot restore the progress Reset
// deleted.
func (r *Registry) Reset(ctx context.Context, userID string) error {
	e := r.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.s = nil
	return r.state.Delete(ctx, userID)
}

// DropAll forgets every in-memory session, e.g. after the question bank was
// replaced. Saved progress only resumes against a bank with the same
// fingerprint, so sessions reopened afterwards start the new survey.
func (r *Registry) DropAll() {
	r.mu.Lock()
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()
}

func (r *Registry) entry(userID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[userID]
	if !ok {
		e = &entry{}
		r.sessions[userID] = e
	}
	return e
}

// with runs fn while holding the user's session lock, opening the session
// first if needed.
func (r *Registry) with(ctx context.Context, userID string, fn func(*chat.Session)) error {
	e := r.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s == nil {
		s, err := r.open(ctx, userID)
		if err != nil {
			return err
		}
		e.s = s
	}
	fn(e.s)
	return nil
}

func (r *Registry) open(ctx context.Context, userID string) (*chat.Session, error) {
	bank, err := r.bank.Bank(ctx)
	if err != nil {
		if !errors.Is(err, question.ErrLoad) {
			return nil, err
		}
		slog.Warn("question bank unavailable, starting in free conversation", "user_id", userID, "error", err)
		bank = nil
	}

	s := r.ctrl.Start(userID, bank)

	p, ok, err := r.state.Load(ctx, userID)
	switch {
	case err != nil:
		slog.Warn("loading session state failed", "user_id", userID, "error", err)
	case ok:
		s.Resume(p)
	}

	slog.Debug("session opened", "user_id", userID, "mode", s.Mode(), "bank_size", len(bank))
	return s, nil
}
