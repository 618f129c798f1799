package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/anchor/internal/composer"
	"github.com/kalambet/anchor/internal/engine"
	"github.com/kalambet/anchor/internal/question"
	"github.com/kalambet/anchor/internal/scoring"
	"github.com/kalambet/anchor/internal/storage"
	"github.com/kalambet/anchor/internal/survey"
)

// FallbackMessage is shown, and stored, when the completion service fails.
const FallbackMessage = "I'm sorry, I'm having trouble responding right now. Please try sending your message again in a moment."

// summaryMessage replaces an empty reply that carried only priority areas.
const summaryMessage = "Thank you for working through these questions with me. I've put together a summary of your priority areas."

// MessageStore persists transcript entries. Implemented by storage.Store.
type MessageStore interface {
	AppendMessage(m storage.Message) error
	ListMessages(userID string) ([]storage.Message, error)
}

// SnapshotStore persists priority snapshots. Implemented by storage.Store.
type SnapshotStore interface {
	SaveSnapshot(snap storage.Snapshot) error
	LatestSnapshot(userID string) (storage.Snapshot, error)
}

// Completer produces the assistant reply in free conversation.
// Implemented by every engine.Engine.
type Completer interface {
	Chat(ctx context.Context, model string, messages []engine.Message) (string, error)
}

// Deps wires a Controller. Matcher, Composer, Now and NewID default when nil.
type Deps struct {
	Messages  MessageStore
	Snapshots SnapshotStore
	Completer Completer
	Model     string
	// Timeout bounds each completion call. Zero means no limit.
	Timeout  time.Duration
	Matcher  *survey.Matcher
	Composer *composer.Composer
	Now      func() time.Time
	NewID    func() string
}

// Controller runs turns against sessions. It holds no per-session state and
// may be shared by all sessions.
type Controller struct {
	messages  MessageStore
	snapshots SnapshotStore
	completer Completer
	model     string
	timeout   time.Duration
	matcher   *survey.Matcher
	composer  *composer.Composer
	now       func() time.Time
	newID     func() string
}

// NewController creates a Controller from d.
func NewController(d Deps) *Controller {
	c := &Controller{
		messages:  d.Messages,
		snapshots: d.Snapshots,
		completer: d.Completer,
		model:     d.Model,
		timeout:   d.Timeout,
		matcher:   d.Matcher,
		composer:  d.Composer,
		now:       d.Now,
		newID:     d.NewID,
	}
	if c.matcher == nil {
		c.matcher = survey.NewMatcher(nil, nil)
	}
	if c.composer == nil {
		c.composer = composer.New()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// Start opens a session for userID, restoring the stored transcript and the
// latest priority snapshot. Read failures are logged and the session starts
// without that history.
func (c *Controller) Start(userID string, bank question.Bank) *Session {
	s := NewSession(userID, bank)

	msgs, err := c.messages.ListMessages(userID)
	if err != nil {
		slog.Warn("loading transcript failed", "user_id", userID, "error", err)
	}
	for _, m := range msgs {
		s.append(m.Role, m.Content, m.CreatedAt)
	}

	snap, err := c.snapshots.LatestSnapshot(userID)
	switch {
	case err == nil:
		s.priorities = snap.Areas
	case !errors.Is(err, storage.ErrNotFound):
		slog.Warn("loading priority snapshot failed", "user_id", userID, "error", err)
	}

	return s
}

// Reply is the outcome of one turn.
type Reply struct {
	Text string `json:"text"`
	Mode Mode   `json:"mode"`
	// Areas is set when this turn produced a new priority snapshot.
	Areas []scoring.PriorityArea `json:"priority_areas,omitempty"`
	// Failed reports that Text is the fallback message.
	Failed bool `json:"failed,omitempty"`
}

// Handle runs one user turn. It never fails: completion errors produce
// FallbackMessage and persistence errors are logged.
func (c *Controller) Handle(ctx context.Context, s *Session, text string) Reply {
	c.record(s, engine.RoleUser, text)

	if s.mode == ModeSurveying {
		if reply, ok := c.nextQuestion(s, text); ok {
			return reply
		}
	}
	return c.converse(ctx, s, text)
}

// nextQuestion asks the next survey question. When none remain it moves the
// session to free conversation and returns false.
func (c *Controller) nextQuestion(s *Session, text string) (Reply, bool) {
	sel, ok := c.matcher.Next(text, s.bank, s.used)

	// This message answers whatever was asked last.
	if s.lastAsked >= 0 {
		s.tracker.MarkAnswered(s.lastAsked)
	}

	if !ok {
		s.mode = ModeFree
		s.lastAsked = -1
		slog.Info("survey finished, switching to free conversation",
			"user_id", s.userID, "answered", s.tracker.Count(), "bank_size", len(s.bank))
		return Reply{}, false
	}

	s.lastAsked = sel.Index
	c.record(s, engine.RoleAssistant, sel.Text)
	return Reply{Text: sel.Text, Mode: s.mode}, true
}

func (c *Controller) converse(ctx context.Context, s *Session, text string) Reply {
	complete := s.tracker.IsComplete(s.bank)

	// The user message just recorded is passed separately.
	prior := s.transcript[:len(s.transcript)-1]
	history := make([]engine.Message, len(prior))
	for i, t := range prior {
		history[i] = engine.Message{Role: t.Role, Content: t.Content}
	}
	msgs := c.composer.Compose(s.bank, history, text, complete)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := c.now()
	raw, err := c.completer.Chat(ctx, c.model, msgs)
	if err != nil {
		slog.Error("completion failed", "user_id", s.userID, "model", c.model, "error", err)
		c.record(s, engine.RoleAssistant, FallbackMessage)
		return Reply{Text: FallbackMessage, Mode: s.mode, Failed: true}
	}
	slog.Debug("completion received", "user_id", s.userID, "duration", c.now().Sub(start))

	res := scoring.Parse(raw, complete)
	visible := res.Visible
	if res.Areas != nil {
		s.priorities = res.Areas
		c.saveSnapshot(s.userID, res.Areas)
		if visible == "" {
			visible = summaryMessage
		}
	}
	if visible == "" {
		slog.Warn("completion returned no text", "user_id", s.userID)
		c.record(s, engine.RoleAssistant, FallbackMessage)
		return Reply{Text: FallbackMessage, Mode: s.mode, Failed: true}
	}

	c.record(s, engine.RoleAssistant, visible)
	return Reply{Text: visible, Mode: s.mode, Areas: res.Areas}
}

// record appends to the transcript and persists. Persist failures are logged;
// the entry stays in memory for the rest of the session.
func (c *Controller) record(s *Session, role, content string) {
	now := c.now()
	s.append(role, content, now)
	err := c.messages.AppendMessage(storage.Message{
		ID:        c.newID(),
		UserID:    s.userID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	})
	if err != nil {
		slog.Warn("persisting chat message failed", "user_id", s.userID, "role", role, "error", err)
	}
}

func (c *Controller) saveSnapshot(userID string, areas []scoring.PriorityArea) {
	err := c.snapshots.SaveSnapshot(storage.Snapshot{
		ID:        c.newID(),
		UserID:    userID,
		Areas:     areas,
		CreatedAt: c.now(),
	})
	if err != nil {
		slog.Warn("persisting priority snapshot failed", "user_id", userID, "error", err)
	}
}
