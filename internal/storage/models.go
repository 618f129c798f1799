package storage

import (
	"errors"
	"time"

	"github.com/kalambet/anchor/internal/scoring"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Message is one transcript entry. Role is "user" or "assistant".
type Message struct {
	ID        string
	UserID    string
	Role      string
	Content   string
	CreatedAt time.Time
}

// Snapshot is one saved set of priority areas. Older snapshots are kept.
type Snapshot struct {
	ID        string
	UserID    string
	Areas     []scoring.PriorityArea
	CreatedAt time.Time
}

// IntakeResponse is a structured intake answer. Value holds the encoded
// answer: a JSON array for multiple choice, a number for scales, text otherwise.
type IntakeResponse struct {
	UserID     string
	QuestionID string
	Value      string
	UpdatedAt  time.Time
}
