// Package engine abstracts the completion services the counselor can run on.
package engine

import (
	"context"
	"errors"
)

// Canonical conversation roles. Backends map them to their own vocabulary.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrRateLimited is returned when the backend rejects a request for quota
// reasons. Callers do not retry.
var ErrRateLimited = errors.New("completion service rate limited")

// Message is one role-tagged conversation entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Engine is a chat completion backend.
type Engine interface {
	// Chat sends the conversation to model and returns the reply text.
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool
}

// ModelManager is implemented by backends that host models locally and can
// download missing ones.
type ModelManager interface {
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}
