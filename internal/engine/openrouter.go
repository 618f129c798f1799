package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/anchor/internal/proxy"
)

// OpenRouterEngine sends conversations to OpenRouter. Roles are passed
// through unchanged since OpenRouter speaks the OpenAI vocabulary.
type OpenRouterEngine struct {
	client *proxy.Client
}

// NewOpenRouterEngine wraps an existing proxy client.
func NewOpenRouterEngine(client *proxy.Client) *OpenRouterEngine {
	return &OpenRouterEngine{client: client}
}

func (e *OpenRouterEngine) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	msgs := make([]proxy.ChatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = proxy.ChatMessage{Role: m.Role, Content: m.Content}
	}
	text, err := e.client.Complete(ctx, proxy.CompletionRequest{Model: model, Messages: msgs})
	if errors.Is(err, proxy.ErrRateLimited) {
		return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return text, err
}

// IsRunning reports whether the model list endpoint answers within five seconds.
func (e *OpenRouterEngine) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := e.client.ListModels(ctx)
	return err == nil
}
