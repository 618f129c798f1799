package engine

import (
	"context"
	"fmt"

	"github.com/kalambet/anchor/internal/proxy"
)

// Backend names accepted by New.
const (
	BackendGemini     = "gemini"
	BackendOpenRouter = "openrouter"
	BackendOllama     = "ollama"
)

// Config selects and configures a backend.
type Config struct {
	Backend          string
	Model            string
	OllamaBaseURL    string
	GeminiAPIKey     string
	OpenRouterAPIKey string
}

// New builds the Engine named by cfg.Backend.
func New(ctx context.Context, cfg Config) (Engine, error) {
	switch cfg.Backend {
	case BackendGemini, "":
		return NewGeminiEngine(ctx, cfg.GeminiAPIKey, cfg.Model)
	case BackendOpenRouter:
		if cfg.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("openrouter API key is required")
		}
		return NewOpenRouterEngine(proxy.NewClient(cfg.OpenRouterAPIKey)), nil
	case BackendOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown completion backend %q", cfg.Backend)
	}
}
