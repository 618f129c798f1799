package config

import (
	"fmt"
	"strings"
	"time"
)

// Completion backends.
const (
	BackendGemini     = "gemini"
	BackendOpenRouter = "openrouter"
	BackendOllama     = "ollama"
)

// keychainService is the service name secrets are stored under.
const keychainService = "anchor"

// defaultsDomain is the macOS user defaults domain settings live in.
const defaultsDomain = "com.anchor.app"

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Log        LogConfig
	Completion CompletionConfig
	Session    SessionConfig
	Auth       AuthConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type CompletionConfig struct {
	Backend          string
	Model            string
	OllamaBaseURL    string
	Timeout          time.Duration
	GeminiAPIKey     string
	OpenRouterAPIKey string
}

type SessionConfig struct {
	// RedisAddr selects the Redis session store; empty keeps sessions in memory.
	RedisAddr string
	TTL       time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Completion: CompletionConfig{
			Backend:       BackendGemini,
			Model:         "gemini-2.0-flash",
			OllamaBaseURL: "http://localhost:11434",
			Timeout:       60 * time.Second,
		},
		Session: SessionConfig{
			TTL: 24 * time.Hour,
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.anchor.app) and secrets
// fall back to macOS Keychain (service: anchor).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/anchor/config.json
// and secrets fall back to $XDG_DATA_HOME/anchor/secrets.json.
//
// Environment variables (ANCHOR_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}

	switch cfg.Completion.Backend {
	case BackendGemini:
		if cfg.Completion.GeminiAPIKey == "" {
			return missing("Gemini API key", "completion.gemini_api_key")
		}
	case BackendOpenRouter:
		if cfg.Completion.OpenRouterAPIKey == "" {
			return missing("OpenRouter API key", "completion.openrouter_api_key")
		}
	case BackendOllama:
	default:
		return fmt.Errorf("invalid completion.backend %q: want one of %s, %s, %s",
			cfg.Completion.Backend, BackendGemini, BackendOpenRouter, BackendOllama)
	}

	if cfg.Auth.JWTSecret == "" {
		return missing("JWT signing secret", "auth.jwt_secret")
	}
	return nil
}

func missing(what, key string) error {
	s := specFor(key)
	return fmt.Errorf("missing required config: %s. Set it via environment variable %s or `anchor config set-secret %s` (%s)",
		what, s.env, key, secretLocation(secretAccount(key)))
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
