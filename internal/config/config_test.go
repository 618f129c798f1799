package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	values map[string]string
}

func (m mockKeychain) Get(service, account string) (string, error) {
	v, ok := m.values[service+"/"+account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

// mapBackend is an in-memory ConfigBackend.
type mapBackend map[string]any

func (m mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m[key]
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (m mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m[key]
	if !ok {
		return 0, false, nil
	}
	i, ok := v.(int)
	if !ok {
		return 0, true, errors.New("not an int")
	}
	return i, true, nil
}

func (m mapBackend) SetString(key, val string) error  { m[key] = val; return nil }
func (m mapBackend) SetInt(key string, val int) error { m[key] = val; return nil }
func (m mapBackend) Delete(key string) error          { delete(m, key); return nil }

// clearEnv blanks every ANCHOR_* variable for the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when the backend is empty.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANCHOR_GEMINI_API_KEY", "g-key")
	t.Setenv("ANCHOR_JWT_SECRET", "jwt")

	cfg, err := loadWith(mapBackend{}, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Completion.Backend != BackendGemini {
		t.Errorf("Completion.Backend = %q, want gemini", cfg.Completion.Backend)
	}
	if cfg.Completion.Model != "gemini-2.0-flash" {
		t.Errorf("Completion.Model = %q", cfg.Completion.Model)
	}
	if cfg.Completion.OllamaBaseURL != "http://localhost:11434" {
		t.Errorf("Completion.OllamaBaseURL = %q", cfg.Completion.OllamaBaseURL)
	}
	if cfg.Completion.Timeout != 60*time.Second {
		t.Errorf("Completion.Timeout = %v, want 60s", cfg.Completion.Timeout)
	}
	if cfg.Session.TTL != 24*time.Hour || cfg.Session.RedisAddr != "" {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

// TestBackendValues verifies that all non-secret keys are read from the backend.
func TestBackendValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANCHOR_JWT_SECRET", "jwt")

	b := mapBackend{
		"server.port":                5000,
		"storage.data_dir":           "/tmp/anchor-test",
		"log.level":                  "debug",
		"completion.backend":         "Ollama",
		"completion.model":           "llama3.2",
		"completion.ollama_base_url": "http://gpu:11434",
		"completion.timeout":         "90s",
		"session.redis_addr":         "localhost:6379",
		"session.ttl":                "2h",
	}
	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/tmp/anchor-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Completion.Backend != BackendOllama {
		t.Errorf("Completion.Backend = %q, want ollama", cfg.Completion.Backend)
	}
	if cfg.Completion.Model != "llama3.2" || cfg.Completion.OllamaBaseURL != "http://gpu:11434" {
		t.Errorf("Completion = %+v", cfg.Completion)
	}
	if cfg.Completion.Timeout != 90*time.Second {
		t.Errorf("Completion.Timeout = %v", cfg.Completion.Timeout)
	}
	if cfg.Session.RedisAddr != "localhost:6379" || cfg.Session.TTL != 2*time.Hour {
		t.Errorf("Session = %+v", cfg.Session)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANCHOR_OPENROUTER_API_KEY", "env-key")
	t.Setenv("ANCHOR_JWT_SECRET", "jwt")
	t.Setenv("ANCHOR_COMPLETION_BACKEND", "openrouter")
	t.Setenv("ANCHOR_SERVER_PORT", "6000")
	t.Setenv("ANCHOR_SESSION_TTL", "not-a-duration")

	b := mapBackend{"server.port": 5000, "completion.backend": "gemini"}
	kc := mockKeychain{values: map[string]string{"anchor/openrouter_api_key": "kc-key"}}
	cfg, err := loadWith(b, kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Completion.OpenRouterAPIKey != "env-key" {
		t.Errorf("OpenRouterAPIKey = %q, want env-key", cfg.Completion.OpenRouterAPIKey)
	}
	if cfg.Completion.Backend != BackendOpenRouter {
		t.Errorf("Backend = %q", cfg.Completion.Backend)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Session.TTL != 24*time.Hour {
		t.Errorf("unparseable env override changed TTL to %v", cfg.Session.TTL)
	}
}

// TestKeychainFallback verifies the secret store is consulted when a secret
// is in neither backend nor env.
func TestKeychainFallback(t *testing.T) {
	clearEnv(t)

	kc := mockKeychain{values: map[string]string{
		"anchor/gemini_api_key": "keychain-gemini",
		"anchor/jwt_secret":     "keychain-jwt",
	}}
	cfg, err := loadWith(mapBackend{}, kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Completion.GeminiAPIKey != "keychain-gemini" {
		t.Errorf("GeminiAPIKey = %q", cfg.Completion.GeminiAPIKey)
	}
	if cfg.Auth.JWTSecret != "keychain-jwt" {
		t.Errorf("JWTSecret = %q", cfg.Auth.JWTSecret)
	}
}

// TestSecretsNotReadFromBackend verifies plain config never supplies secrets.
func TestSecretsNotReadFromBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANCHOR_JWT_SECRET", "jwt")

	b := mapBackend{"completion.gemini_api_key": "from-file"}
	if _, err := loadWith(b, mockKeychain{}); err == nil {
		t.Fatal("expected missing Gemini key error, got nil")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "missing gemini key",
			env:  map[string]string{"ANCHOR_JWT_SECRET": "jwt"},
			want: "ANCHOR_GEMINI_API_KEY",
		},
		{
			name: "missing openrouter key",
			env:  map[string]string{"ANCHOR_JWT_SECRET": "jwt", "ANCHOR_COMPLETION_BACKEND": "openrouter"},
			want: "ANCHOR_OPENROUTER_API_KEY",
		},
		{
			name: "missing jwt secret",
			env:  map[string]string{"ANCHOR_COMPLETION_BACKEND": "ollama"},
			want: "ANCHOR_JWT_SECRET",
		},
		{
			name: "missing secret names set-secret",
			env:  map[string]string{"ANCHOR_COMPLETION_BACKEND": "ollama"},
			want: "`anchor config set-secret auth.jwt_secret`",
		},
		{
			name: "unknown backend",
			env:  map[string]string{"ANCHOR_JWT_SECRET": "jwt", "ANCHOR_COMPLETION_BACKEND": "mlx"},
			want: "invalid completion.backend",
		},
		{
			name: "bad port",
			env:  map[string]string{"ANCHOR_JWT_SECRET": "jwt", "ANCHOR_COMPLETION_BACKEND": "ollama", "ANCHOR_SERVER_PORT": "70000"},
			want: "invalid server.port",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadWith(mapBackend{}, mockKeychain{})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

// TestOllamaNeedsNoAPIKey verifies the local backend runs without cloud keys.
func TestOllamaNeedsNoAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANCHOR_COMPLETION_BACKEND", "ollama")
	t.Setenv("ANCHOR_JWT_SECRET", "jwt")
	if _, err := loadWith(mapBackend{}, mockKeychain{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetKey(t *testing.T) {
	b := mapBackend{}

	if err := setKey(b, "server.port", "4200"); err != nil {
		t.Fatalf("setKey(server.port): %v", err)
	}
	if b["server.port"] != 4200 {
		t.Errorf("server.port = %v, want 4200", b["server.port"])
	}
	if err := setKey(b, "session.ttl", "30m"); err != nil {
		t.Fatalf("setKey(session.ttl): %v", err)
	}

	errCases := []struct{ key, value string }{
		{"server.port", "abc"},
		{"session.ttl", "soon"},
		{"auth.jwt_secret", "x"},
		{"no.such.key", "x"},
	}
	for _, c := range errCases {
		if err := setKey(b, c.key, c.value); err == nil {
			t.Errorf("setKey(%s, %s) succeeded, want error", c.key, c.value)
		}
	}
}

func TestShowAllMasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Auth.JWTSecret = "super-secret"

	for _, ki := range ShowAll(cfg) {
		if strings.Contains(ki.Value, "super-secret") {
			t.Errorf("%s shows secret value", ki.Key)
		}
		switch ki.Key {
		case "auth.jwt_secret":
			if ki.Value != "(set)" {
				t.Errorf("auth.jwt_secret = %q, want (set)", ki.Value)
			}
		case "completion.gemini_api_key":
			if ki.Value != "(unset)" {
				t.Errorf("completion.gemini_api_key = %q, want (unset)", ki.Value)
			}
		}
	}
}

func TestValidKeysExcludeSecrets(t *testing.T) {
	for _, k := range ValidKeys() {
		if specFor(k).secret {
			t.Errorf("ValidKeys contains secret %s", k)
		}
	}
	if len(ValidKeys())+len(SecretKeys()) != len(specs) {
		t.Error("ValidKeys and SecretKeys do not partition specs")
	}
}
