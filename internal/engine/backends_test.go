package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"

	"github.com/kalambet/anchor/internal/proxy"
)

func tagsJSON(names ...string) []byte {
	type entry struct {
		Name string `json:"name"`
	}
	var r struct {
		Models []entry `json:"models"`
	}
	for _, n := range names {
		r.Models = append(r.Models, entry{Name: n})
	}
	b, _ := json.Marshal(r)
	return b
}

func TestOllamaEngine_Chat(t *testing.T) {
	var roles []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Messages []Message `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		for _, m := range body.Messages {
			roles = append(roles, m.Role)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "hello from ollama"},
		})
	}))
	defer srv.Close()

	e := NewOllamaEngine(srv.URL)
	result, err := e.Chat(context.Background(), "llama3.2", []Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleAssistant, Content: "How are you?"},
		{Role: RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result != "hello from ollama" {
		t.Errorf("got %q, want %q", result, "hello from ollama")
	}
	if diff := cmp.Diff([]string{"system", "assistant", "user"}, roles); diff != "" {
		t.Errorf("roles mismatch (-want +got):\n%s", diff)
	}
}

func TestOllamaEngine_IsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llama3.2:latest"))
	}))
	defer srv.Close()

	if !NewOllamaEngine(srv.URL).IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}
}

func TestOllamaEngine_HasModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llama3.2:latest", "gemma2:9b"))
	}))
	defer srv.Close()

	e := NewOllamaEngine(srv.URL)
	if !e.HasModel(context.Background(), "llama3.2") {
		t.Error("HasModel(llama3.2) = false, want true")
	}
	if e.HasModel(context.Background(), "mistral") {
		t.Error("HasModel(mistral) = true, want false")
	}
}

func TestOllamaEngine_PullModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pull" {
			http.NotFound(w, r)
			return
		}
		enc := json.NewEncoder(w)
		enc.Encode(map[string]any{"status": "downloading", "total": 1000, "completed": 500})
		enc.Encode(map[string]any{"status": "success"})
	}))
	defer srv.Close()

	var got []PullProgress
	err := NewOllamaEngine(srv.URL).PullModel(context.Background(), "llama3.2", func(p PullProgress) {
		got = append(got, p)
	})
	if err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	want := []PullProgress{{Status: "downloading", Total: 1000, Completed: 500}, {Status: "success"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenRouterEngine_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []Message `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Messages) != 2 || body.Messages[1].Role != RoleAssistant {
			t.Errorf("messages = %+v", body.Messages)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	e := NewOpenRouterEngine(proxy.NewClientWithBaseURL("k", srv.URL))
	got, err := e.Chat(context.Background(), "m", []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	})
	if err != nil || got != "ok" {
		t.Errorf("Chat = %q, %v", got, err)
	}
}

func TestOpenRouterEngine_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := NewOpenRouterEngine(proxy.NewClientWithBaseURL("k", srv.URL))
	_, err := e.Chat(context.Background(), "m", []Message{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
}

func TestToGeminiContents(t *testing.T) {
	system, contents := toGeminiContents([]Message{
		{Role: RoleSystem, Content: "You are a counselor."},
		{Role: RoleSystem, Content: "[Question Bank]"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: "model", Content: "legacy"},
	})

	if system == nil || len(system.Parts) != 1 || system.Parts[0].Text != "You are a counselor.\n\n[Question Bank]" {
		t.Fatalf("system = %+v", system)
	}

	var got []string
	for _, c := range contents {
		got = append(got, c.Role+":"+c.Parts[0].Text)
	}
	want := []string{"user:hi", "model:hello", "user:legacy"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("contents mismatch (-want +got):\n%s", diff)
	}
}

type fakeGemini struct {
	gotModel  string
	gotConfig *genai.GenerateContentConfig
	gotCount  int
	reply     string
	err       error
}

func (f *fakeGemini) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotConfig = config
	f.gotCount = len(contents)
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(f.reply, genai.RoleModel)}},
	}, nil
}

func (f *fakeGemini) Get(_ context.Context, model string, _ *genai.GetModelConfig) (*genai.Model, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &genai.Model{Name: model}, nil
}

func TestGeminiEngine_Chat(t *testing.T) {
	fake := &fakeGemini{reply: "Take it one day at a time."}
	e := &GeminiEngine{models: fake, model: "gemini-2.0-flash"}

	got, err := e.Chat(context.Background(), "gemini-2.0-flash", []Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "Take it one day at a time." {
		t.Errorf("Chat = %q", got)
	}
	if fake.gotCount != 1 {
		t.Errorf("contents sent = %d, want 1", fake.gotCount)
	}
	if fake.gotConfig == nil || fake.gotConfig.SystemInstruction == nil {
		t.Error("system instruction not set")
	}
	if !e.IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}
}

func TestGeminiEngine_Errors(t *testing.T) {
	e := &GeminiEngine{models: &fakeGemini{err: errors.New("network down")}}
	if _, err := e.Chat(context.Background(), "m", []Message{{Role: RoleUser, Content: "hi"}}); err == nil {
		t.Error("Chat succeeded, want error")
	}
	if e.IsRunning(context.Background()) {
		t.Error("IsRunning() = true, want false")
	}

	if _, err := e.Chat(context.Background(), "m", []Message{{Role: RoleSystem, Content: "only system"}}); err == nil {
		t.Error("Chat with no turns succeeded, want error")
	}
}
