package proxy

import "encoding/json"

// ChatMessage is one OpenAI-format conversation entry.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a non-streaming chat completion request. Provider
// specific parameters not modeled here can be set through Extra and are sent
// alongside the known fields.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature *float64
	MaxTokens   int
	Extra       map[string]json.RawMessage
}

func (r CompletionRequest) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Extra)+4)
	for k, v := range r.Extra {
		m[k] = v
	}
	m["model"] = r.Model
	m["messages"] = r.Messages
	m["stream"] = false
	if r.Temperature != nil {
		m["temperature"] = *r.Temperature
	}
	if r.MaxTokens > 0 {
		m["max_tokens"] = r.MaxTokens
	}
	return json.Marshal(m)
}

// completionResponse is the subset of the OpenAI response the client reads.
type completionResponse struct {
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// Model represents a model entry returned by the /models endpoint.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// ModelList is the response from /models.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}
