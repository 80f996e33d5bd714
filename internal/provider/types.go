package provider

import (
	"context"
	"errors"
	"time"
)

// ErrProviderUnavailable wraps any failure to obtain text from a model.
var ErrProviderUnavailable = errors.New("provider unavailable")

// Provider is one chat completion backend.
type Provider interface {
	ID() string
	Name() string
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// LLM is the narrow text-generation surface consumed by memory and agents.
// Messages carry a system-role instruction followed by one or more context messages.
type LLM interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// LLMFunc adapts a plain function to LLM.
type LLMFunc func(ctx context.Context, messages []Message) (string, error)

// Generate calls f.
func (f LLMFunc) Generate(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// ChatRequest is a provider-neutral completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System builds a system-role message.
func System(content string) Message { return Message{Role: "system", Content: content} }

// User builds a user-role message.
func User(content string) Message { return Message{Role: "user", Content: content} }

// ChatResponse is the flattened completion.
type ChatResponse struct {
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderConfig holds configuration for a provider instance.
type ProviderConfig struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Name        string            `json:"name"`
	Endpoint    string            `json:"endpoint"`
	APIKey      string            `json:"api_key"`
	Models      []string          `json:"models,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
	Timeout     time.Duration     `json:"timeout,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
	RateLimit   float64           `json:"rate_limit,omitempty"` // requests per second, 0 = unlimited
	Burst       int               `json:"burst,omitempty"`
}

// DefaultModel returns the first configured model, or "".
func (c ProviderConfig) DefaultModel() string {
	if len(c.Models) > 0 {
		return c.Models[0]
	}
	return ""
}

// fill applies per-provider defaults to a request without mutating the caller's copy.
func (c ProviderConfig) fill(req *ChatRequest, fallbackModel string) ChatRequest {
	out := *req
	if out.Model == "" {
		out.Model = c.DefaultModel()
	}
	if out.Model == "" {
		out.Model = fallbackModel
	}
	if out.Temperature == 0 {
		out.Temperature = c.Temperature
	}
	return out
}
