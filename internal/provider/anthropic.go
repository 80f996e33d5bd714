package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultAnthropicModel = "claude-3-5-haiku-20241022"
	anthropicVersion      = "2023-06-01"
	anthropicMaxTokens    = 4096
)

// AnthropicProvider talks to the Claude messages API.
type AnthropicProvider struct {
	config ProviderConfig
	client *jsonClient
	logger *zap.Logger
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg ProviderConfig, logger *zap.Logger) *AnthropicProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.anthropic.com/v1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	header := http.Header{}
	header.Set("x-api-key", cfg.APIKey)
	header.Set("anthropic-version", anthropicVersion)
	return &AnthropicProvider{
		config: cfg,
		client: newJSONClient(cfg.ID, cfg.Endpoint, cfg.Timeout, header),
		logger: logger,
	}
}

func (p *AnthropicProvider) ID() string   { return p.config.ID }
func (p *AnthropicProvider) Name() string { return p.config.Name }

type anthropicRequest struct {
	Model         string         `json:"model"`
	Messages      []anthropicMsg `json:"messages"`
	System        string         `json:"system,omitempty"`
	MaxTokens     int            `json:"max_tokens"`
	Temperature   float64        `json:"temperature,omitempty"`
	StopSequences []string       `json:"stop_sequences,omitempty"`
}

type anthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Chat sends a non-streaming request to Claude.
func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	var out anthropicResponse
	if err := p.client.post(ctx, "/messages", p.convertRequest(req), &out); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	usage := Usage{
		PromptTokens:     out.Usage.InputTokens,
		CompletionTokens: out.Usage.OutputTokens,
		TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
	}
	p.logger.Debug("anthropic chat complete",
		zap.String("provider", p.config.ID),
		zap.String("model", out.Model),
		zap.Int("tokens", usage.TotalTokens),
		zap.Duration("duration", time.Since(start)))

	return &ChatResponse{
		Model:        out.Model,
		Content:      text.String(),
		FinishReason: out.StopReason,
		Usage:        usage,
	}, nil
}

// convertRequest folds every system message into the top-level system field
// and merges consecutive same-role turns, which the messages API rejects.
func (p *AnthropicProvider) convertRequest(req *ChatRequest) *anthropicRequest {
	filled := p.config.fill(req, defaultAnthropicModel)
	ar := &anthropicRequest{
		Model:         filled.Model,
		MaxTokens:     filled.MaxTokens,
		Temperature:   filled.Temperature,
		StopSequences: filled.Stop,
	}
	if ar.MaxTokens == 0 {
		ar.MaxTokens = anthropicMaxTokens
	}
	var system []string
	for _, m := range filled.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		if n := len(ar.Messages); n > 0 && ar.Messages[n-1].Role == m.Role {
			ar.Messages[n-1].Content += "\n\n" + m.Content
			continue
		}
		ar.Messages = append(ar.Messages, anthropicMsg{Role: m.Role, Content: m.Content})
	}
	ar.System = strings.Join(system, "\n\n")
	if len(ar.Messages) == 0 {
		ar.Messages = []anthropicMsg{{Role: "user", Content: "Continue."}}
	}
	return ar
}
