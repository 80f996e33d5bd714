package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// OpenAIProvider talks to OpenAI-compatible chat completion APIs, which
// covers Ollama, vLLM and most hosted gateways.
type OpenAIProvider struct {
	config ProviderConfig
	client *jsonClient
	logger *zap.Logger
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(cfg ProviderConfig, logger *zap.Logger) *OpenAIProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return &OpenAIProvider{
		config: cfg,
		client: newJSONClient(cfg.ID, cfg.Endpoint, cfg.Timeout, header),
		logger: logger,
	}
}

func (p *OpenAIProvider) ID() string   { return p.config.ID }
func (p *OpenAIProvider) Name() string { return p.config.Name }

// chatPath is /chat/completions, or /<model>/chat/completions when
// Extra["path_model"] is "true".
func (p *OpenAIProvider) chatPath(model string) string {
	if p.config.Extra["path_model"] == "true" && model != "" {
		return "/" + model + "/chat/completions"
	}
	return "/chat/completions"
}

type openAIChatResponse struct {
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   Usage          `json:"usage"`
}

type openAIChoice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Chat sends a non-streaming completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	body := p.config.fill(req, "")

	start := time.Now()
	var out openAIChatResponse
	if err := p.client.post(ctx, p.chatPath(body.Model), body, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("empty response from provider")
	}

	p.logger.Debug("openai chat complete",
		zap.String("provider", p.config.ID),
		zap.String("model", out.Model),
		zap.Int("tokens", out.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)))

	choice := out.Choices[0]
	return &ChatResponse{
		Model:        out.Model,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        out.Usage,
	}, nil
}
