package embedding

import (
	"context"
	"fmt"
	"net/http"
)

// LocalProvider calls an Ollama server's batch /api/embed endpoint.
type LocalProvider struct {
	endpoint string
	model    string
	client   *http.Client
	dim      learnedDim
}

// NewLocalProvider creates a new LocalProvider from the given Config.
func NewLocalProvider(cfg Config) *LocalProvider {
	return &LocalProvider{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		client:   httpClient(cfg.Timeout),
		dim:      learnedDim{configured: cfg.Dimension},
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed sends all texts in a single request.
func (p *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var result ollamaEmbedResponse
	if err := postJSON(ctx, p.client, p.endpoint+"/api/embed", "",
		ollamaEmbedRequest{Model: p.model, Input: texts}, &result); err != nil {
		return nil, err
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrUnavailable, len(result.Embeddings), len(texts))
	}
	p.dim.observe(result.Embeddings)
	return result.Embeddings, nil
}

// Dimension is the observed vector length, or the configured one before the first call.
func (p *LocalProvider) Dimension() int { return p.dim.get() }
