package embedding

import (
	"context"
	"fmt"
	"net/http"
)

const defaultBatchSize = 64

// APIProvider calls an OpenAI-compatible /embeddings endpoint.
type APIProvider struct {
	endpoint string
	model    string
	apiKey   string
	batch    int
	client   *http.Client
	dim      learnedDim
}

// NewAPIProvider creates a new APIProvider from the given Config.
func NewAPIProvider(cfg Config) *APIProvider {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &APIProvider{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		batch:    batch,
		client:   httpClient(cfg.Timeout),
		dim:      learnedDim{configured: cfg.Dimension},
	}
}

type apiRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type apiEmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type apiResponse struct {
	Data []apiEmbeddingData `json:"data"`
}

// Embed sends texts in chunks of the batch size and returns vectors in input order.
func (p *APIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batch {
		end := min(start+p.batch, len(texts))
		vecs, err := p.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	p.dim.observe(out)
	return out, nil
}

func (p *APIProvider) embedChunk(ctx context.Context, chunk []string) ([][]float32, error) {
	var result apiResponse
	if err := postJSON(ctx, p.client, p.endpoint+"/embeddings", p.apiKey,
		apiRequest{Model: p.model, Input: chunk}, &result); err != nil {
		return nil, err
	}
	if len(result.Data) != len(chunk) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrUnavailable, len(result.Data), len(chunk))
	}

	// Servers may return data out of order; place each vector by its index.
	vecs := make([][]float32, len(chunk))
	for i, d := range result.Data {
		idx := d.Index
		if idx < 0 || idx >= len(vecs) || vecs[idx] != nil {
			idx = i
		}
		vecs[idx] = d.Embedding
	}
	return vecs, nil
}

// Dimension is the observed vector length, or the configured one before the first call.
func (p *APIProvider) Dimension() int { return p.dim.get() }
