// Package embedding turns memory text into vectors and scores vector similarity.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// ErrUnavailable wraps transport and decoding failures from remote embedders.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string        `json:"provider"` // "api", "local" or "hash"
	Endpoint  string        `json:"endpoint"`
	Model     string        `json:"model"`
	APIKey    string        `json:"api_key"`
	Dimension int           `json:"dimension"`
	CacheSize int64         `json:"cache_size"` // max cached vectors, 0 disables the cache
	BatchSize int           `json:"batch_size"` // texts per request for "api", default 64
	Timeout   time.Duration `json:"timeout"`
}

// New builds the provider named by cfg.Provider, wrapped in a cache when cfg.CacheSize > 0.
func New(cfg Config) (Provider, error) {
	var p Provider
	switch cfg.Provider {
	case "api":
		p = NewAPIProvider(cfg)
	case "local":
		p = NewLocalProvider(cfg)
	case "", "hash":
		p = NewHashProvider(cfg.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		c, err := NewCached(p, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return p, nil
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, p Provider, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("%w: empty embedding result", ErrUnavailable)
	}
	return vecs[0], nil
}

// learnedDim reports the configured dimension until a provider has returned
// a real vector, then the observed length.
type learnedDim struct {
	configured int
	seen       atomic.Int64
}

func (d *learnedDim) observe(vecs [][]float32) {
	if len(vecs) > 0 && len(vecs[0]) > 0 {
		d.seen.CompareAndSwap(0, int64(len(vecs[0])))
	}
}

func (d *learnedDim) get() int {
	if n := d.seen.Load(); n > 0 {
		return int(n)
	}
	return d.configured
}

func httpClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// postJSON sends body to url and decodes the JSON response into out.
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: API returned status %d: %s", ErrUnavailable, resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}
