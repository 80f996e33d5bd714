package provider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Router manages multiple LLM providers and routes requests.
type Router struct {
	providers map[string]Provider
	bindings  map[string]string   // agent name -> providerID
	fallbacks map[string][]string // agent name -> fallback provider chain
	defaults  string              // default provider ID
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates a new provider router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		providers: make(map[string]Provider),
		bindings:  make(map[string]string),
		fallbacks: make(map[string][]string),
		logger:    logger,
	}
}

// Register adds a provider to the router.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaults == "" {
		r.defaults = p.ID()
	}
	r.logger.Info("registered provider", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetDefault sets the default provider.
func (r *Router) SetDefault(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = providerID
}

// DefaultID returns the current default provider ID.
func (r *Router) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults
}

// Bind associates an agent with a specific provider.
func (r *Router) Bind(agent, providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[agent] = providerID
}

// SetFallbacks configures fallback providers for an agent.
func (r *Router) SetFallbacks(agent string, providerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[agent] = providerIDs
}

// Route sends a chat request through the provider bound to agent, then its fallbacks.
// Every failure is wrapped with ErrProviderUnavailable.
func (r *Router) Route(ctx context.Context, agent string, req *ChatRequest) (*ChatResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary := r.getProvider(agent)
	if primary == nil {
		return nil, fmt.Errorf("%w: no provider for agent %s", ErrProviderUnavailable, agent)
	}

	resp, err := primary.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	r.logger.Warn("primary provider failed, trying fallbacks",
		zap.String("agent", agent), zap.Error(err))

	for _, fbID := range r.fallbacks[agent] {
		fb, ok := r.providers[fbID]
		if !ok {
			continue
		}
		resp, err = fb.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		r.logger.Warn("fallback provider failed", zap.String("provider", fbID), zap.Error(err))
	}

	return nil, fmt.Errorf("%w: all providers failed for agent %s: %v", ErrProviderUnavailable, agent, err)
}

func (r *Router) getProvider(agent string) Provider {
	if pid, ok := r.bindings[agent]; ok {
		if p, ok := r.providers[pid]; ok {
			return p
		}
	}
	if p, ok := r.providers[r.defaults]; ok {
		return p
	}
	return nil
}

// GetProvider returns a provider by ID.
func (r *Router) GetProvider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// ListProviders returns all registered providers.
func (r *Router) ListProviders() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	return result
}

// For returns an LLM that routes on behalf of agent using model.
func (r *Router) For(agent, model string, maxTokens int) LLM {
	return &routedLLM{router: r, agent: agent, model: model, maxTokens: maxTokens}
}

type routedLLM struct {
	router    *Router
	agent     string
	model     string
	maxTokens int
}

func (l *routedLLM) Generate(ctx context.Context, messages []Message) (string, error) {
	resp, err := l.router.Route(ctx, l.agent, &ChatRequest{
		Model:     l.model,
		Messages:  messages,
		MaxTokens: l.maxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
