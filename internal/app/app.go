// Package app assembles a runnable simulation from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/nuka-dialogue/internal/agent"
	"github.com/nidhogg/nuka-dialogue/internal/bus"
	"github.com/nidhogg/nuka-dialogue/internal/config"
	"github.com/nidhogg/nuka-dialogue/internal/dialogue"
	"github.com/nidhogg/nuka-dialogue/internal/embedding"
	"github.com/nidhogg/nuka-dialogue/internal/memory"
	"github.com/nidhogg/nuka-dialogue/internal/metrics"
	"github.com/nidhogg/nuka-dialogue/internal/provider"
	"github.com/nidhogg/nuka-dialogue/internal/vectorstore"
	"github.com/nidhogg/nuka-dialogue/internal/world"
	"go.uber.org/zap"
)

// Options override parts of the assembly, mainly for tests and offline runs.
type Options struct {
	// LLM replaces the provider router for every agent.
	LLM provider.LLM
	// Embedder replaces the configured embedding provider.
	Embedder embedding.Provider
	// Start is the simulated start time; zero means now.
	Start time.Time
}

// App is a fully wired simulation.
type App struct {
	Config   *config.Config
	Router   *provider.Router
	Clock    *world.SimClock
	Pulse    *world.Heartbeat
	Agents   []*agent.Agent
	Sim      *dialogue.Simulator
	Metrics  *metrics.Metrics
	History  *dialogue.History
	Bus      *bus.TranscriptBus
	Embedder embedding.Provider

	byName  map[string]*agent.Agent
	seeds   map[string][]string
	closers []func() error
	logger  *zap.Logger
}

// Build wires providers, embeddings, vector indexes, agents and the scheduler.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		Config:  cfg,
		Router:  provider.NewRouter(logger),
		Metrics: metrics.New(),
		History: &dialogue.History{Limit: 1000},
		byName:  make(map[string]*agent.Agent),
		seeds:   make(map[string][]string),
		logger:  logger,
	}

	for _, pc := range cfg.Providers {
		a.Router.Register(newProvider(pc, logger))
	}

	embedder := opts.Embedder
	if embedder == nil {
		var err error
		embedder, err = embedding.New(embedding.Config{
			Provider:  cfg.Embedding.Provider,
			Endpoint:  cfg.Embedding.Endpoint,
			Model:     cfg.Embedding.Model,
			APIKey:    cfg.Embedding.APIKey,
			Dimension: cfg.Embedding.Dimension,
			CacheSize: cfg.Embedding.CacheSize,
			BatchSize: cfg.Embedding.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		if c, ok := embedder.(*embedding.Cached); ok {
			a.closers = append(a.closers, func() error { c.Close(); return nil })
		}
	}
	a.Embedder = embedder

	indexes, err := a.openIndexFactory(cfg.Index)
	if err != nil {
		return nil, err
	}

	start := opts.Start
	if start.IsZero() {
		start = time.Now()
	}
	a.Clock = world.NewSimClock(start, logger)

	participants := make([]dialogue.Participant, 0, len(cfg.Simulation.Agents))
	for _, ac := range cfg.Simulation.Agents {
		llm := opts.LLM
		if llm == nil {
			if ac.Provider != "" {
				a.Router.Bind(ac.Name, ac.Provider)
			}
			if len(ac.Fallbacks) > 0 {
				a.Router.SetFallbacks(ac.Name, ac.Fallbacks)
			}
			llm = a.Router.For(ac.Name, ac.Model, cfg.Simulation.MaxTokens)
		}

		streamOpts := []memory.Option{
			memory.WithClock(a.Clock),
			memory.WithSimilarity(embedding.ByName(cfg.Embedding.Similarity)),
			memory.WithObserver(a.Metrics),
		}
		if indexes != nil {
			idx, err := indexes.Open(ctx, ac.Name, embedder.Dimension())
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("open index for %s: %w", ac.Name, err)
			}
			streamOpts = append(streamOpts, memory.WithIndex(idx))
		}
		stream := memory.NewStream(ac.Name, llm, embedder, memoryConfig(cfg.Memory), logger, streamOpts...)

		profile, err := agent.LoadProfile(cfg.Simulation.ProfileDir, ac.Name)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.seeds[ac.Name] = append(append([]string(nil), ac.Memories...), profile.Memories...)

		ag := agent.New(persona(ac, profile), llm, memory.NewReflector(stream, llm, logger),
			agent.Options{ContextK: cfg.Memory.ContextK, RememberDialogue: cfg.Memory.RememberDialogue}, logger)
		a.Agents = append(a.Agents, ag)
		a.byName[ac.Name] = ag
		participants = append(participants, ag)
	}

	if m := cfg.Simulation.SummaryRefreshMinutes; m > 0 {
		a.Pulse = world.NewHeartbeat(time.Duration(m)*time.Minute, a.refreshSummary, logger)
		names := make([]string, 0, len(a.Agents))
		for _, ag := range a.Agents {
			names = append(names, ag.Name())
		}
		a.Pulse.SetNames(names)
		a.Clock.AddListener(a.Pulse)
	}

	policy, err := dialogue.PolicyByName(cfg.Simulation.Policy, cfg.Simulation.Weights, cfg.Simulation.Seed)
	if err != nil {
		a.Close()
		return nil, err
	}
	simOpts := []dialogue.Option{
		dialogue.WithClock(a.Clock, time.Duration(cfg.Simulation.StepMinutes)*time.Minute),
		dialogue.WithListener(a.History),
		dialogue.WithListener(a.Metrics),
		dialogue.WithListener(dialogue.LogListener(logger)),
	}

	if cfg.Redis.URL != "" {
		b, err := bus.Connect(ctx, cfg.Redis.URL, cfg.Redis.StreamPrefix, logger)
		if err != nil {
			logger.Warn("Redis unavailable, running without transcript bus", zap.Error(err))
		} else {
			a.Bus = b
			a.closers = append(a.closers, b.Close)
			simOpts = append(simOpts, dialogue.WithListener(b))
		}
	}

	a.Sim, err = dialogue.NewSimulator(participants, policy, logger, simOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("simulation assembled",
		zap.Int("agents", len(a.Agents)),
		zap.String("policy", cfg.Simulation.Policy),
		zap.String("index", cfg.Index.Type))
	return a, nil
}

// Agent looks up an agent by name.
func (a *App) Agent(name string) (*agent.Agent, bool) {
	ag, ok := a.byName[name]
	return ag, ok
}

// Seed stores each agent's starting memories, from config and from
// MEMORIES.md, and injects the premise from the narrator if one is configured.
func (a *App) Seed(ctx context.Context) error {
	for _, ag := range a.Agents {
		for _, m := range a.seeds[ag.Name()] {
			if err := ag.Observe(ctx, m); err != nil {
				return err
			}
		}
	}
	if p := strings.TrimSpace(a.Config.Simulation.Premise); p != "" {
		if _, err := a.Sim.Inject(ctx, a.Config.Simulation.Narrator, p); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) refreshSummary(ctx context.Context, name string) error {
	ag, ok := a.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", dialogue.ErrUnknownAgent, name)
	}
	_, err := ag.Summary(ctx, true)
	return err
}

// Close releases external connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openIndexFactory(cfg config.IndexConfig) (vectorstore.Factory, error) {
	switch cfg.Type {
	case "chromem":
		return vectorstore.NewChromem(), nil
	case "qdrant":
		c, err := vectorstore.NewClient(vectorstore.QdrantConfig{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			Prefix: cfg.Qdrant.Prefix,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		return c, nil
	default:
		return nil, nil
	}
}

func newProvider(pc config.ProviderConfig, logger *zap.Logger) provider.Provider {
	cfg := provider.ProviderConfig{
		ID:          pc.ID,
		Type:        pc.Type,
		Name:        pc.Name,
		Endpoint:    pc.Endpoint,
		APIKey:      pc.APIKey,
		Models:      pc.Models,
		Extra:       pc.Extra,
		Timeout:     time.Duration(pc.TimeoutSeconds) * time.Second,
		Temperature: pc.Temperature,
		RateLimit:   pc.RateLimit,
		Burst:       pc.Burst,
	}
	var p provider.Provider
	if pc.Type == "anthropic" {
		p = provider.NewAnthropicProvider(cfg, logger)
	} else {
		p = provider.NewOpenAIProvider(cfg, logger)
	}
	return provider.NewRateLimited(p, cfg.RateLimit, cfg.Burst)
}

func memoryConfig(m config.MemoryConfig) memory.Config {
	cfg := memory.DefaultConfig()
	cfg.Weights = memory.Weights{
		Similarity: m.WeightSimilarity,
		Recency:    m.WeightRecency,
		Importance: m.WeightImportance,
	}
	cfg.DecayRate = m.DecayRate
	cfg.ImportanceMin = m.ImportanceMin
	cfg.ImportanceMax = m.ImportanceMax
	cfg.CandidateLimit = m.CandidateLimit
	cfg.Reflection.Threshold = m.ReflectionThreshold
	cfg.Reflection.RecentWindow = m.RecentWindow
	cfg.Reflection.Questions = m.Questions
	cfg.Reflection.InsightsPerQuestion = m.InsightsPerQuestion
	return cfg
}

func persona(ac config.AgentConfig, profile agent.Profile) agent.Persona {
	prompt := ac.SystemPrompt
	if text := profile.Prompt(); text != "" {
		if prompt != "" {
			prompt += "\n\n"
		}
		prompt += text
	}
	return agent.Persona{
		Name:         ac.Name,
		Age:          ac.Age,
		Traits:       ac.Traits,
		Status:       ac.Status,
		Backstory:    ac.Backstory,
		SystemPrompt: prompt,
	}
}
