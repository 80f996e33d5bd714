package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Providers  []ProviderConfig `json:"providers"`
	Embedding  EmbeddingConfig  `json:"embedding"`
	Memory     MemoryConfig     `json:"memory"`
	Index      IndexConfig      `json:"index"`
	Redis      RedisConfig      `json:"redis"`
	Simulation SimulationConfig `json:"simulation"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"` // "openai" or "anthropic"
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Models   []string          `json:"models,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
	// TimeoutSeconds bounds each request; 0 keeps the provider default.
	TimeoutSeconds int     `json:"timeout_seconds,omitempty"`
	RateLimit      float64 `json:"rate_limit,omitempty"` // requests per second, 0 = unlimited
	Burst          int     `json:"burst,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
}

type EmbeddingConfig struct {
	Provider   string `json:"provider"` // "api", "local" or "hash"
	Endpoint   string `json:"endpoint"`
	Model      string `json:"model"`
	APIKey     string `json:"api_key"`
	Dimension  int    `json:"dimension"`
	CacheSize  int64  `json:"cache_size"`
	BatchSize  int    `json:"batch_size,omitempty"`
	Similarity string `json:"similarity"` // "cosine" or "euclidean"
}

type MemoryConfig struct {
	WeightSimilarity    float64 `json:"weight_similarity"`
	WeightRecency       float64 `json:"weight_recency"`
	WeightImportance    float64 `json:"weight_importance"`
	DecayRate           float64 `json:"decay_rate"`
	ImportanceMin       float64 `json:"importance_min"`
	ImportanceMax       float64 `json:"importance_max"`
	ReflectionThreshold float64 `json:"reflection_threshold"`
	RecentWindow        int     `json:"recent_window"`
	Questions           int     `json:"questions"`
	InsightsPerQuestion int     `json:"insights_per_question"`
	CandidateLimit      int     `json:"candidate_limit"`
	ContextK            int     `json:"context_k"`
	RememberDialogue    bool    `json:"remember_dialogue"`
}

type IndexConfig struct {
	Type   string       `json:"type"` // "none", "chromem" or "qdrant"
	Qdrant QdrantConfig `json:"qdrant"`
}

type QdrantConfig struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Prefix string `json:"prefix"`
}

type RedisConfig struct {
	URL          string `json:"url"`
	StreamPrefix string `json:"stream_prefix"`
}

type AgentConfig struct {
	Name         string `json:"name"`
	Age          int    `json:"age,omitempty"`
	Traits       string `json:"traits"`
	Status       string `json:"status"`
	Backstory    string `json:"backstory"`
	SystemPrompt string `json:"system_prompt"`
	Provider     string `json:"provider,omitempty"` // router binding
	Model        string `json:"model,omitempty"`
	// Fallbacks are provider IDs tried in order when Provider fails.
	Fallbacks []string `json:"fallbacks,omitempty"`
	// Memories are observed before the run starts.
	Memories []string `json:"memories,omitempty"`
}

type SimulationConfig struct {
	Agents      []AgentConfig `json:"agents"`
	ProfileDir  string        `json:"profile_dir"`
	Policy      string        `json:"policy"` // "interleaved", "round_robin" or "weighted"
	Weights     []float64     `json:"weights,omitempty"`
	Seed        uint64        `json:"seed"`
	Narrator    string        `json:"narrator"`
	Premise     string        `json:"premise"`
	MaxTurns    int           `json:"max_turns"`
	StepMinutes int           `json:"step_minutes"`
	MaxTokens   int           `json:"max_tokens"`
	// SummaryRefreshMinutes regenerates agent summaries every so much world
	// time; 0 keeps the first summary until forced.
	SummaryRefreshMinutes int `json:"summary_refresh_minutes,omitempty"`
}

// Default returns a configuration that runs offline with the hash embedder.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, LogLevel: "info"},
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			Dimension:  256,
			CacheSize:  4096,
			Similarity: "cosine",
		},
		Memory: MemoryConfig{
			WeightSimilarity:    1,
			WeightRecency:       1,
			WeightImportance:    1,
			DecayRate:           0.99,
			ImportanceMin:       1,
			ImportanceMax:       10,
			ReflectionThreshold: 25,
			RecentWindow:        15,
			Questions:           3,
			InsightsPerQuestion: 3,
			CandidateLimit:      50,
			ContextK:            5,
		},
		Index: IndexConfig{
			Type:   "chromem",
			Qdrant: QdrantConfig{Host: "localhost", Port: 6334},
		},
		Redis: RedisConfig{StreamPrefix: "nuka:dialogue:"},
		Simulation: SimulationConfig{
			ProfileDir:  "agents",
			Policy:      "interleaved",
			Narrator:    "Narrator",
			MaxTurns:    10,
			StepMinutes: 10,
			MaxTokens:   512,
		},
	}
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable references
// and overlays the result on Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	cfg := Default()
	if err := json.Unmarshal([]byte(resolved), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first inconsistency in the configuration.
func (c *Config) Validate() error {
	if len(c.Simulation.Agents) == 0 {
		return errors.New("simulation.agents is empty")
	}
	seen := make(map[string]bool, len(c.Simulation.Agents))
	for i, a := range c.Simulation.Agents {
		if a.Name == "" {
			return fmt.Errorf("simulation.agents[%d] has no name", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate agent name %q", a.Name)
		}
		seen[a.Name] = true
	}
	m := c.Memory
	if m.DecayRate <= 0 || m.DecayRate >= 1 {
		return fmt.Errorf("memory.decay_rate %v must be in (0,1)", m.DecayRate)
	}
	if m.ImportanceMax <= m.ImportanceMin {
		return fmt.Errorf("memory importance range [%v,%v] is empty", m.ImportanceMin, m.ImportanceMax)
	}
	if m.ReflectionThreshold <= 0 {
		return errors.New("memory.reflection_threshold must be positive")
	}
	switch c.Index.Type {
	case "", "none", "chromem", "qdrant":
	default:
		return fmt.Errorf("unknown index type %q", c.Index.Type)
	}
	switch c.Simulation.Policy {
	case "", "interleaved", "round_robin", "weighted":
	default:
		return fmt.Errorf("unknown selection policy %q", c.Simulation.Policy)
	}
	for _, p := range c.Providers {
		if p.Type != "openai" && p.Type != "anthropic" {
			return fmt.Errorf("provider %s: unknown type %q", p.ID, p.Type)
		}
	}
	return nil
}
