// Package memory implements an agent's memory stream: an append-only arena of
// importance-scored observations, a time-weighted relevance ranker, and a
// reflection engine that synthesizes insights once enough importance accrues.
package memory

import (
	"errors"
	"time"
)

// ErrEmptyContent is returned when adding a blank observation.
var ErrEmptyContent = errors.New("memory content is empty")

// Record is a single observation. Records are immutable once stored; the
// last access time lives in the stream's side-table.
type Record struct {
	Ordinal    uint64    `json:"ordinal"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	Importance float64   `json:"importance"`
	Embedding  []float32 `json:"-"`
}

// Retrieved is a record returned by a query together with its score breakdown.
type Retrieved struct {
	Record
	LastAccessedAt time.Time `json:"last_accessed_at"`
	Score          float64   `json:"score"`
	Similarity     float64   `json:"similarity"`
	Recency        float64   `json:"recency"`
	ImportanceNorm float64   `json:"importance_norm"`
}

// Clock supplies timestamps for records and recency scoring.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Weights scale the three ranking signals.
type Weights struct {
	Similarity float64 `json:"similarity"`
	Recency    float64 `json:"recency"`
	Importance float64 `json:"importance"`
}

// Config tunes scoring, ranking and reflection for one stream.
type Config struct {
	Weights          Weights `json:"weights"`
	DecayRate        float64 `json:"decay_rate"` // per hour, in (0,1)
	ImportanceMin    float64 `json:"importance_min"`
	ImportanceMax    float64 `json:"importance_max"`
	ImportancePrompt string  `json:"importance_prompt"`
	// CandidateLimit bounds how many index hits the ranker rescoring sees.
	// Zero scans every record.
	CandidateLimit int              `json:"candidate_limit"`
	Reflection     ReflectionConfig `json:"reflection"`
}

// ReflectionConfig controls when and how insights are synthesized.
type ReflectionConfig struct {
	Threshold           float64 `json:"threshold"`
	RecentWindow        int     `json:"recent_window"`
	Questions           int     `json:"questions"`
	InsightsPerQuestion int     `json:"insights_per_question"`
	QuestionPrompt      string  `json:"question_prompt"`
	InsightPrompt       string  `json:"insight_prompt"`
	DirectPrompt        string  `json:"direct_prompt"`
}

// DefaultConfig returns equal weights, 0.99 hourly decay and a 1-10 importance scale.
func DefaultConfig() Config {
	return Config{
		Weights:          Weights{Similarity: 1, Recency: 1, Importance: 1},
		DecayRate:        0.99,
		ImportanceMin:    1,
		ImportanceMax:    10,
		ImportancePrompt: DefaultImportancePrompt,
		Reflection: ReflectionConfig{
			Threshold:           25,
			RecentWindow:        15,
			Questions:           3,
			InsightsPerQuestion: 3,
			QuestionPrompt:      DefaultQuestionPrompt,
			InsightPrompt:       DefaultInsightPrompt,
			DirectPrompt:        DefaultDirectPrompt,
		},
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Weights == (Weights{}) {
		c.Weights = d.Weights
	}
	if c.DecayRate <= 0 || c.DecayRate >= 1 {
		c.DecayRate = d.DecayRate
	}
	if c.ImportanceMax <= c.ImportanceMin {
		c.ImportanceMin, c.ImportanceMax = d.ImportanceMin, d.ImportanceMax
	}
	if c.ImportancePrompt == "" {
		c.ImportancePrompt = d.ImportancePrompt
	}
	r := &c.Reflection
	if r.Threshold <= 0 {
		r.Threshold = d.Reflection.Threshold
	}
	if r.RecentWindow <= 0 {
		r.RecentWindow = d.Reflection.RecentWindow
	}
	if r.Questions <= 0 {
		r.Questions = d.Reflection.Questions
	}
	if r.InsightsPerQuestion <= 0 {
		r.InsightsPerQuestion = d.Reflection.InsightsPerQuestion
	}
	if r.QuestionPrompt == "" {
		r.QuestionPrompt = d.Reflection.QuestionPrompt
	}
	if r.InsightPrompt == "" {
		r.InsightPrompt = d.Reflection.InsightPrompt
	}
	if r.DirectPrompt == "" {
		r.DirectPrompt = d.Reflection.DirectPrompt
	}
	return c
}
