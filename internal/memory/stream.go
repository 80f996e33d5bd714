package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/nuka-dialogue/internal/embedding"
	"github.com/nidhogg/nuka-dialogue/internal/provider"
	"github.com/nidhogg/nuka-dialogue/internal/vectorstore"
	"go.uber.org/zap"
)

// Observer is notified of stream and reflection activity.
type Observer interface {
	MemoryAdded(subject string, importance float64)
	ReflectionCompleted(subject string, insights int, elapsed time.Duration)
}

// Option customizes a Stream.
type Option func(*Stream)

// WithClock sets the time source for record timestamps and recency.
func WithClock(c Clock) Option {
	return func(s *Stream) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithIndex narrows query candidates through a vector index.
func WithIndex(idx vectorstore.Index) Option {
	return func(s *Stream) { s.index = idx }
}

// WithSimilarity overrides the embedding similarity used for ranking.
func WithSimilarity(sim embedding.Similarity) Option {
	return func(s *Stream) {
		if sim != nil {
			s.ranker.Similarity = sim
		}
	}
}

// WithObserver registers an activity observer.
func WithObserver(o Observer) Option {
	return func(s *Stream) { s.observer = o }
}

// Stream is one agent's append-only memory. Records are addressed by ordinal;
// accessed[i] holds the last access time of records[i].
type Stream struct {
	subject  string
	cfg      Config
	llm      provider.LLM
	embedder embedding.Provider
	ranker   Ranker
	clock    Clock
	index    vectorstore.Index
	observer Observer
	logger   *zap.Logger

	mu       sync.Mutex
	records  []Record
	accessed []time.Time
	// indexStale is set when an index insert fails; queries then scan everything.
	indexStale bool
	// unindexed holds ordinals whose zero vectors the index cannot store.
	// They join every index-narrowed candidate set.
	unindexed []uint64
}

// NewStream creates an empty stream for subject, usually the owning agent's name.
func NewStream(subject string, llm provider.LLM, embedder embedding.Provider, cfg Config, logger *zap.Logger, opts ...Option) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	s := &Stream{
		subject:  subject,
		cfg:      cfg,
		llm:      llm,
		embedder: embedder,
		ranker:   NewRanker(cfg, nil),
		clock:    systemClock{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subject returns the name the stream's prompts refer to.
func (s *Stream) Subject() string { return s.subject }

// Config returns the effective configuration.
func (s *Stream) Config() Config { return s.cfg }

// Now reads the stream's clock.
func (s *Stream) Now() time.Time { return s.clock.Now() }

// Add scores and embeds content, then appends it. The assigned importance is
// returned so callers can feed the reflection engine.
func (s *Stream) Add(ctx context.Context, content string) (float64, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, ErrEmptyContent
	}
	importance, err := s.scoreImportance(ctx, content)
	if err != nil {
		return 0, err
	}
	vec, err := embedding.EmbedOne(ctx, s.embedder, content)
	if err != nil {
		return 0, fmt.Errorf("embed memory: %w", err)
	}

	s.mu.Lock()
	now := s.clock.Now()
	ordinal := uint64(len(s.records))
	s.records = append(s.records, Record{
		Ordinal:    ordinal,
		Content:    content,
		CreatedAt:  now,
		Importance: importance,
		Embedding:  vec,
	})
	s.accessed = append(s.accessed, now)
	switch {
	case s.index == nil || s.indexStale:
	case isZeroVector(vec):
		s.unindexed = append(s.unindexed, ordinal)
	default:
		if err := s.index.Insert(ctx, ordinal, vec); err != nil {
			s.indexStale = true
			s.logger.Warn("index insert failed, falling back to full scan",
				zap.String("subject", s.subject),
				zap.Uint64("ordinal", ordinal),
				zap.Error(err))
		}
	}
	s.mu.Unlock()

	s.logger.Debug("memory added",
		zap.String("subject", s.subject),
		zap.Uint64("ordinal", ordinal),
		zap.Float64("importance", importance))
	if s.observer != nil {
		s.observer.MemoryAdded(s.subject, importance)
	}
	return importance, nil
}

// Query returns at most k records ranked against text, best first, and marks
// them accessed. An empty stream yields no records and no error.
func (s *Stream) Query(ctx context.Context, text string, k int) ([]Retrieved, error) {
	if k <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	empty := len(s.records) == 0
	s.mu.Unlock()
	if empty {
		return nil, nil
	}

	vec, err := embedding.EmbedOne(ctx, s.embedder, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	results := s.ranker.Rank(now, vec, s.candidates(ctx, vec, k), k)
	for _, r := range results {
		s.accessed[r.Ordinal] = now
	}
	return results, nil
}

// candidates must be called with s.mu held. The index only narrows the set
// when it would return fewer records than the stream holds.
func (s *Stream) candidates(ctx context.Context, vec []float32, k int) []Candidate {
	limit := s.cfg.CandidateLimit
	if limit < k {
		limit = k
	}
	if s.index != nil && !s.indexStale && s.cfg.CandidateLimit > 0 && limit < len(s.records) {
		ids, err := s.index.Search(ctx, vec, limit)
		if err != nil {
			s.logger.Warn("index search failed, scanning all records",
				zap.String("subject", s.subject), zap.Error(err))
		} else if out, ok := s.indexed(ids); ok {
			return out
		}
	}
	out := make([]Candidate, len(s.records))
	for i := range s.records {
		out[i] = Candidate{Record: &s.records[i], LastAccessedAt: s.accessed[i]}
	}
	return out
}

// indexed resolves index hits plus the unindexed ordinals. It reports false
// when the index returned nothing or an ordinal the stream does not hold.
func (s *Stream) indexed(ids []uint64) ([]Candidate, bool) {
	if len(ids) == 0 {
		return nil, false
	}
	out := make([]Candidate, 0, len(ids)+len(s.unindexed))
	seen := make(map[uint64]bool, len(ids)+len(s.unindexed))
	add := func(id uint64) {
		if seen[id] {
			return
		}
		seen[id] = true
		out = append(out, Candidate{Record: &s.records[id], LastAccessedAt: s.accessed[id]})
	}
	for _, id := range ids {
		if id >= uint64(len(s.records)) {
			s.logger.Warn("index returned unknown ordinal, scanning all records",
				zap.String("subject", s.subject), zap.Uint64("ordinal", id))
			return nil, false
		}
		add(id)
	}
	for _, id := range s.unindexed {
		add(id)
	}
	return out, true
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Recent returns up to n of the newest records, oldest first.
func (s *Stream) Recent(n int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		return nil
	}
	start := len(s.records) - n
	if start < 0 {
		start = 0
	}
	out := make([]Record, len(s.records)-start)
	copy(out, s.records[start:])
	return out
}

// Records returns a snapshot of every record in insertion order.
func (s *Stream) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// LastAccessed reports the side-table entry for ordinal.
func (s *Stream) LastAccessed(ordinal uint64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ordinal >= uint64(len(s.accessed)) {
		return time.Time{}, false
	}
	return s.accessed[ordinal], true
}

// Len is the number of stored records.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Reset discards every record and clears the index.
func (s *Stream) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.accessed = nil
	s.unindexed = nil
	s.indexStale = false
	if s.index != nil {
		if err := s.index.Reset(ctx); err != nil {
			s.indexStale = true
			return fmt.Errorf("reset index: %w", err)
		}
	}
	return nil
}
