package memory

import (
	"sort"
	"time"

	"github.com/nidhogg/nuka-dialogue/internal/embedding"
)

// Ranker combines similarity, recency and importance into one score.
type Ranker struct {
	Weights       Weights
	DecayRate     float64
	ImportanceMin float64
	ImportanceMax float64
	Similarity    embedding.Similarity
}

// NewRanker builds a ranker from cfg. A nil similarity means cosine.
func NewRanker(cfg Config, sim embedding.Similarity) Ranker {
	cfg = cfg.withDefaults()
	if sim == nil {
		sim = embedding.Cosine
	}
	return Ranker{
		Weights:       cfg.Weights,
		DecayRate:     cfg.DecayRate,
		ImportanceMin: cfg.ImportanceMin,
		ImportanceMax: cfg.ImportanceMax,
		Similarity:    sim,
	}
}

// Candidate pairs a record with its current last access time.
type Candidate struct {
	Record         *Record
	LastAccessedAt time.Time
}

// Score rates one candidate against a query vector at time now.
func (r Ranker) Score(now time.Time, query []float32, c Candidate) Retrieved {
	sim := r.Similarity(query, c.Record.Embedding)
	rec := Recency(r.DecayRate, now.Sub(c.LastAccessedAt))
	imp := NormalizeImportance(c.Record.Importance, r.ImportanceMin, r.ImportanceMax)
	return Retrieved{
		Record:         *c.Record,
		LastAccessedAt: c.LastAccessedAt,
		Score:          r.Weights.Similarity*sim + r.Weights.Recency*rec + r.Weights.Importance*imp,
		Similarity:     sim,
		Recency:        rec,
		ImportanceNorm: imp,
	}
}

// Rank scores every candidate and returns the best k, highest score first.
// Ties go to the newer record, then to the higher ordinal.
func (r Ranker) Rank(now time.Time, query []float32, candidates []Candidate, k int) []Retrieved {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	scored := make([]Retrieved, len(candidates))
	for i, c := range candidates {
		scored[i] = r.Score(now, query, c)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Ordinal > b.Ordinal
	})
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored
}
