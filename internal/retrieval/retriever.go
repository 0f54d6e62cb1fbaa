package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/raphaelgruber/lecturekb/internal/concept"
	"github.com/raphaelgruber/lecturekb/internal/llm"
)

// Tuning defaults. The score threshold is calibrated against the
// rerank model's score distribution, not a universal constant; tune it
// per provider.
const (
	DefaultRecallK        = 100
	DefaultRerankK        = 15
	DefaultScoreThreshold = 0.98

	// relaxMinResults: fewer survivors than this triggers the top-5
	// raw-score fallback so legitimately related content is never
	// filtered down to nothing.
	relaxMinResults = 3
	relaxTopN       = 5

	// embedSubBatch bounds one embedding API call.
	embedSubBatch = 10
)

// Embedder is the dense embedding dependency.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Reranker is the cross-encoder scoring dependency.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]llm.RerankResult, error)
}

// Candidate is one scored link candidate.
type Candidate struct {
	Title string
	Score float64
}

// Config tunes the two retrieval stages.
type Config struct {
	RecallK        int
	RerankK        int
	ScoreThreshold float64
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		RecallK:        DefaultRecallK,
		RerankK:        DefaultRerankK,
		ScoreThreshold: DefaultScoreThreshold,
	}
}

// Retriever finds link candidates for a note among the concept graph.
type Retriever struct {
	embedder Embedder
	reranker Reranker
	cache    *Cache
	cfg      Config
}

// New creates a Retriever. A nil reranker degrades to recall-only
// ranking.
func New(embedder Embedder, reranker Reranker, cache *Cache, cfg Config) *Retriever {
	if cfg.RecallK <= 0 {
		cfg.RecallK = DefaultRecallK
	}
	if cfg.RerankK <= 0 {
		cfg.RerankK = DefaultRerankK
	}
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = DefaultScoreThreshold
	}
	return &Retriever{embedder: embedder, reranker: reranker, cache: cache, cfg: cfg}
}

// BuildEmbeddings ensures every concept has a cached embedding,
// computing missing ones in bounded sub-batches.
func (r *Retriever) BuildEmbeddings(ctx context.Context, store *concept.Store) error {
	var names, texts []string
	for _, title := range store.Titles() {
		rec, _ := store.Get(title)
		desc := Describe(title, rec)
		if _, ok := r.cache.Get(title, desc); !ok {
			names = append(names, title)
			texts = append(texts, desc)
		}
	}
	if len(names) == 0 {
		return nil
	}

	slog.Info("computing concept embeddings", "missing", len(names), "cached", r.cache.Len())
	for start := 0; start < len(names); start += embedSubBatch {
		end := start + embedSubBatch
		if end > len(names) {
			end = len(names)
		}
		vectors, err := r.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			if llm.IsFatal(err) {
				return fmt.Errorf("embed concepts: %w", err)
			}
			slog.Warn("embedding sub-batch failed, affected concepts skipped",
				"from", start, "to", end, "error", err)
			continue
		}
		for i, vec := range vectors {
			r.cache.Put(names[start+i], texts[start+i], vec)
		}
	}
	r.cache.Save()
	return nil
}

// FindCandidates runs recall then rerank for a query. Stage one takes
// the top RecallK concepts by cosine similarity, skipping concepts
// with no retrievable embedding. Stage two keeps rerank scores at or
// above the threshold, capped at RerankK. If fewer than three survive
// the threshold, the top five by raw rerank score are returned
// instead; the result is never empty while any candidate exists.
func (r *Retriever) FindCandidates(ctx context.Context, query string, store *concept.Store) ([]Candidate, error) {
	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	recalled := r.recall(queryVec, store)
	if len(recalled) == 0 {
		return nil, nil
	}
	if r.reranker == nil {
		return capResults(recalled, r.cfg.RerankK), nil
	}

	return r.rerank(ctx, query, store, recalled)
}

// recall scores every embedded concept against the query vector.
func (r *Retriever) recall(queryVec []float32, store *concept.Store) []Candidate {
	var candidates []Candidate
	skipped := 0
	for _, title := range store.Titles() {
		rec, _ := store.Get(title)
		vec, ok := r.cache.Get(title, Describe(title, rec))
		if !ok {
			skipped++
			continue
		}
		candidates = append(candidates, Candidate{Title: title, Score: cosine(queryVec, vec)})
	}
	if skipped > 0 {
		slog.Debug("concepts without embeddings skipped in recall", "skipped", skipped)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return capResults(candidates, r.cfg.RecallK)
}

// rerank scores the recalled candidates with the cross-encoder and
// applies the threshold with its relaxation fallback.
func (r *Retriever) rerank(ctx context.Context, query string, store *concept.Store, recalled []Candidate) ([]Candidate, error) {
	docs := make([]string, len(recalled))
	for i, c := range recalled {
		rec, _ := store.Get(c.Title)
		docs[i] = Describe(c.Title, rec)
	}

	results, err := r.reranker.Rerank(ctx, query, docs)
	if err != nil {
		return nil, fmt.Errorf("rerank candidates: %w", err)
	}

	scored := make([]Candidate, 0, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(recalled) {
			continue
		}
		scored = append(scored, Candidate{Title: recalled[res.Index].Title, Score: res.Score})
	}
	if len(scored) == 0 {
		// A rerank response with no usable scores must not erase the
		// recall stage's work: fall back to cosine ordering.
		slog.Warn("rerank returned no results, falling back to recall ordering", "candidates", len(recalled))
		return capResults(recalled, relaxTopN), nil
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	var kept []Candidate
	for _, c := range scored {
		if c.Score >= r.cfg.ScoreThreshold {
			kept = append(kept, c)
		}
	}
	kept = capResults(kept, r.cfg.RerankK)

	if len(kept) < relaxMinResults {
		// Recall over precision: the threshold was too strict for this
		// query, fall back to the best raw scores.
		relaxed := capResults(scored, relaxTopN)
		slog.Debug("rerank threshold relaxed",
			"survivors", len(kept),
			"threshold", r.cfg.ScoreThreshold,
			"returned", len(relaxed))
		return relaxed, nil
	}
	return kept, nil
}

// Describe renders a concept into the text its embedding and rerank
// scores are computed over: name, aliases, subject, tags and a few
// related titles.
func Describe(title string, rec concept.Record) string {
	var parts []string
	parts = append(parts, concept.BareName(title))
	if len(rec.Aliases) > 0 {
		parts = append(parts, "别名: "+strings.Join(rec.Aliases, ", "))
	}
	if rec.Subject != "" {
		parts = append(parts, "学科: "+rec.Subject)
	}
	if len(rec.Tags) > 0 {
		parts = append(parts, "标签: "+strings.Join(rec.Tags, ", "))
	}
	if len(rec.Related) > 0 {
		related := rec.Related
		if len(related) > 3 {
			related = related[:3]
		}
		names := make([]string, len(related))
		for i, t := range related {
			names[i] = concept.BareName(t)
		}
		parts = append(parts, "相关: "+strings.Join(names, ", "))
	}
	return strings.Join(parts, " | ")
}

func capResults(candidates []Candidate, n int) []Candidate {
	if len(candidates) > n {
		return candidates[:n]
	}
	return candidates
}

// cosine computes cosine similarity, returning 0 for zero-norm or
// mismatched vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
