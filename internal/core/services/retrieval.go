package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driving"
	"github.com/Pg1910/clinical-rag/internal/logger"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

// normEpsilon keeps min-max normalisation finite when all scores are equal.
const normEpsilon = 1e-9

// fusedCandidate holds intermediate scores before hydration.
type fusedCandidate struct {
	ordinal int
	score   float64
}

// RetrievalService fuses BM25 and vector relevance over one corpus.
type RetrievalService struct {
	embedding driven.EmbeddingService
	settings  domain.RetrievalSettings
}

// NewRetrievalService creates a new retrieval service.
// The embedding parameter is optional (can be nil); searches are then lexical-only.
func NewRetrievalService(embedding driven.EmbeddingService, settings domain.RetrievalSettings) *RetrievalService {
	defaults := domain.DefaultAppSettings().Retrieval
	if settings.LexicalWeight == 0 && settings.VectorWeight == 0 {
		settings.LexicalWeight = defaults.LexicalWeight
		settings.VectorWeight = defaults.VectorWeight
	}
	if settings.VectorPoolFactor <= 0 {
		settings.VectorPoolFactor = defaults.VectorPoolFactor
	}
	if settings.VectorPoolMin <= 0 {
		settings.VectorPoolMin = defaults.VectorPoolMin
	}
	return &RetrievalService{
		embedding: embedding,
		settings:  settings,
	}
}

// Search returns at most topK results in non-increasing fused score order.
// Equal scores keep corpus order. Documents with neither a lexical match nor
// a place in the vector pool are not returned.
func (s *RetrievalService) Search(
	ctx context.Context, corpus *driven.Corpus, query string, topK int,
) ([]domain.RetrievalResult, error) {
	if corpus == nil || corpus.Store == nil || corpus.Lexical == nil {
		return nil, &domain.RetrievalError{Op: "search", Err: errors.New("corpus not loaded")}
	}
	n := corpus.Len()
	if n == 0 {
		return nil, &domain.RetrievalError{Op: "search", Err: errors.New("corpus is empty")}
	}

	query = strings.TrimSpace(query)
	if query == "" || topK <= 0 {
		return []domain.RetrievalResult{}, nil
	}

	lexical := corpus.Lexical.Scores(query)
	if len(lexical) != n {
		return nil, &domain.RetrievalError{Op: "search", Err: domain.ErrStaleIndex}
	}
	lexNorm := minMax(lexical)

	vecNorm, err := s.vectorScores(ctx, corpus, query, topK)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("vector search unavailable, using lexical scores only: %v", err)
		vecNorm = nil
	}

	candidates := make([]fusedCandidate, 0, n)
	for i := 0; i < n; i++ {
		vec, inPool := vecNorm[i]
		if lexical[i] <= 0 && !inPool {
			continue
		}
		candidates = append(candidates, fusedCandidate{
			ordinal: i,
			score:   s.settings.LexicalWeight*lexNorm[i] + s.settings.VectorWeight*vec,
		})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]domain.RetrievalResult, len(candidates))
	for i, c := range candidates {
		rec := corpus.Store.At(c.ordinal)
		results[i] = domain.RetrievalResult{
			EvidenceID: rec.ID,
			Score:      c.score,
			Text:       rec.RawText,
			Ordinal:    c.ordinal,
		}
	}
	return results, nil
}

// vectorScores returns min-max normalised similarities of the vector pool
// keyed by ordinal. A corpus without vectors yields no scores.
func (s *RetrievalService) vectorScores(
	ctx context.Context, corpus *driven.Corpus, query string, topK int,
) (map[int]float64, error) {
	if corpus.Vectors == nil || corpus.Vectors.Len() == 0 {
		return nil, nil
	}
	if s.embedding == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	q, err := s.embedding.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	pool := min(max(s.settings.VectorPoolFactor*topK, s.settings.VectorPoolMin), corpus.Vectors.Len())
	hits, err := corpus.Vectors.Search(ctx, normalise(q), pool)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	sims := make([]float64, len(hits))
	for i, h := range hits {
		sims[i] = h.Similarity
	}
	norm := minMax(sims)

	out := make(map[int]float64, len(hits))
	for i, h := range hits {
		out[h.Ordinal] = norm[i]
	}
	return out, nil
}

// minMax scales scores to [0,1] as (x-min)/(max-min+eps).
func minMax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := scores[0], scores[0]
	for _, v := range scores[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := hi - lo + normEpsilon
	for i, v := range scores {
		out[i] = (v - lo) / span
	}
	return out
}
