package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gorm.io/gorm"

	"github.com/sahilchouksey/lecture-chat-api/model"
)

// SearchConfig tunes retrieval
type SearchConfig struct {
	TopK            int
	SimilarityFloor float64
}

// DefaultSearchConfig returns the default retrieval configuration
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		TopK:            5,
		SimilarityFloor: 0.7,
	}
}

// anchorBonus is added to a chunk's ranking key when it belongs to the
// session's anchor video. It biases ordering toward the anchor without
// excluding the rest of the library: the similarity floor and the reported
// score both use the raw cosine.
const anchorBonus = 0.05

// SearchResult pairs a chunk with its similarity score
type SearchResult struct {
	Chunk model.Chunk
	Score float64
}

// SearchService retrieves the chunks most similar to a query embedding.
// Candidate rows are pre-filtered in SQL by tenant and current generation, so
// no row belonging to another tenant or a superseded chunk set is ever scored.
type SearchService struct {
	db       *gorm.DB
	provider EmbeddingProvider
	config   SearchConfig
}

// NewSearchService creates a new search service
func NewSearchService(db *gorm.DB, provider EmbeddingProvider, config SearchConfig) *SearchService {
	if config.TopK <= 0 {
		config.TopK = DefaultSearchConfig().TopK
	}
	return &SearchService{db: db, provider: provider, config: config}
}

// Search embeds the query text and returns the top matches within the tenant.
// A non-nil anchorVideoID biases ranking toward that video's chunks; candidates
// always span the whole library, so a question answered elsewhere still lands.
func (s *SearchService) Search(ctx context.Context, tenantID uint, anchorVideoID *uint, query string) ([]SearchResult, int, error) {
	result, err := s.provider.CreateEmbeddings(ctx, []string{query})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(result.Vectors) == 0 || result.Vectors[0] == nil {
		return nil, result.PromptTokens, fmt.Errorf("provider returned no vector for query")
	}

	candidates, err := s.loadCandidates(ctx, tenantID)
	if err != nil {
		return nil, result.PromptTokens, err
	}

	ranked := RankChunks(result.Vectors[0], candidates, s.config.SimilarityFloor, s.config.TopK, anchorVideoID)
	return ranked, result.PromptTokens, nil
}

// loadCandidates fetches embedded chunks for completed videos, restricted to
// each video's current chunk generation
func (s *SearchService) loadCandidates(ctx context.Context, tenantID uint) ([]model.Chunk, error) {
	var chunks []model.Chunk
	err := s.db.WithContext(ctx).
		Joins("JOIN videos ON videos.id = chunks.video_id").
		Where("chunks.tenant_id = ?", tenantID).
		Where("videos.status = ?", model.VideoStatusCompleted).
		Where("chunks.generation = videos.chunk_generation").
		Where("chunks.embedding IS NOT NULL").
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk candidates: %w", err)
	}
	return chunks, nil
}

// RankChunks scores candidates against the query vector and returns the top k
// at or above the similarity floor. Chunks from the anchor video (when set)
// get a ranking bonus; the floor is applied to the raw score, so the anchor
// never resurrects an irrelevant chunk. Ties break on (video, ordinal) so
// equal keys always rank deterministically.
func RankChunks(queryVec []float64, candidates []model.Chunk, floor float64, k int, anchorID *uint) []SearchResult {
	results := make([]SearchResult, 0, len(candidates))
	for _, chunk := range candidates {
		score := CosineSimilarity(queryVec, chunk.Embedding)
		if score >= floor {
			results = append(results, SearchResult{Chunk: chunk, Score: score})
		}
	}

	rankKey := func(r SearchResult) float64 {
		if anchorID != nil && r.Chunk.VideoID == *anchorID {
			return r.Score + anchorBonus
		}
		return r.Score
	}
	sort.Slice(results, func(i, j int) bool {
		ki, kj := rankKey(results[i]), rankKey(results[j])
		if ki != kj {
			return ki > kj
		}
		if results[i].Chunk.VideoID != results[j].Chunk.VideoID {
			return results[i].Chunk.VideoID < results[j].Chunk.VideoID
		}
		return results[i].Chunk.OrdinalIndex < results[j].Chunk.OrdinalIndex
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-magnitude vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
