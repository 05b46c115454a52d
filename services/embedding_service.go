package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sahilchouksey/lecture-chat-api/model"
	"github.com/sahilchouksey/lecture-chat-api/services/openai"
)

const (
	// maxEmbeddingBatch caps inputs per provider call
	maxEmbeddingBatch = 100

	// interBatchDelay spaces consecutive batch calls so a large video cannot
	// burn the whole requests-per-minute ceiling by itself
	interBatchDelay = 500 * time.Millisecond

	// maxEmbeddingPasses bounds retries over items the provider skipped
	maxEmbeddingPasses = 3
)

// EmbeddingProvider is the slice of the OpenAI client the embedding service
// needs. Skipped inputs come back as nil vectors at their original index.
type EmbeddingProvider interface {
	CreateEmbeddings(ctx context.Context, inputs []string) (*openai.EmbeddingResult, error)
}

// EmbeddingService embeds chunk text in order-preserving batches
type EmbeddingService struct {
	provider EmbeddingProvider
	delay    time.Duration
}

// NewEmbeddingService creates a new embedding service
func NewEmbeddingService(provider EmbeddingProvider) *EmbeddingService {
	return &EmbeddingService{
		provider: provider,
		delay:    interBatchDelay,
	}
}

// EmbedChunks fills each chunk's embedding vector in place and returns the
// total prompt tokens consumed. Items the provider skips are retried in
// follow-up passes that resend only the failed items; chunks that still lack a
// vector after the final pass fail the whole call, since a partially embedded
// video would silently drop passages from retrieval.
func (s *EmbeddingService) EmbedChunks(ctx context.Context, chunks []model.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	pending := make([]int, len(chunks))
	for i := range chunks {
		pending[i] = i
	}

	totalTokens := 0
	for pass := 0; pass < maxEmbeddingPasses && len(pending) > 0; pass++ {
		var failed []int
		for start := 0; start < len(pending); start += maxEmbeddingBatch {
			end := start + maxEmbeddingBatch
			if end > len(pending) {
				end = len(pending)
			}
			batch := pending[start:end]

			inputs := make([]string, len(batch))
			for i, idx := range batch {
				inputs[i] = chunks[idx].Text
			}

			result, err := s.provider.CreateEmbeddings(ctx, inputs)
			if err != nil {
				return totalTokens, fmt.Errorf("embedding batch failed: %w", err)
			}
			totalTokens += result.PromptTokens

			for i, idx := range batch {
				if i < len(result.Vectors) && result.Vectors[i] != nil {
					chunks[idx].Embedding = result.Vectors[i]
				} else {
					failed = append(failed, idx)
				}
			}

			if end < len(pending) && s.delay > 0 {
				select {
				case <-ctx.Done():
					return totalTokens, ctx.Err()
				case <-time.After(s.delay):
				}
			}
		}
		pending = failed
	}

	if len(pending) > 0 {
		return totalTokens, fmt.Errorf("%d of %d chunks still unembedded after %d passes",
			len(pending), len(chunks), maxEmbeddingPasses)
	}
	return totalTokens, nil
}
