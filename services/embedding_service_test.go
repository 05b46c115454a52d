package services

import (
	"context"
	"errors"
	"testing"

	"github.com/sahilchouksey/lecture-chat-api/model"
	"github.com/sahilchouksey/lecture-chat-api/services/openai"
)

// fakeEmbedder records batch sizes and can skip configured inputs on their
// first appearance, mimicking partial provider failures
type fakeEmbedder struct {
	batchSizes []int
	skipOnce   map[string]bool
	failAll    bool
}

func (f *fakeEmbedder) CreateEmbeddings(ctx context.Context, inputs []string) (*openai.EmbeddingResult, error) {
	if f.failAll {
		return nil, errors.New("provider unavailable")
	}
	f.batchSizes = append(f.batchSizes, len(inputs))

	vectors := make([][]float64, len(inputs))
	for i, input := range inputs {
		if f.skipOnce[input] {
			delete(f.skipOnce, input)
			continue
		}
		vectors[i] = []float64{float64(len(input)), 1}
	}
	return &openai.EmbeddingResult{Vectors: vectors, PromptTokens: len(inputs) * 10}, nil
}

func makeChunks(n int) []model.Chunk {
	chunks := make([]model.Chunk, n)
	for i := range chunks {
		chunks[i] = model.Chunk{OrdinalIndex: i, Text: "chunk text number " + string(rune('a'+i%26))}
	}
	return chunks
}

func TestEmbedChunksBatchesAtLimit(t *testing.T) {
	embedder := &fakeEmbedder{}
	service := NewEmbeddingService(embedder)
	service.delay = 0

	chunks := make([]model.Chunk, 250)
	for i := range chunks {
		chunks[i] = model.Chunk{OrdinalIndex: i, Text: "passage"}
	}

	tokens, err := service.EmbedChunks(context.Background(), chunks)
	if err != nil {
		t.Fatalf("EmbedChunks: %v", err)
	}
	if tokens != 2500 {
		t.Errorf("total tokens %d, want 2500", tokens)
	}

	want := []int{100, 100, 50}
	if len(embedder.batchSizes) != len(want) {
		t.Fatalf("batch sizes %v, want %v", embedder.batchSizes, want)
	}
	for i, size := range want {
		if embedder.batchSizes[i] != size {
			t.Errorf("batch %d size %d, want %d", i, embedder.batchSizes[i], size)
		}
	}

	for i, chunk := range chunks {
		if chunk.Embedding == nil {
			t.Fatalf("chunk %d has no embedding", i)
		}
	}
}

func TestEmbedChunksRetriesOnlyFailedItems(t *testing.T) {
	embedder := &fakeEmbedder{skipOnce: map[string]bool{"flaky passage": true}}
	service := NewEmbeddingService(embedder)
	service.delay = 0

	chunks := []model.Chunk{
		{OrdinalIndex: 0, Text: "stable passage one"},
		{OrdinalIndex: 1, Text: "flaky passage"},
		{OrdinalIndex: 2, Text: "stable passage two"},
	}

	if _, err := service.EmbedChunks(context.Background(), chunks); err != nil {
		t.Fatalf("EmbedChunks: %v", err)
	}

	// First pass sends all 3, retry pass resends only the skipped item
	if len(embedder.batchSizes) != 2 || embedder.batchSizes[0] != 3 || embedder.batchSizes[1] != 1 {
		t.Errorf("batch sizes %v, want [3 1]", embedder.batchSizes)
	}
	for i, chunk := range chunks {
		if chunk.Embedding == nil {
			t.Errorf("chunk %d has no embedding", i)
		}
	}
}

func TestEmbedChunksFailsWhenProviderDown(t *testing.T) {
	service := NewEmbeddingService(&fakeEmbedder{failAll: true})
	service.delay = 0

	if _, err := service.EmbedChunks(context.Background(), makeChunks(2)); err == nil {
		t.Error("expected error when provider is unavailable")
	}
}

func TestEmbedChunksEmptyInput(t *testing.T) {
	service := NewEmbeddingService(&fakeEmbedder{})
	tokens, err := service.EmbedChunks(context.Background(), nil)
	if err != nil || tokens != 0 {
		t.Errorf("empty input: tokens=%d err=%v", tokens, err)
	}
}
