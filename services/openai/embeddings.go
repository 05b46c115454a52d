package openai

import (
	"context"
	"fmt"
	"strings"
)

// EmbeddingModel is the fixed embedding model; its vectors are 1536-wide
const (
	EmbeddingModel      = "text-embedding-3-small"
	EmbeddingDimensions = 1536
)

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// EmbeddingResult carries one batch's vectors plus the provider-reported usage
type EmbeddingResult struct {
	Vectors      [][]float64
	PromptTokens int
}

// CreateEmbeddings embeds up to one batch of inputs and returns one vector per
// input, order-preserving. Inputs the provider skipped come back as nil so the
// caller can retry only those items.
func (c *Client) CreateEmbeddings(ctx context.Context, inputs []string) (*EmbeddingResult, error) {
	if len(inputs) == 0 {
		return &EmbeddingResult{Vectors: [][]float64{}}, nil
	}

	// The API rejects empty strings; a single space embeds to a near-zero
	// vector without failing the whole batch.
	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	req := embeddingsRequest{
		Model: EmbeddingModel,
		Input: clean,
	}

	var resp embeddingsResponse
	if err := c.doRequest(ctx, "POST", "/v1/embeddings", req, &resp); err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}

	vectors := make([][]float64, len(clean))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			continue
		}
		vectors[d.Index] = d.Embedding
	}

	return &EmbeddingResult{
		Vectors:      vectors,
		PromptTokens: resp.Usage.PromptTokens,
	}, nil
}
