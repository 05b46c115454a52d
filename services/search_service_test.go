package services

import (
	"math"
	"testing"

	"github.com/sahilchouksey/lecture-chat-api/model"
)

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"mismatched lengths", []float64{1, 2}, []float64{1, 2, 3}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 2}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineSimilarity(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRankChunksFloorAndTopK(t *testing.T) {
	query := []float64{1, 0}
	candidates := []model.Chunk{
		{VideoID: 1, OrdinalIndex: 0, Embedding: []float64{1, 0}},      // score 1.0
		{VideoID: 1, OrdinalIndex: 1, Embedding: []float64{1, 0.2}},    // high
		{VideoID: 1, OrdinalIndex: 2, Embedding: []float64{1, 1}},      // ~0.707
		{VideoID: 1, OrdinalIndex: 3, Embedding: []float64{0.2, 1}},    // below floor
		{VideoID: 1, OrdinalIndex: 4, Embedding: []float64{0, 1}},      // 0, below floor
	}

	results := RankChunks(query, candidates, 0.7, 2, nil)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.OrdinalIndex != 0 || results[1].Chunk.OrdinalIndex != 1 {
		t.Errorf("wrong ranking order: %d then %d",
			results[0].Chunk.OrdinalIndex, results[1].Chunk.OrdinalIndex)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted by score")
	}
}

func TestRankChunksAllBelowFloor(t *testing.T) {
	query := []float64{1, 0}
	candidates := []model.Chunk{
		{VideoID: 1, OrdinalIndex: 0, Embedding: []float64{0, 1}},
		{VideoID: 1, OrdinalIndex: 1, Embedding: []float64{-1, 0}},
	}

	if results := RankChunks(query, candidates, 0.7, 5, nil); len(results) != 0 {
		t.Errorf("expected no results below floor, got %d", len(results))
	}
}

// An anchored search biases ranking toward the anchor video but must keep the
// rest of the library retrievable: other videos' chunks still appear, and a
// clearly better match elsewhere still wins.
func TestRankChunksAnchorBias(t *testing.T) {
	query := []float64{1, 0}
	anchor := uint(1)
	candidates := []model.Chunk{
		{VideoID: 2, OrdinalIndex: 0, Embedding: []float64{1, 0.15}},  // ~0.989, other video
		{VideoID: 1, OrdinalIndex: 0, Embedding: []float64{1, 0.25}},  // ~0.970, anchor
		{VideoID: 3, OrdinalIndex: 0, Embedding: []float64{1, 0.9}},   // ~0.743, other video
		{VideoID: 1, OrdinalIndex: 1, Embedding: []float64{0.2, 1}},   // below floor, anchor
	}

	results := RankChunks(query, candidates, 0.7, 5, &anchor)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	// The small bonus lifts the anchor chunk past the marginally better match
	// from video 2
	if results[0].Chunk.VideoID != 1 {
		t.Errorf("anchor chunk should rank first, got video %d", results[0].Chunk.VideoID)
	}
	// Other videos are biased down, never excluded
	if results[1].Chunk.VideoID != 2 || results[2].Chunk.VideoID != 3 {
		t.Errorf("non-anchor chunks missing or misordered: video %d then %d",
			results[1].Chunk.VideoID, results[2].Chunk.VideoID)
	}
	// Reported scores stay raw cosine
	if results[0].Score >= results[1].Score {
		t.Error("anchor bonus must not inflate the reported score")
	}
}

// A far better match in another video must outrank the anchor despite the bias
func TestRankChunksAnchorDoesNotTrumpRelevance(t *testing.T) {
	query := []float64{1, 0}
	anchor := uint(1)
	candidates := []model.Chunk{
		{VideoID: 2, OrdinalIndex: 0, Embedding: []float64{1, 0}},   // 1.0
		{VideoID: 1, OrdinalIndex: 0, Embedding: []float64{1, 0.7}}, // ~0.819, anchor
	}

	results := RankChunks(query, candidates, 0.7, 5, &anchor)
	if len(results) != 2 || results[0].Chunk.VideoID != 2 {
		t.Fatalf("exact match in video 2 should rank first")
	}
}

// Equal scores must rank deterministically on (video, ordinal) regardless of
// candidate input order.
func TestRankChunksDeterministicTieBreak(t *testing.T) {
	query := []float64{1, 0}
	tied := []model.Chunk{
		{VideoID: 2, OrdinalIndex: 5, Embedding: []float64{2, 0}},
		{VideoID: 1, OrdinalIndex: 9, Embedding: []float64{3, 0}},
		{VideoID: 1, OrdinalIndex: 2, Embedding: []float64{1, 0}},
	}

	for name, order := range map[string][]model.Chunk{
		"forward":  {tied[0], tied[1], tied[2]},
		"reversed": {tied[2], tied[1], tied[0]},
	} {
		t.Run(name, func(t *testing.T) {
			results := RankChunks(query, order, 0.7, 5, nil)
			if len(results) != 3 {
				t.Fatalf("expected 3 results, got %d", len(results))
			}
			if results[0].Chunk.VideoID != 1 || results[0].Chunk.OrdinalIndex != 2 {
				t.Errorf("first tie-break wrong: video %d ordinal %d",
					results[0].Chunk.VideoID, results[0].Chunk.OrdinalIndex)
			}
			if results[1].Chunk.OrdinalIndex != 9 || results[2].Chunk.VideoID != 2 {
				t.Errorf("tie order not deterministic")
			}
		})
	}
}
