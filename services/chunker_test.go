package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sahilchouksey/lecture-chat-api/model"
	"github.com/sahilchouksey/lecture-chat-api/services/transcript"
)

// makeSegments builds n segments of wordsEach words spanning secondsEach each
func makeSegments(n, wordsEach int, secondsEach float64) []transcript.Segment {
	segments := make([]transcript.Segment, n)
	for i := range segments {
		words := make([]string, wordsEach)
		for j := range words {
			words[j] = fmt.Sprintf("word%d_%d", i, j)
		}
		segments[i] = transcript.Segment{
			Text:      strings.Join(words, " "),
			StartTime: float64(i) * secondsEach,
			EndTime:   float64(i+1) * secondsEach,
		}
	}
	return segments
}

func TestChunkerTargetSizeAndOverlap(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{TargetWords: 100, OverlapWords: 10})
	video := &model.Video{ID: 1, TenantID: 7}

	// 30 segments x 10 words = 300 words → 3 full chunks
	segments := makeSegments(30, 10, 5)
	chunks := chunker.Chunk(video, segments)

	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}

	for i, chunk := range chunks {
		if chunk.OrdinalIndex != i {
			t.Errorf("chunk %d has ordinal %d", i, chunk.OrdinalIndex)
		}
		if chunk.TenantID != 7 || chunk.VideoID != 1 {
			t.Errorf("chunk %d lost ownership: tenant=%d video=%d", i, chunk.TenantID, chunk.VideoID)
		}
		if chunk.StartTime > chunk.EndTime {
			t.Errorf("chunk %d has inverted range %v-%v", i, chunk.StartTime, chunk.EndTime)
		}
		if chunk.WordCount != countWords(chunk.Text) {
			t.Errorf("chunk %d word count mismatch", i)
		}
	}

	// Adjacent chunks share overlap text
	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1].Text)
		tail := strings.Join(prevWords[len(prevWords)-10:], " ")
		if !strings.HasPrefix(chunks[i].Text, tail) {
			t.Errorf("chunk %d does not start with previous chunk's trailing overlap", i)
		}
	}
}

func TestChunkerTimestampCoverage(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{TargetWords: 50, OverlapWords: 5})
	video := &model.Video{ID: 2, TenantID: 1}

	segments := makeSegments(40, 10, 3) // 120 seconds total
	chunks := chunker.Chunk(video, segments)

	if len(chunks) == 0 {
		t.Fatal("no chunks produced")
	}
	if chunks[0].StartTime != 0 {
		t.Errorf("first chunk starts at %v, want 0", chunks[0].StartTime)
	}
	last := chunks[len(chunks)-1]
	if last.EndTime != 120 {
		t.Errorf("last chunk ends at %v, want 120", last.EndTime)
	}

	// No gaps: every chunk begins at or before the previous chunk's end
	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartTime > chunks[i-1].EndTime {
			t.Errorf("gap between chunk %d (end %v) and chunk %d (start %v)",
				i-1, chunks[i-1].EndTime, i, chunks[i].StartTime)
		}
	}
}

func TestChunkerOversizedSingleSegment(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{TargetWords: 50, OverlapWords: 5})
	video := &model.Video{ID: 3, TenantID: 1}

	// One segment far above target must still become exactly one chunk
	segments := makeSegments(1, 500, 60)
	chunks := chunker.Chunk(video, segments)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for a single oversized segment, got %d", len(chunks))
	}
	if chunks[0].WordCount != 500 {
		t.Errorf("segment was split: word count %d", chunks[0].WordCount)
	}
}

func TestChunkerSingleShortSegment(t *testing.T) {
	chunker := NewChunker(DefaultChunkerConfig())
	video := &model.Video{ID: 4, TenantID: 1, DurationSeconds: 12}

	segments := []transcript.Segment{
		{Text: "Welcome to the course.", StartTime: 0, EndTime: 12},
	}
	chunks := chunker.Chunk(video, segments)

	if len(chunks) != 1 {
		t.Fatalf("expected exactly 1 chunk, got %d", len(chunks))
	}
	if chunks[0].StartTime != 0 || chunks[0].EndTime != 12 {
		t.Errorf("chunk does not span the whole video: %v-%v", chunks[0].StartTime, chunks[0].EndTime)
	}
}

func TestChunkerEmptyTranscript(t *testing.T) {
	chunker := NewChunker(DefaultChunkerConfig())
	video := &model.Video{ID: 5, TenantID: 1}

	if chunks := chunker.Chunk(video, nil); len(chunks) != 0 {
		t.Errorf("expected no chunks for empty transcript, got %d", len(chunks))
	}

	blank := []transcript.Segment{{Text: "   ", StartTime: 0, EndTime: 1}}
	if chunks := chunker.Chunk(video, blank); len(chunks) != 0 {
		t.Errorf("expected no chunks for blank segments, got %d", len(chunks))
	}
}

func TestChunkerFinalPartialKept(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{TargetWords: 100, OverlapWords: 10})
	video := &model.Video{ID: 6, TenantID: 1}

	// 105 words: one full chunk plus a small remainder (overlap seed + 5 words)
	segments := makeSegments(21, 5, 2)
	chunks := chunker.Chunk(video, segments)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[1].WordCount >= chunks[0].WordCount {
		t.Errorf("final partial chunk should be smaller: %d vs %d",
			chunks[1].WordCount, chunks[0].WordCount)
	}
}
