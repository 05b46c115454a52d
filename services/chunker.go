package services

import (
	"strings"

	"github.com/sahilchouksey/lecture-chat-api/model"
	"github.com/sahilchouksey/lecture-chat-api/services/transcript"
)

// ChunkerConfig tunes the transcript chunker
type ChunkerConfig struct {
	TargetWords  int // close a chunk once the running word count reaches this
	OverlapWords int // trailing words seeded into the next chunk
}

// DefaultChunkerConfig returns the default chunker configuration
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		TargetWords:  500,
		OverlapWords: 50,
	}
}

// Chunker splits an ordered timed transcript into overlapping,
// timestamp-bearing passages. Segments are never split mid-segment, so a
// single oversized segment still becomes its own chunk.
type Chunker struct {
	config ChunkerConfig
}

// NewChunker creates a new chunker
func NewChunker(config ChunkerConfig) *Chunker {
	if config.TargetWords <= 0 {
		config.TargetWords = DefaultChunkerConfig().TargetWords
	}
	if config.OverlapWords < 0 {
		config.OverlapWords = DefaultChunkerConfig().OverlapWords
	}
	return &Chunker{config: config}
}

// Chunk builds the chunk set for one video from its transcript segments.
// Adjacent chunks share the trailing overlap text so boundary context is never
// lost; the final partial accumulation becomes the last chunk.
func (c *Chunker) Chunk(video *model.Video, segments []transcript.Segment) []model.Chunk {
	var chunks []model.Chunk

	var parts []string      // accumulated segment texts
	var wordCount int       // running word count including overlap seed
	var startTime float64   // first segment's start (or overlap origin)
	var endTime float64     // last accumulated segment's end
	var overlapSeed string  // trailing text carried from the previous chunk
	var overlapStart float64

	open := false

	flush := func() {
		text := strings.TrimSpace(strings.Join(parts, " "))
		if text == "" {
			return
		}
		chunks = append(chunks, model.Chunk{
			VideoID:      video.ID,
			TenantID:     video.TenantID,
			OrdinalIndex: len(chunks),
			Text:         text,
			WordCount:    countWords(text),
			StartTime:    startTime,
			EndTime:      endTime,
		})
	}

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		if !open {
			parts = parts[:0]
			wordCount = 0
			if overlapSeed != "" {
				parts = append(parts, overlapSeed)
				wordCount = countWords(overlapSeed)
				startTime = overlapStart
			} else {
				startTime = seg.StartTime
			}
			open = true
		}

		parts = append(parts, text)
		wordCount += countWords(text)
		endTime = seg.EndTime

		if wordCount >= c.config.TargetWords {
			flush()
			overlapSeed, overlapStart = c.trailingOverlap(parts, seg)
			open = false
		}
	}

	// Final partial accumulation, if any
	if open {
		flush()
	}

	return chunks
}

// trailingOverlap extracts roughly OverlapWords words from the end of the
// closed chunk, anchored at the closing segment's start time.
func (c *Chunker) trailingOverlap(parts []string, lastSeg transcript.Segment) (string, float64) {
	if c.config.OverlapWords == 0 {
		return "", 0
	}

	words := strings.Fields(strings.Join(parts, " "))
	if len(words) <= c.config.OverlapWords {
		return strings.Join(words, " "), lastSeg.StartTime
	}
	return strings.Join(words[len(words)-c.config.OverlapWords:], " "), lastSeg.StartTime
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
