package services

import (
	"testing"
	"time"

	"github.com/sahilchouksey/lecture-chat-api/model"
)

func TestTallyVideoReferences(t *testing.T) {
	messages := []model.ChatMessage{
		{Role: model.MessageRoleAssistant, VideoRefs: model.VideoReferences{
			{VideoID: 1, VideoTitle: "Intro to Graphs"},
			{VideoID: 2, VideoTitle: "Shortest Paths"},
		}},
		{Role: model.MessageRoleAssistant, VideoRefs: model.VideoReferences{
			{VideoID: 2, VideoTitle: "Shortest Paths"},
		}},
		{Role: model.MessageRoleAssistant, VideoRefs: model.VideoReferences{
			{VideoID: 2, VideoTitle: "Shortest Paths"},
			{VideoID: 3, VideoTitle: "Heaps"},
		}},
	}

	ranked := TallyVideoReferences(messages, 2)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(ranked))
	}
	if ranked[0].VideoID != 2 || ranked[0].Count != 3 {
		t.Errorf("top video wrong: %+v", ranked[0])
	}
	// Videos 1 and 3 tie at one citation; lower id wins
	if ranked[1].VideoID != 1 {
		t.Errorf("tie-break wrong: %+v", ranked[1])
	}
}

func TestTallyVideoReferencesEmpty(t *testing.T) {
	if got := TallyVideoReferences(nil, 5); len(got) != 0 {
		t.Errorf("expected empty tally, got %v", got)
	}
}

func TestExtractTopics(t *testing.T) {
	questions := []string{
		"What is a binary tree?",
		"Explain binary search, please.",
		"How does recursion work in binary search?",
	}

	topics := ExtractTopics(questions, 3)
	if len(topics) == 0 {
		t.Fatal("no topics extracted")
	}
	if topics[0].Topic != "binary" || topics[0].Count != 3 {
		t.Errorf("top topic wrong: %+v", topics[0])
	}

	for _, topic := range topics {
		if stopWords[topic.Topic] {
			t.Errorf("stop word leaked into topics: %q", topic.Topic)
		}
		if len(topic.Topic) < 3 {
			t.Errorf("short word leaked into topics: %q", topic.Topic)
		}
	}
}

func TestExtractTopicsStripsPunctuation(t *testing.T) {
	topics := ExtractTopics([]string{"Dijkstra's? (algorithm)!", "dijkstra's algorithm."}, 10)

	found := map[string]int{}
	for _, topic := range topics {
		found[topic.Topic] = topic.Count
	}
	if found["algorithm"] != 2 {
		t.Errorf("punctuation not stripped: %v", found)
	}
}

// Session duration is the span between the first and last message, not the
// session row's creation time.
func TestSessionDurationMinutes(t *testing.T) {
	first := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	last := first.Add(30 * time.Minute)

	if got := SessionDurationMinutes(&first, &last); got != 30 {
		t.Errorf("duration %v, want 30", got)
	}
	if got := SessionDurationMinutes(&first, &first); got != 0 {
		t.Errorf("single-message session duration %v, want 0", got)
	}
	if got := SessionDurationMinutes(nil, nil); got != 0 {
		t.Errorf("empty session duration %v, want 0", got)
	}
	if got := SessionDurationMinutes(&first, nil); got != 0 {
		t.Errorf("half-open span duration %v, want 0", got)
	}
}

func TestBuildHourHistogram(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	times := []time.Time{
		base.Add(9 * time.Hour),
		base.Add(9*time.Hour + 30*time.Minute),
		base.Add(14 * time.Hour),
	}

	histogram := BuildHourHistogram(times)
	if len(histogram) != 24 {
		t.Fatalf("expected 24 buckets, got %d", len(histogram))
	}
	if histogram[9].Count != 2 {
		t.Errorf("hour 9 count %d, want 2", histogram[9].Count)
	}
	if histogram[14].Count != 1 {
		t.Errorf("hour 14 count %d, want 1", histogram[14].Count)
	}
	if histogram[3].Count != 0 {
		t.Errorf("hour 3 count %d, want 0", histogram[3].Count)
	}
	for i, bucket := range histogram {
		if bucket.Hour != i {
			t.Errorf("bucket %d labelled hour %d", i, bucket.Hour)
		}
	}
}
