package services

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sahilchouksey/lecture-chat-api/model"
)

func exportFixture() (*model.ChatSession, []model.ChatMessage) {
	session := &model.ChatSession{
		ID:        42,
		Title:     "Graph traversal basics",
		CreatedAt: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
	}
	messages := []model.ChatMessage{
		{Role: model.MessageRoleUser, Content: "What is BFS?"},
		{
			Role:    model.MessageRoleAssistant,
			Content: "BFS explores the graph level by level [1].",
			VideoRefs: model.VideoReferences{
				{VideoID: 1, VideoTitle: "Intro to Graphs", Seconds: 90, Timestamp: "01:30"},
			},
		},
	}
	return session, messages
}

func TestRenderJSONRoundTrips(t *testing.T) {
	session, messages := exportFixture()

	data, err := renderJSON(session, messages)
	if err != nil {
		t.Fatalf("renderJSON: %v", err)
	}

	var decoded sessionExport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if decoded.SessionID != 42 || decoded.Title != "Graph traversal basics" {
		t.Errorf("session header wrong: %+v", decoded)
	}
	if len(decoded.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(decoded.Messages))
	}
	refs := decoded.Messages[1].References
	if len(refs) != 1 || refs[0].Timestamp != "01:30" {
		t.Errorf("citation missing from export: %+v", refs)
	}
}

func TestRenderMarkdown(t *testing.T) {
	session, messages := exportFixture()

	out := string(renderMarkdown(session, messages))
	for _, want := range []string{
		"# Graph traversal basics",
		"## You",
		"## Assistant",
		"**Sources:**",
		"- Intro to Graphs at 01:30",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown export missing %q:\n%s", want, out)
		}
	}
}

func TestRenderMarkdownUntitledSession(t *testing.T) {
	session, messages := exportFixture()
	session.Title = ""

	out := string(renderMarkdown(session, messages))
	if !strings.Contains(out, "# Chat session 42") {
		t.Errorf("untitled session should fall back to id header:\n%s", out)
	}
}
