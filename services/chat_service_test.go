package services

import (
	"sync"
	"testing"
	"time"

	"github.com/sahilchouksey/lecture-chat-api/model"
)

func chatRefs() []model.VideoReference {
	return []model.VideoReference{
		{VideoID: 1, VideoTitle: "Intro to Graphs", Seconds: 90, Timestamp: "01:30"},
		{VideoID: 1, VideoTitle: "Intro to Graphs", Seconds: 300, Timestamp: "05:00"},
		{VideoID: 2, VideoTitle: "Shortest Paths", Seconds: 4210, Timestamp: "1:10:10"},
	}
}

func TestParseCitations(t *testing.T) {
	refs := chatRefs()

	t.Run("in appearance order", func(t *testing.T) {
		answer := "BFS explores level by level [2]. It was introduced earlier [1]."
		cited := ParseCitations(answer, refs)
		if len(cited) != 2 {
			t.Fatalf("expected 2 citations, got %d", len(cited))
		}
		if cited[0].Seconds != 300 || cited[1].Seconds != 90 {
			t.Errorf("citations out of appearance order: %+v", cited)
		}
	})

	t.Run("deduplicates repeated markers", func(t *testing.T) {
		cited := ParseCitations("See [1]. Again [1], and also [1].", refs)
		if len(cited) != 1 {
			t.Errorf("expected 1 citation, got %d", len(cited))
		}
	})

	t.Run("ignores out-of-range markers", func(t *testing.T) {
		cited := ParseCitations("Sources: [0] [4] [99]", refs)
		if len(cited) != 0 {
			t.Errorf("expected no citations, got %d", len(cited))
		}
	})

	t.Run("no markers", func(t *testing.T) {
		cited := ParseCitations("The excerpts do not cover this topic.", refs)
		if len(cited) != 0 {
			t.Errorf("expected no citations, got %d", len(cited))
		}
	})
}

func TestSessionFreshnessWindow(t *testing.T) {
	now := time.Now()
	window := 24 * time.Hour

	recent := now.Add(-2 * time.Hour)
	stale := now.Add(-25 * time.Hour)

	cases := []struct {
		name    string
		session model.ChatSession
		want    bool
	}{
		{"active yesterday evening", model.ChatSession{CreatedAt: stale, LastMessageAt: &recent}, true},
		{"idle past the window", model.ChatSession{CreatedAt: stale, LastMessageAt: &stale}, false},
		{"new session, no messages yet", model.ChatSession{CreatedAt: recent}, true},
		{"old empty session", model.ChatSession{CreatedAt: stale}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.session.FreshWithin(window, now); got != tc.want {
				t.Errorf("FreshWithin = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTruncateSnippet(t *testing.T) {
	short := "short text"
	if truncateSnippet(short, 50) != short {
		t.Error("short text should pass through unchanged")
	}

	long := "one two three four five six seven eight nine ten eleven twelve"
	got := truncateSnippet(long, 30)
	if len(got) > 35 {
		t.Errorf("snippet too long: %q", got)
	}
	if got[len(got)-3:] != "…" {
		t.Errorf("snippet should end with ellipsis: %q", got)
	}
}

// The keyed-mutex pool must hand back the same lock for the same session and
// stay bounded no matter how many sessions pass through
func TestSessionLockStriping(t *testing.T) {
	svc := NewChatService(nil, nil, nil, nil, ChatConfig{})

	if svc.lockFor(42) != svc.lockFor(42) {
		t.Error("same session must map to the same lock")
	}

	distinct := make(map[*sync.Mutex]bool)
	for id := uint(0); id < 10_000; id++ {
		distinct[svc.lockFor(id)] = true
	}
	if len(distinct) > sessionLockStripes {
		t.Errorf("lock pool unbounded: %d distinct locks", len(distinct))
	}
}
