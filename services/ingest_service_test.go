package services

import (
	"testing"
	"time"

	"github.com/sahilchouksey/lecture-chat-api/model"
	"github.com/sahilchouksey/lecture-chat-api/services/transcript"
)

func TestDecideAfterFailure(t *testing.T) {
	cases := []struct {
		name    string
		kind    transcript.FailureKind
		attempt int
		want    attemptOutcome
	}{
		{"not available advances immediately", transcript.FailureNotAvailable, 1, outcomeAdvanceMethod},
		{"permanent reject aborts", transcript.FailurePermanentReject, 1, outcomeAbort},
		{"permanent reject aborts even on last attempt", transcript.FailurePermanentReject, maxExtractAttempts, outcomeAbort},
		{"rate limit retries", transcript.FailureRateLimited, 1, outcomeRetrySameMethod},
		{"transient retries", transcript.FailureTransientNetwork, 3, outcomeRetrySameMethod},
		{"transient advances after budget", transcript.FailureTransientNetwork, maxExtractAttempts, outcomeAdvanceMethod},
		{"rate limit advances after budget", transcript.FailureRateLimited, maxExtractAttempts, outcomeAdvanceMethod},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := decideAfterFailure(tc.kind, tc.attempt, maxExtractAttempts)
			if got != tc.want {
				t.Errorf("decideAfterFailure(%s, %d) = %v, want %v", tc.kind, tc.attempt, got, tc.want)
			}
		})
	}
}

func TestRetryBackoffGrowsAndCaps(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		delay := retryBackoff(attempt)
		if delay < prev {
			t.Errorf("backoff shrank at attempt %d: %s < %s", attempt, delay, prev)
		}
		if delay > extractRetryCap {
			t.Errorf("backoff exceeded cap at attempt %d: %s", attempt, delay)
		}
		prev = delay
	}

	if retryBackoff(1) != extractRetryBase {
		t.Errorf("first retry delay %s, want %s", retryBackoff(1), extractRetryBase)
	}
	if retryBackoff(2) != 2*extractRetryBase {
		t.Errorf("second retry delay %s, want %s", retryBackoff(2), 2*extractRetryBase)
	}
}

// A video serving a committed chunk generation must be recognized as published
// so re-sync progress never knocks it out of search
func TestHasPublishedChunks(t *testing.T) {
	cases := []struct {
		name       string
		status     model.VideoStatus
		generation int
		want       bool
	}{
		{"completed with chunks", model.VideoStatusCompleted, 1, true},
		{"completed later generation", model.VideoStatusCompleted, 4, true},
		{"first ingestion in flight", model.VideoStatusExtracting, 0, false},
		{"pending never published", model.VideoStatusPending, 0, false},
		{"failed video", model.VideoStatusFailed, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := hasPublishedChunks(tc.status, tc.generation); got != tc.want {
				t.Errorf("hasPublishedChunks(%s, %d) = %v, want %v",
					tc.status, tc.generation, got, tc.want)
			}
		})
	}
}
