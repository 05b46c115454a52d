package transcript

import (
	"errors"
	"fmt"
)

// Segment is a timed slice of transcript text. Segments are producer-internal:
// they are consumed by the chunker and never persisted standalone.
type Segment struct {
	Text      string
	StartTime float64 // seconds, fractional
	EndTime   float64
}

// Transcript is the output of one successful extraction attempt
type Transcript struct {
	FullText        string
	Segments        []Segment
	Language        string
	DurationSeconds float64
	// Confidence is reported by caption providers that score their
	// auto-generated tracks; zero when unknown.
	Confidence float64
}

// FailureKind classifies every adapter failure. The orchestrator decides
// retry-vs-advance-vs-abort purely from this classification; provider-specific
// error text never crosses the adapter boundary.
type FailureKind string

const (
	// FailureNotAvailable means no transcript exists for this method (e.g. no
	// caption track). The resolver plan advances to the next method.
	FailureNotAvailable FailureKind = "not_available"
	// FailureRateLimited and FailureTransientNetwork trigger bounded retry
	// with exponential backoff before advancing the plan.
	FailureRateLimited      FailureKind = "rate_limited"
	FailureTransientNetwork FailureKind = "transient_network"
	// FailurePermanentReject aborts the whole job immediately (private or
	// removed video, auth failure, content rejected).
	FailurePermanentReject FailureKind = "permanent_reject"
)

// Failure is the typed error every transcription adapter returns
type Failure struct {
	Kind   FailureKind
	Method string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("transcript %s (%s): %v", f.Kind, f.Method, f.Err)
	}
	return fmt.Sprintf("transcript %s (%s)", f.Kind, f.Method)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure wraps err with a classification
func NewFailure(kind FailureKind, method string, err error) *Failure {
	return &Failure{Kind: kind, Method: method, Err: err}
}

// ClassifyFailure extracts the failure kind from an adapter error. Unclassified
// errors are treated as transient so they get the retry budget rather than
// silently killing a job.
func ClassifyFailure(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return FailureTransientNetwork
}

// Retryable reports whether the failure kind is covered by the retry budget
func (k FailureKind) Retryable() bool {
	return k == FailureRateLimited || k == FailureTransientNetwork
}
