package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sahilchouksey/lecture-chat-api/model"
	"github.com/sahilchouksey/lecture-chat-api/services/captions"
	"github.com/sahilchouksey/lecture-chat-api/services/mux"
	"github.com/sahilchouksey/lecture-chat-api/services/openai"
	"github.com/sahilchouksey/lecture-chat-api/services/storage"
	"github.com/sahilchouksey/lecture-chat-api/services/transcript"
)

// TranscriptAdapter turns one extraction method into a timed transcript.
// Every failure it returns is a *transcript.Failure; nothing provider-specific
// leaks past this boundary.
type TranscriptAdapter interface {
	Method() model.ExtractionMethod
	Extract(ctx context.Context, video *model.Video) (*transcript.Transcript, error)
}

// presignExpiry must comfortably outlive the speech-to-text timeout so a long
// transcription never loses its source mid-call.
const presignExpiry = 30 * time.Minute

// ---------------------------------------------------------------------------
// Platform captions (embed sources)

// PlatformCaptionsAdapter fetches free platform-native caption tracks for
// embed sources
type PlatformCaptionsAdapter struct {
	captionsClient *captions.Client
}

// NewPlatformCaptionsAdapter creates a new platform captions adapter
func NewPlatformCaptionsAdapter(captionsClient *captions.Client) *PlatformCaptionsAdapter {
	return &PlatformCaptionsAdapter{captionsClient: captionsClient}
}

// Method identifies the extraction method
func (a *PlatformCaptionsAdapter) Method() model.ExtractionMethod {
	return model.MethodPlatformCaptions
}

// Extract fetches and parses the caption track for the video's platform
func (a *PlatformCaptionsAdapter) Extract(ctx context.Context, video *model.Video) (*transcript.Transcript, error) {
	method := string(a.Method())

	var track string
	var err error
	switch video.SourceKind {
	case model.SourceKindEmbedYouTube:
		track, err = a.captionsClient.FetchYouTube(ctx, video.EmbedID)
	case model.SourceKindEmbedVimeo:
		track, err = a.captionsClient.FetchVimeo(ctx, video.EmbedID)
	case model.SourceKindEmbedLoom:
		track, err = a.captionsClient.FetchLoom(ctx, video.EmbedID)
	default:
		return nil, transcript.NewFailure(transcript.FailureNotAvailable, method,
			fmt.Errorf("no caption platform for source kind %s", video.SourceKind))
	}
	if err != nil {
		return nil, classifyCaptionError(method, err)
	}

	return trackToTranscript(method, track)
}

// ---------------------------------------------------------------------------
// CDN auto-captions (managed assets)

// CDNCaptionsAdapter fetches provider-generated caption tracks on managed CDN
// assets. It exists so the pipeline can confirm no free option exists before
// paying for speech-to-text.
type CDNCaptionsAdapter struct {
	muxClient *mux.Client
	// minConfidence rejects auto-generated tracks scored below it, sending
	// the video to paid speech-to-text instead. Zero disables the gate;
	// tracks without a score always pass.
	minConfidence float64
}

// NewCDNCaptionsAdapter creates a new CDN captions adapter
func NewCDNCaptionsAdapter(muxClient *mux.Client, minConfidence float64) *CDNCaptionsAdapter {
	return &CDNCaptionsAdapter{muxClient: muxClient, minConfidence: minConfidence}
}

// Method identifies the extraction method
func (a *CDNCaptionsAdapter) Method() model.ExtractionMethod {
	return model.MethodCDNAutoCaptions
}

// Extract checks the asset's track list and downloads the ready caption track
func (a *CDNCaptionsAdapter) Extract(ctx context.Context, video *model.Video) (*transcript.Transcript, error) {
	method := string(a.Method())

	track, err := a.muxClient.FindCaptionTrack(ctx, video.MuxAssetID)
	if err != nil {
		return nil, classifyCDNError(method, err)
	}

	body, err := a.muxClient.FetchCaptionTrack(ctx, video.MuxPlaybackID, track.ID)
	if err != nil {
		return nil, classifyCDNError(method, err)
	}

	result, err := trackToTranscript(method, body)
	if err != nil {
		return nil, err
	}
	if track.Duration > 0 {
		result.DurationSeconds = track.Duration
	}
	if a.minConfidence > 0 && result.Confidence > 0 && result.Confidence < a.minConfidence {
		return nil, transcript.NewFailure(transcript.FailureNotAvailable, method,
			fmt.Errorf("auto-caption confidence %.2f below threshold %.2f", result.Confidence, a.minConfidence))
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// Paid speech-to-text (universal fallback)

// SpeechToTextAdapter submits the video's audio stream to Whisper. Managed CDN
// assets stream their audio-only rendition; raw uploads go through a presigned
// storage URL.
type SpeechToTextAdapter struct {
	openaiClient *openai.Client
	muxClient    *mux.Client
	spacesClient *storage.SpacesClient
}

// NewSpeechToTextAdapter creates a new speech-to-text adapter
func NewSpeechToTextAdapter(openaiClient *openai.Client, muxClient *mux.Client, spacesClient *storage.SpacesClient) *SpeechToTextAdapter {
	return &SpeechToTextAdapter{
		openaiClient: openaiClient,
		muxClient:    muxClient,
		spacesClient: spacesClient,
	}
}

// Method identifies the extraction method
func (a *SpeechToTextAdapter) Method() model.ExtractionMethod {
	return model.MethodPaidSpeechToText
}

// Extract transcribes the audio stream with segment-level timestamps
func (a *SpeechToTextAdapter) Extract(ctx context.Context, video *model.Video) (*transcript.Transcript, error) {
	method := string(a.Method())

	var audioURL string
	switch video.SourceKind {
	case model.SourceKindManagedCDN:
		audioURL = a.muxClient.AudioStreamURL(video.MuxPlaybackID)
	case model.SourceKindUploadedFile:
		if a.spacesClient == nil {
			return nil, transcript.NewFailure(transcript.FailurePermanentReject, method,
				errors.New("upload storage is not configured"))
		}
		url, err := a.spacesClient.GetPresignedURL(video.StoragePath, presignExpiry)
		if err != nil {
			return nil, transcript.NewFailure(transcript.FailureTransientNetwork, method, err)
		}
		audioURL = url
	default:
		return nil, transcript.NewFailure(transcript.FailureNotAvailable, method,
			fmt.Errorf("no audio stream for source kind %s", video.SourceKind))
	}

	resp, err := a.openaiClient.TranscribeAudioURL(ctx, audioURL)
	if err != nil {
		return nil, classifyProviderError(method, err)
	}

	segments := make([]transcript.Segment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		segments = append(segments, transcript.Segment{
			Text:      seg.Text,
			StartTime: seg.Start,
			EndTime:   seg.End,
		})
	}

	return &transcript.Transcript{
		FullText:        resp.Text,
		Segments:        segments,
		Language:        resp.Language,
		DurationSeconds: resp.Duration,
	}, nil
}

// ---------------------------------------------------------------------------
// Shared helpers

func trackToTranscript(method, track string) (*transcript.Transcript, error) {
	segments, err := transcript.ParseCueTrack(track)
	if err != nil {
		return nil, transcript.NewFailure(transcript.FailurePermanentReject, method,
			fmt.Errorf("unparseable caption track: %w", err))
	}
	if len(segments) == 0 {
		return nil, transcript.NewFailure(transcript.FailureNotAvailable, method,
			errors.New("caption track contained no cues"))
	}

	return &transcript.Transcript{
		FullText:        transcript.JoinSegments(segments),
		Segments:        segments,
		DurationSeconds: segments[len(segments)-1].EndTime,
	}, nil
}

func classifyCaptionError(method string, err error) error {
	if errors.Is(err, captions.ErrNoTrack) {
		return transcript.NewFailure(transcript.FailureNotAvailable, method, err)
	}

	var httpErr *captions.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return transcript.NewFailure(transcript.FailureRateLimited, method, err)
		case httpErr.StatusCode == 401 || httpErr.StatusCode == 403 || httpErr.StatusCode == 410:
			// Private or removed video
			return transcript.NewFailure(transcript.FailurePermanentReject, method, err)
		case httpErr.StatusCode >= 500:
			return transcript.NewFailure(transcript.FailureTransientNetwork, method, err)
		}
		return transcript.NewFailure(transcript.FailureNotAvailable, method, err)
	}

	// Timeouts and connection resets
	return transcript.NewFailure(transcript.FailureTransientNetwork, method, err)
}

func classifyCDNError(method string, err error) error {
	if errors.Is(err, mux.ErrNoCaptionTrack) {
		return transcript.NewFailure(transcript.FailureNotAvailable, method, err)
	}

	var apiErr *mux.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsNotFound():
			// The asset itself is gone; no method can succeed
			return transcript.NewFailure(transcript.FailurePermanentReject, method, err)
		case apiErr.StatusCode == 429:
			return transcript.NewFailure(transcript.FailureRateLimited, method, err)
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return transcript.NewFailure(transcript.FailurePermanentReject, method, err)
		}
		return transcript.NewFailure(transcript.FailureTransientNetwork, method, err)
	}

	return transcript.NewFailure(transcript.FailureTransientNetwork, method, err)
}

func classifyProviderError(method string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsRateLimit():
			return transcript.NewFailure(transcript.FailureRateLimited, method, err)
		case apiErr.IsPermanent():
			return transcript.NewFailure(transcript.FailurePermanentReject, method, err)
		}
		return transcript.NewFailure(transcript.FailureTransientNetwork, method, err)
	}

	// Timeouts (including context deadline) retry as transient
	return transcript.NewFailure(transcript.FailureTransientNetwork, method, err)
}
