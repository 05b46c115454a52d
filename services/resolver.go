package services

import (
	"fmt"

	"github.com/sahilchouksey/lecture-chat-api/model"
)

// TranscriptPlan is an ordered list of extraction methods to attempt,
// cheapest-and-fastest first. The orchestrator consumes it one attempt at a
// time; a failed attempt advances to the next entry instead of aborting.
type TranscriptPlan struct {
	Methods []model.ExtractionMethod
}

// Next pops the next method to attempt, or false when the plan is exhausted
func (p *TranscriptPlan) Next() (model.ExtractionMethod, bool) {
	if len(p.Methods) == 0 {
		return "", false
	}
	method := p.Methods[0]
	p.Methods = p.Methods[1:]
	return method, true
}

// TranscriptResolver picks the extraction methods for a video. Paid
// speech-to-text is never planned before every free option for the source
// kind has had its chance.
type TranscriptResolver struct{}

// NewTranscriptResolver creates a new transcript resolver
func NewTranscriptResolver() *TranscriptResolver {
	return &TranscriptResolver{}
}

// Resolve builds the extraction plan for a video
func (r *TranscriptResolver) Resolve(video *model.Video) (*TranscriptPlan, error) {
	if err := video.Validate(); err != nil {
		return nil, fmt.Errorf("cannot resolve transcript plan: %w", err)
	}

	switch video.SourceKind {
	case model.SourceKindEmbedYouTube, model.SourceKindEmbedLoom, model.SourceKindEmbedVimeo:
		// Embed sources have no CDN asset, so there is no audio stream to pay
		// for; platform captions are the only viable method.
		return &TranscriptPlan{Methods: []model.ExtractionMethod{
			model.MethodPlatformCaptions,
		}}, nil

	case model.SourceKindManagedCDN:
		// Check the provider's caption-track endpoint before paying for
		// anything; fall back to paid speech-to-text on the audio rendition.
		return &TranscriptPlan{Methods: []model.ExtractionMethod{
			model.MethodCDNAutoCaptions,
			model.MethodPaidSpeechToText,
		}}, nil

	case model.SourceKindUploadedFile:
		// No free caption source exists for raw uploads.
		return &TranscriptPlan{Methods: []model.ExtractionMethod{
			model.MethodPaidSpeechToText,
		}}, nil
	}

	return nil, fmt.Errorf("no extraction plan for source kind %q", video.SourceKind)
}
