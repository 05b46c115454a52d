package mux

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// BaseURL is the Mux API base URL
	BaseURL = "https://api.mux.com"
	// StreamBaseURL serves playback streams by playback id
	StreamBaseURL = "https://stream.mux.com"
	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 30 * time.Second
)

// ErrNoCaptionTrack is returned when an asset carries no ready text track
var ErrNoCaptionTrack = fmt.Errorf("asset has no ready caption track")

// Client handles Mux video API interactions: caption track discovery and
// audio-only stream URLs for paid transcription.
type Client struct {
	tokenID     string
	tokenSecret string
	baseURL     string
	httpClient  *http.Client
}

// Config holds configuration for the Mux client
type Config struct {
	TokenID     string
	TokenSecret string
	BaseURL     string
	Timeout     time.Duration
}

// NewClient creates a new Mux API client
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	return &Client{
		tokenID:     config.TokenID,
		tokenSecret: config.TokenSecret,
		baseURL:     config.BaseURL,
		httpClient:  &http.Client{Timeout: config.Timeout},
	}
}

// Track is one track (video/audio/text) on a Mux asset
type Track struct {
	ID             string  `json:"id"`
	Type           string  `json:"type"`
	TextType       string  `json:"text_type,omitempty"`
	LanguageCode   string  `json:"language_code,omitempty"`
	Status         string  `json:"status,omitempty"`
	TextSource     string  `json:"text_source,omitempty"` // e.g. generated_vod
	Duration       float64 `json:"duration,omitempty"`
	MaxChannelText string  `json:"-"`
}

// Asset is the subset of the Mux asset resource the pipeline needs
type Asset struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	Duration float64 `json:"duration"`
	Tracks   []Track `json:"tracks"`
}

// GetAsset fetches an asset, including its track list
func (c *Client) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	var result struct {
		Data Asset `json:"data"`
	}
	endpoint := fmt.Sprintf("/video/v1/assets/%s", assetID)
	if err := c.doRequest(ctx, "GET", endpoint, &result); err != nil {
		return nil, err
	}
	return &result.Data, nil
}

// FindCaptionTrack returns the first ready text track of an asset, or
// ErrNoCaptionTrack. This is the free-before-paid check: the pipeline calls it
// before paying for speech-to-text.
func (c *Client) FindCaptionTrack(ctx context.Context, assetID string) (*Track, error) {
	asset, err := c.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	for i := range asset.Tracks {
		track := &asset.Tracks[i]
		if track.Type == "text" && track.TextType == "subtitles" && track.Status == "ready" {
			return track, nil
		}
	}
	return nil, ErrNoCaptionTrack
}

// CaptionTrackURL builds the public VTT URL for a text track on a playback id
func (c *Client) CaptionTrackURL(playbackID, trackID string) string {
	return fmt.Sprintf("%s/%s/text/%s.vtt", StreamBaseURL, playbackID, trackID)
}

// AudioStreamURL builds the audio-only rendition URL for a playback id. This
// is what gets submitted to paid speech-to-text.
func (c *Client) AudioStreamURL(playbackID string) string {
	return fmt.Sprintf("%s/%s/audio.m4a", StreamBaseURL, playbackID)
}

// FetchCaptionTrack downloads a text track's VTT body
func (c *Client) FetchCaptionTrack(ctx context.Context, playbackID, trackID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.CaptionTrackURL(playbackID, trackID), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("caption track fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNoCaptionTrack
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Message: "caption track fetch failed"}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read caption track: %w", err)
	}
	return string(body), nil
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.tokenID, c.tokenSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var wrapper struct {
			Error struct {
				Messages []string `json:"messages"`
			} `json:"error"`
		}
		if err := json.Unmarshal(respBody, &wrapper); err == nil && len(wrapper.Error.Messages) > 0 {
			apiErr.Message = wrapper.Error.Messages[0]
		} else {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// APIError represents a Mux API error response
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("Mux API error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports a missing or deleted asset
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}
