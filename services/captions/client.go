package captions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultTimeout is the hard timeout for a single caption fetch
	DefaultTimeout = 30 * time.Second

	youtubeTimedTextURL = "https://www.youtube.com/api/timedtext"
	vimeoAPIURL         = "https://api.vimeo.com"
	loomCaptionsURL     = "https://www.loom.com/api/captions"
)

// ErrNoTrack is returned when the platform has no caption track for the video.
// Callers treat it as "advance the plan", not as a hard failure.
var ErrNoTrack = fmt.Errorf("no caption track available")

// Client fetches platform-native caption tracks by embed id. All platforms
// return cue-based timed text (WebVTT or SRT) which the transcript package
// parses.
type Client struct {
	httpClient *http.Client
	vimeoToken string
}

// Config holds configuration for the captions client
type Config struct {
	Timeout    time.Duration
	VimeoToken string // optional; public tracks work without it
}

// NewClient creates a new platform captions client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		vimeoToken: config.VimeoToken,
	}
}

// FetchYouTube fetches the auto or manual caption track for a YouTube video id
func (c *Client) FetchYouTube(ctx context.Context, videoID string) (string, error) {
	params := url.Values{}
	params.Set("v", videoID)
	params.Set("lang", "en")
	params.Set("fmt", "vtt")

	return c.fetchTrack(ctx, youtubeTimedTextURL+"?"+params.Encode(), nil)
}

// FetchVimeo resolves the first text track of a Vimeo video and fetches it
func (c *Client) FetchVimeo(ctx context.Context, videoID string) (string, error) {
	headers := map[string]string{}
	if c.vimeoToken != "" {
		headers["Authorization"] = "Bearer " + c.vimeoToken
	}

	listURL := fmt.Sprintf("%s/videos/%s/texttracks", vimeoAPIURL, url.PathEscape(videoID))
	body, err := c.get(ctx, listURL, headers)
	if err != nil {
		return "", err
	}

	var list struct {
		Data []struct {
			Link   string `json:"link"`
			Active bool   `json:"active"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return "", fmt.Errorf("failed to decode vimeo texttracks: %w", err)
	}

	for _, track := range list.Data {
		if track.Active && track.Link != "" {
			return c.fetchTrack(ctx, track.Link, nil)
		}
	}
	return "", ErrNoTrack
}

// FetchLoom fetches the caption track for a Loom share id
func (c *Client) FetchLoom(ctx context.Context, shareID string) (string, error) {
	return c.fetchTrack(ctx, loomCaptionsURL+"/"+url.PathEscape(shareID), nil)
}

func (c *Client) fetchTrack(ctx context.Context, trackURL string, headers map[string]string) (string, error) {
	body, err := c.get(ctx, trackURL, headers)
	if err != nil {
		return "", err
	}
	// Platforms answer 200 with an empty body when no track exists
	if len(body) == 0 {
		return "", ErrNoTrack
	}
	return string(body), nil
}

func (c *Client) get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("caption fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoTrack
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return io.ReadAll(resp.Body)
}

// HTTPError is a non-404 caption endpoint failure carrying the status code so
// the adapter layer can classify it
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return fmt.Sprintf("caption endpoint returned status %d", e.StatusCode)
}
