package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
)

// WhisperModel is the speech-to-text model
const WhisperModel = "whisper-1"

// TranscriptionSegment is one timed segment of a Whisper transcription
type TranscriptionSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TranscriptionResponse is the verbose transcription result
type TranscriptionResponse struct {
	Text     string                 `json:"text"`
	Language string                 `json:"language"`
	Duration float64                `json:"duration"` // seconds
	Segments []TranscriptionSegment `json:"segments"`
}

// TranscribeAudioURL downloads the audio stream at audioURL and submits it to
// Whisper, requesting segment-level timestamps. The download is piped straight
// into the multipart upload so long recordings never sit fully in memory.
func (c *Client) TranscribeAudioURL(ctx context.Context, audioURL string) (*TranscriptionResponse, error) {
	dlReq, err := http.NewRequestWithContext(ctx, "GET", audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio download request: %w", err)
	}

	dlResp, err := c.audioClient.Do(dlReq)
	if err != nil {
		return nil, fmt.Errorf("failed to download audio stream: %w", err)
	}
	defer dlResp.Body.Close()

	if dlResp.StatusCode < 200 || dlResp.StatusCode >= 300 {
		return nil, &APIError{
			Message:    fmt.Sprintf("audio stream fetch returned status %d", dlResp.StatusCode),
			StatusCode: dlResp.StatusCode,
		}
	}

	filename := path.Base(audioURL)
	if filename == "" || filename == "." || filename == "/" {
		filename = "audio.mp3"
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		defer pw.Close()

		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, dlResp.Body); err != nil {
			pw.CloseWithError(err)
			return
		}
		_ = writer.WriteField("model", WhisperModel)
		_ = writer.WriteField("response_format", "verbose_json")
		_ = writer.WriteField("timestamp_granularities[]", "segment")
		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/audio/transcriptions", pr)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.audioClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcription response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseAPIError(resp.StatusCode, respBody)
	}

	var result TranscriptionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode transcription response: %w", err)
	}

	return &result, nil
}
