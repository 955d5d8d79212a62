package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/storyreel/api/internal/config"
)

// SpeechResult holds synthesized narration audio. Duration is the backend's
// own estimate; playback timing must come from probing the saved file, the
// estimate is only good enough for rough UI feedback.
type SpeechResult struct {
	Audio             []byte
	EstimatedDuration float64
}

// SpeechSynthesizer defines the interface for speech synthesis operations
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (*SpeechResult, error)
}

// synthesizeRequest represents the request for speech synthesis
type synthesizeRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

// synthesizeResponse represents the response from the speech backend
type synthesizeResponse struct {
	Audio    string  `json:"audio"` // base64-encoded MP3
	Duration float64 `json:"duration"`
	Status   string  `json:"status"`
}

// SpeechClient implements SpeechSynthesizer over an HTTP synthesis backend
type SpeechClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewSpeechClient creates a new speech synthesis client
func NewSpeechClient(cfg *config.SpeechConfig) *SpeechClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &SpeechClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// Synthesize converts narration text into audio bytes
func (c *SpeechClient) Synthesize(ctx context.Context, text, voiceID string) (*SpeechResult, error) {
	bodyBytes, err := json.Marshal(synthesizeRequest{Text: text, VoiceID: voiceID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/speech/synthesize", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Printf("[Speech API] → POST %s (voice=%s, %d chars)", req.URL.String(), voiceID, len(text))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Speech API] ← %d: %s", resp.StatusCode, string(respBody))
		return nil, fmt.Errorf("speech API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var synthResp synthesizeResponse
	if err := json.Unmarshal(respBody, &synthResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if synthResp.Audio == "" {
		return nil, fmt.Errorf("speech API returned empty audio")
	}

	audioBytes, err := base64.StdEncoding.DecodeString(synthResp.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio: %w", err)
	}

	log.Printf("[Speech API] ← %d (%d bytes, ~%.1fs)", resp.StatusCode, len(audioBytes), synthResp.Duration)
	return &SpeechResult{
		Audio:             audioBytes,
		EstimatedDuration: synthResp.Duration,
	}, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *SpeechClient) IsConfigured() bool {
	return c.baseURL != ""
}
