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

// ImageGenerator defines the interface for image synthesis operations
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req *GenerateImageRequest) ([]byte, error)
}

// GenerateImageRequest represents the request for image synthesis
type GenerateImageRequest struct {
	Prompt string `json:"prompt"`
	Steps  int    `json:"steps"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Seed   *int64 `json:"seed,omitempty"`
}

// generateImageResponse represents the response from the image backend
type generateImageResponse struct {
	Image  string `json:"image"` // base64-encoded PNG
	Seed   int64  `json:"seed"`
	Status string `json:"status"`
}

// ImageClient implements ImageGenerator over an HTTP synthesis backend
type ImageClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewImageClient creates a new image synthesis client
func NewImageClient(cfg *config.ImageConfig) *ImageClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 180 * time.Second
	}
	return &ImageClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// GenerateImage synthesizes one image and returns the decoded bytes
func (c *ImageClient) GenerateImage(ctx context.Context, genReq *GenerateImageRequest) ([]byte, error) {
	bodyBytes, err := json.Marshal(genReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images/generate", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Printf("[Image API] → POST %s (steps=%d)", req.URL.String(), genReq.Steps)

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
		log.Printf("[Image API] ← %d: %s", resp.StatusCode, string(respBody))
		return nil, fmt.Errorf("image API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var imgResp generateImageResponse
	if err := json.Unmarshal(respBody, &imgResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if imgResp.Image == "" {
		return nil, fmt.Errorf("image API returned empty image")
	}

	imgBytes, err := base64.StdEncoding.DecodeString(imgResp.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	log.Printf("[Image API] ← %d (%d bytes)", resp.StatusCode, len(imgBytes))
	return imgBytes, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *ImageClient) IsConfigured() bool {
	return c.baseURL != ""
}
