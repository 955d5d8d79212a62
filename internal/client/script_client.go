package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/model"
)

// ScriptScene is one (visual description, narration) pair produced by the
// scriptwriter, in playback order.
type ScriptScene struct {
	Description string `json:"description"`
	Narration   string `json:"narration"`
}

// ScriptWriter defines the interface for the external scriptwriting collaborator
type ScriptWriter interface {
	WriteScript(ctx context.Context, story string, style model.Style) ([]ScriptScene, error)
}

// ScriptClient implements ScriptWriter over an OpenAI-compatible chat API
type ScriptClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// chatMessage represents a message in the chat completion request
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest represents the request body for chat completion
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	ResponseFmt *responseFmt  `json:"response_format,omitempty"`
}

type responseFmt struct {
	Type string `json:"type"`
}

// chatCompletionResponse represents the response from chat completion
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

const scriptSystemPrompt = `You are a scriptwriter for narrated slideshow videos.
Break the user's story into ordered scenes. For each scene provide:
- "description": a detailed visual description of a single still image, in the requested style
- "narration": one or two sentences of voiceover text
Respond with JSON only: {"scenes": [{"description": "...", "narration": "..."}]}`

// NewScriptClient creates a new scriptwriter client
func NewScriptClient(cfg *config.ScriptConfig) *ScriptClient {
	return &ScriptClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// WriteScript turns a raw story into an ordered list of scenes
func (c *ScriptClient) WriteScript(ctx context.Context, story string, style model.Style) ([]ScriptScene, error) {
	user := fmt.Sprintf("Visual style: %s\n\nStory:\n%s", style, story)

	reqBody := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: scriptSystemPrompt},
			{Role: "user", Content: user},
		},
		Temperature: 0.7,
		MaxTokens:   2048,
		ResponseFmt: &responseFmt{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("script API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return parseScript(chatResp.Choices[0].Message.Content)
}

// parseScript extracts the scene list from the model's JSON output
func parseScript(content string) ([]ScriptScene, error) {
	content = strings.TrimSpace(content)
	// Some models wrap JSON in markdown fences despite instructions
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var parsed struct {
		Scenes []ScriptScene `json:"scenes"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse script JSON: %w", err)
	}

	scenes := make([]ScriptScene, 0, len(parsed.Scenes))
	for _, s := range parsed.Scenes {
		if strings.TrimSpace(s.Narration) == "" {
			continue
		}
		scenes = append(scenes, s)
	}
	return scenes, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *ScriptClient) IsConfigured() bool {
	return c.apiKey != ""
}
