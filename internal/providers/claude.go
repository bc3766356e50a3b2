package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/decode"
)

const (
	ClaudeBaseURL          = "https://api.anthropic.com"
	ClaudeAPIVersion       = "2023-06-01"
	ClaudeDefaultModel     = "claude-3-sonnet-20240229"
	ClaudeDefaultMaxTokens = 2048
	claudeHealthModel      = "claude-3-haiku-20240307"
)

var claudeModels = []ModelInfo{
	{
		Name:            "claude-3-opus-20240229",
		DisplayName:     "Claude 3 Opus",
		Provider:        string(Claude),
		Description:     "Most capable Claude 3 model",
		MaxTokens:       200000,
		Capabilities:    []string{CapText, CapVision},
		CostPer1KInput:  0.015,
		CostPer1KOutput: 0.075,
	},
	{
		Name:            "claude-3-sonnet-20240229",
		DisplayName:     "Claude 3 Sonnet",
		Provider:        string(Claude),
		Description:     "Balanced Claude 3 model",
		MaxTokens:       200000,
		Capabilities:    []string{CapText, CapVision},
		CostPer1KInput:  0.003,
		CostPer1KOutput: 0.015,
	},
	{
		Name:            "claude-3-haiku-20240307",
		DisplayName:     "Claude 3 Haiku",
		Provider:        string(Claude),
		Description:     "Fastest Claude 3 model",
		MaxTokens:       200000,
		Capabilities:    []string{CapText},
		CostPer1KInput:  0.00025,
		CostPer1KOutput: 0.00125,
	},
}

// ClaudeAdapter talks to the Anthropic Messages API.
type ClaudeAdapter struct {
	base
	apiKey    string
	baseURL   string
	maxTokens int
	client    *http.Client
}

// NewClaudeAdapter creates a Claude adapter.
func NewClaudeAdapter(opts Options) *ClaudeAdapter {
	if opts.BaseURL == "" {
		opts.BaseURL = ClaudeBaseURL
	}
	if opts.Model == "" {
		opts.Model = ClaudeDefaultModel
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = ClaudeDefaultMaxTokens
	}

	return &ClaudeAdapter{
		base:      newBase(Claude, opts.Model, decode.FormatJSON, claudeModels, opts.logger()),
		apiKey:    opts.APIKey,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		maxTokens: opts.MaxTokens,
		client:    opts.httpClient(),
	}
}

// Invoke sends one Messages API request. An image is sent as a base64
// source block ahead of the text.
func (a *ClaudeAdapter) Invoke(ctx context.Context, p Prompt, model string, image *Image) (string, error) {
	start := time.Now()
	model = a.modelOr(model)

	var blocks []claudeContent
	if image != nil && len(image.Data) > 0 {
		blocks = append(blocks, claudeContent{
			Type: "image",
			Source: &claudeImageSource{
				Type:      "base64",
				MediaType: image.MIME,
				Data:      image.Base64(),
			},
		})
	}
	blocks = append(blocks, claudeContent{Type: "text", Text: p.User})

	temperature := 0.0
	req := claudeRequest{
		Model:       model,
		MaxTokens:   a.maxTokens,
		Temperature: &temperature,
		System:      p.System,
		Messages:    []claudeMessage{{Role: "user", Content: blocks}},
	}

	a.logger.Info("calling model", "provider", Claude, "model", model, "image", image != nil)
	resp, err := a.doRequest(ctx, req)
	if err != nil {
		a.logger.Error("model call failed", "provider", Claude, "model", model, "error", err)
		return "", apperr.LLM(fmt.Sprintf("Claude API call failed: %v", err), err)
	}

	var b strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}

	a.logger.Info("model call succeeded",
		"provider", Claude,
		"model", model,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"duration", time.Since(start),
	)
	return b.String(), nil
}

// HealthCheck sends a one-token request to the smallest model.
func (a *ClaudeAdapter) HealthCheck(ctx context.Context) bool {
	_, err := a.doRequest(ctx, claudeRequest{
		Model:     claudeHealthModel,
		MaxTokens: 1,
		Messages: []claudeMessage{{
			Role:    "user",
			Content: []claudeContent{{Type: "text", Text: "test"}},
		}},
	})
	if err != nil {
		a.logger.Warn("claude health check failed", "error", err)
		return false
	}
	return true
}

// doRequest makes an HTTP request to the Messages API.
func (a *ClaudeAdapter) doRequest(ctx context.Context, body claudeRequest) (*claudeResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/v1/messages", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", ClaudeAPIVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp claudeErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("Claude error (status %d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("Claude error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var cResp claudeResponse
	if err := json.Unmarshal(respBody, &cResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &cResp, nil
}

// Messages API types

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type   string             `json:"type"`
	Text   string             `json:"text,omitempty"`
	Source *claudeImageSource `json:"source,omitempty"`
}

type claudeImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type claudeResponse struct {
	ID         string          `json:"id"`
	Model      string          `json:"model"`
	Content    []claudeContent `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type claudeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

var _ Adapter = (*ClaudeAdapter)(nil)
