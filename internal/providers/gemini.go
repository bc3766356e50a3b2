package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/decode"
)

const (
	GeminiBaseURL          = "https://generativelanguage.googleapis.com"
	GeminiDefaultModel     = "gemini-2.0-flash"
	GeminiDefaultMaxTokens = 4096
)

var geminiModels = []ModelInfo{
	{
		Name:            "gemini-2.0-flash",
		DisplayName:     "Gemini 2.0 Flash",
		Provider:        string(Gemini),
		Description:     "Latest fast Gemini model",
		MaxTokens:       1000000,
		Capabilities:    []string{CapText, CapVision},
		CostPer1KInput:  0.00005,
		CostPer1KOutput: 0.00015,
	},
	{
		Name:            "gemini-1.5-pro",
		DisplayName:     "Gemini 1.5 Pro",
		Provider:        string(Gemini),
		Description:     "High capability Gemini model",
		MaxTokens:       1000000,
		Capabilities:    []string{CapText, CapVision},
		CostPer1KInput:  0.0035,
		CostPer1KOutput: 0.0105,
	},
	{
		Name:            "gemini-1.5-flash",
		DisplayName:     "Gemini 1.5 Flash",
		Provider:        string(Gemini),
		Description:     "Fast, cost efficient Gemini model",
		MaxTokens:       1000000,
		Capabilities:    []string{CapText, CapVision},
		CostPer1KInput:  0.000075,
		CostPer1KOutput: 0.0003,
	},
}

// GeminiAdapter talks to the Gemini generateContent API. It instructs the
// model to answer in TOON.
type GeminiAdapter struct {
	base
	apiKey    string
	baseURL   string
	maxTokens int
	client    *http.Client
}

// NewGeminiAdapter creates a Gemini adapter.
func NewGeminiAdapter(opts Options) *GeminiAdapter {
	if opts.BaseURL == "" {
		opts.BaseURL = GeminiBaseURL
	}
	if opts.Model == "" {
		opts.Model = GeminiDefaultModel
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = GeminiDefaultMaxTokens
	}

	return &GeminiAdapter{
		base:      newBase(Gemini, opts.Model, decode.FormatTOON, geminiModels, opts.logger()),
		apiKey:    opts.APIKey,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		maxTokens: opts.MaxTokens,
		client:    opts.httpClient(),
	}
}

// Invoke sends one generateContent request. An image is sent as inline data
// after the text part.
func (a *GeminiAdapter) Invoke(ctx context.Context, p Prompt, model string, image *Image) (string, error) {
	start := time.Now()
	model = a.modelOr(model)

	parts := []geminiPart{{Text: p.User}}
	if image != nil && len(image.Data) > 0 {
		parts = append(parts, geminiPart{
			InlineData: &geminiBlob{MimeType: image.MIME, Data: image.Base64()},
		})
	}

	temperature := 0.0
	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: p.System}}},
		Contents:          []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     &temperature,
			MaxOutputTokens: a.maxTokens,
		},
	}

	a.logger.Info("calling model", "provider", Gemini, "model", model, "image", image != nil)
	path := "/v1beta/models/" + url.PathEscape(model) + ":generateContent"
	var resp geminiResponse
	if err := a.doRequest(ctx, "POST", path, req, &resp); err != nil {
		a.logger.Error("model call failed", "provider", Gemini, "model", model, "error", err)
		return "", apperr.LLM(fmt.Sprintf("Gemini API call failed: %v", err), err)
	}
	if len(resp.Candidates) == 0 {
		msg := "Gemini returned no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			msg = fmt.Sprintf("%s (blocked: %s)", msg, resp.PromptFeedback.BlockReason)
		}
		return "", apperr.LLM(msg, nil)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}

	a.logger.Info("model call succeeded",
		"provider", Gemini,
		"model", model,
		"prompt_tokens", resp.UsageMetadata.PromptTokenCount,
		"completion_tokens", resp.UsageMetadata.CandidatesTokenCount,
		"duration", time.Since(start),
	)
	return b.String(), nil
}

// HealthCheck lists models to verify the key.
func (a *GeminiAdapter) HealthCheck(ctx context.Context) bool {
	var resp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := a.doRequest(ctx, "GET", "/v1beta/models", nil, &resp); err != nil {
		a.logger.Warn("gemini health check failed", "error", err)
		return false
	}
	return true
}

// doRequest makes an HTTP request to the Gemini API and decodes the JSON
// response into out.
func (a *GeminiAdapter) doRequest(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-goog-api-key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp geminiErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return fmt.Errorf("Gemini error (status %d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return fmt.Errorf("Gemini error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// generateContent API types

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

var _ Adapter = (*GeminiAdapter)(nil)
