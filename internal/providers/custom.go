package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3/option"

	"github.com/2018wzh/llm-doc-parser/internal/decode"
)

const (
	CustomDefaultAPIKey    = "not-needed"
	CustomDefaultModel     = "gpt-3.5-turbo"
	CustomDefaultMaxTokens = 4096
	CustomDefaultTimeout   = 60 * time.Second
)

var customModels = []ModelInfo{
	{
		Name:            "gpt-3.5-turbo",
		DisplayName:     "GPT-3.5 Turbo",
		Provider:        string(Custom),
		Description:     "OpenAI compatible GPT-3.5 Turbo",
		MaxTokens:       4096,
		Capabilities:    []string{CapText},
		CostPer1KInput:  0.0015,
		CostPer1KOutput: 0.002,
	},
	{
		Name:            "gpt-4",
		DisplayName:     "GPT-4",
		Provider:        string(Custom),
		Description:     "OpenAI compatible GPT-4",
		MaxTokens:       8192,
		Capabilities:    []string{CapText},
		CostPer1KInput:  0.03,
		CostPer1KOutput: 0.06,
	},
	{
		Name:         "llama-2",
		DisplayName:  "Llama 2",
		Provider:     string(Custom),
		Description:  "Self-hosted Llama 2 (Ollama, LM Studio)",
		MaxTokens:    4096,
		Capabilities: []string{CapText},
	},
	{
		Name:         "mistral",
		DisplayName:  "Mistral",
		Provider:     string(Custom),
		Description:  "Self-hosted Mistral",
		MaxTokens:    8192,
		Capabilities: []string{CapText},
	},
	{
		Name:         "local-model",
		DisplayName:  "Local model",
		Provider:     string(Custom),
		Description:  "Any self-hosted model",
		MaxTokens:    4096,
		Capabilities: []string{CapText},
	},
}

// CustomAdapter talks to any server exposing the OpenAI chat completions
// API, such as Ollama, vLLM or LM Studio.
type CustomAdapter struct {
	base
	chat chatClient
}

// NewCustomAdapter creates an adapter for an OpenAI-compatible endpoint.
// BaseURL is required.
func NewCustomAdapter(opts Options) (*CustomAdapter, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("custom provider requires a base URL")
	}
	if opts.APIKey == "" {
		opts.APIKey = CustomDefaultAPIKey
	}
	if opts.Model == "" {
		opts.Model = CustomDefaultModel
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = CustomDefaultMaxTokens
	}
	if opts.Timeout == 0 {
		opts.Timeout = CustomDefaultTimeout
	}

	chat := newChatClient("OpenAI-compatible", opts,
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(opts.BaseURL),
	)

	return &CustomAdapter{
		base: newBase(Custom, opts.Model, decode.FormatJSON, customModels, opts.logger()),
		chat: chat,
	}, nil
}

// Invoke sends one chat completion.
func (a *CustomAdapter) Invoke(ctx context.Context, p Prompt, model string, image *Image) (string, error) {
	return a.chat.complete(ctx, p, a.modelOr(model), image)
}

// HealthCheck sends a one-token completion with the default model.
func (a *CustomAdapter) HealthCheck(ctx context.Context) bool {
	if err := a.chat.ping(ctx, a.model); err != nil {
		a.logger.Warn("custom provider health check failed", "model", a.model, "error", err)
		return false
	}
	return true
}

var _ Adapter = (*CustomAdapter)(nil)
