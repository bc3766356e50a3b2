package providers

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3/azure"

	"github.com/2018wzh/llm-doc-parser/internal/decode"
)

const (
	AzureDefaultAPIVersion = "2024-02-15-preview"
	AzureDefaultMaxTokens  = 4096
)

// AzureAdapter talks to an Azure OpenAI deployment. The model name sent on
// each call is the deployment name.
type AzureAdapter struct {
	base
	chat chatClient
}

// NewAzureAdapter creates an Azure OpenAI adapter. Endpoint, Deployment and
// APIKey are required.
func NewAzureAdapter(opts Options) (*AzureAdapter, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = opts.BaseURL
	}
	if opts.APIKey == "" || opts.Endpoint == "" || opts.Deployment == "" {
		return nil, fmt.Errorf("azure requires api key, endpoint and deployment")
	}
	if opts.APIVersion == "" {
		opts.APIVersion = AzureDefaultAPIVersion
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = AzureDefaultMaxTokens
	}

	models := []ModelInfo{{
		Name:            opts.Deployment,
		DisplayName:     fmt.Sprintf("Azure OpenAI (%s)", opts.Deployment),
		Provider:        string(Azure),
		Description:     "Azure OpenAI deployment",
		MaxTokens:       8192,
		Capabilities:    []string{CapText, CapJSONMode},
		CostPer1KInput:  0.03,
		CostPer1KOutput: 0.06,
	}}

	chat := newChatClient("Azure OpenAI", opts,
		azure.WithEndpoint(opts.Endpoint, opts.APIVersion),
		azure.WithAPIKey(opts.APIKey),
	)

	return &AzureAdapter{
		base: newBase(Azure, opts.Deployment, decode.FormatJSON, models, opts.logger()),
		chat: chat,
	}, nil
}

// Invoke sends one chat completion to the deployment.
func (a *AzureAdapter) Invoke(ctx context.Context, p Prompt, model string, image *Image) (string, error) {
	return a.chat.complete(ctx, p, a.modelOr(model), image)
}

// HealthCheck sends a one-token completion to the deployment.
func (a *AzureAdapter) HealthCheck(ctx context.Context) bool {
	if err := a.chat.ping(ctx, a.model); err != nil {
		a.logger.Warn("azure health check failed", "deployment", a.model, "error", err)
		return false
	}
	return true
}

var _ Adapter = (*AzureAdapter)(nil)
