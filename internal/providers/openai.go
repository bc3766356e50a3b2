package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/decode"
)

const (
	OpenAIDefaultModel     = "gpt-4o-mini"
	OpenAIDefaultMaxTokens = 4096
)

var openAIModels = []ModelInfo{
	{
		Name:            "gpt-4o-mini",
		DisplayName:     "GPT-4o mini",
		Provider:        string(OpenAI),
		Description:     "Fast, low cost multimodal model",
		MaxTokens:       128000,
		Capabilities:    []string{CapText, CapVision, CapJSONMode, CapFunctionCalling, CapStreaming, CapLongContext},
		CostPer1KInput:  0.00015,
		CostPer1KOutput: 0.0006,
	},
	{
		Name:            "gpt-4o",
		DisplayName:     "GPT-4o",
		Provider:        string(OpenAI),
		Description:     "Flagship multimodal model",
		MaxTokens:       128000,
		Capabilities:    []string{CapText, CapVision, CapJSONMode, CapFunctionCalling, CapStreaming, CapLongContext},
		CostPer1KInput:  0.0025,
		CostPer1KOutput: 0.01,
	},
	{
		Name:            "gpt-4-turbo",
		DisplayName:     "GPT-4 Turbo",
		Provider:        string(OpenAI),
		Description:     "Previous generation high intelligence model",
		MaxTokens:       128000,
		Capabilities:    []string{CapText, CapVision, CapJSONMode, CapFunctionCalling, CapStreaming, CapLongContext},
		CostPer1KInput:  0.01,
		CostPer1KOutput: 0.03,
	},
	{
		Name:            "gpt-3.5-turbo",
		DisplayName:     "GPT-3.5 Turbo",
		Provider:        string(OpenAI),
		Description:     "Legacy text model",
		MaxTokens:       16385,
		Capabilities:    []string{CapText, CapJSONMode, CapFunctionCalling, CapStreaming},
		CostPer1KInput:  0.0005,
		CostPer1KOutput: 0.0015,
	},
}

// chatClient sends chat completions through the OpenAI SDK. It backs the
// openai, azure and custom adapters, which differ only in client options.
type chatClient struct {
	label     string
	client    openai.Client
	maxTokens int
	logger    *slog.Logger
}

func newChatClient(label string, opts Options, extra ...option.RequestOption) chatClient {
	reqOpts := []option.RequestOption{
		option.WithHTTPClient(opts.httpClient()),
		option.WithMaxRetries(0),
	}
	reqOpts = append(reqOpts, extra...)

	return chatClient{
		label:     label,
		client:    openai.NewClient(reqOpts...),
		maxTokens: opts.MaxTokens,
		logger:    opts.logger(),
	}
}

func (c *chatClient) complete(ctx context.Context, p Prompt, model string, image *Image) (string, error) {
	start := time.Now()

	var user openai.ChatCompletionMessageParamUnion
	if image != nil && len(image.Data) > 0 {
		user = openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(p.User),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: image.DataURI(),
			}),
		})
	} else {
		user = openai.UserMessage(p.User)
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System),
			user,
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(int64(c.maxTokens)),
	}

	c.logger.Info("calling model", "provider", c.label, "model", model, "image", image != nil)
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		err = c.mapError(err)
		c.logger.Error("model call failed", "provider", c.label, "model", model, "error", err)
		return "", apperr.LLM(fmt.Sprintf("%s API call failed: %v", c.label, err), err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.LLM(fmt.Sprintf("%s returned no choices", c.label), nil)
	}

	c.logger.Info("model call succeeded",
		"provider", c.label,
		"model", model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration", time.Since(start),
	)
	return resp.Choices[0].Message.Content, nil
}

// ping sends a one-token completion.
func (c *chatClient) ping(ctx context.Context, model string) error {
	_, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(model),
		Messages:  []openai.ChatCompletionMessageParamUnion{openai.UserMessage("test")},
		MaxTokens: openai.Int(1),
	})
	if err != nil {
		return c.mapError(err)
	}
	return nil
}

func (c *chatClient) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return fmt.Errorf("%s error (status %d): %s", c.label, apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("%s error (status %d)", c.label, apiErr.StatusCode)
	}
	return err
}

// OpenAIAdapter talks to the OpenAI chat completions API.
type OpenAIAdapter struct {
	base
	chat chatClient
}

// NewOpenAIAdapter creates an OpenAI adapter.
func NewOpenAIAdapter(opts Options) *OpenAIAdapter {
	if opts.Model == "" {
		opts.Model = OpenAIDefaultModel
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = OpenAIDefaultMaxTokens
	}

	extra := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		extra = append(extra, option.WithBaseURL(opts.BaseURL))
	}

	logger := opts.logger()
	return &OpenAIAdapter{
		base: newBase(OpenAI, opts.Model, decode.FormatJSON, openAIModels, logger),
		chat: newChatClient("OpenAI", opts, extra...),
	}
}

// Invoke sends one chat completion.
func (a *OpenAIAdapter) Invoke(ctx context.Context, p Prompt, model string, image *Image) (string, error) {
	return a.chat.complete(ctx, p, a.modelOr(model), image)
}

// HealthCheck lists models to verify the key and endpoint.
func (a *OpenAIAdapter) HealthCheck(ctx context.Context) bool {
	page, err := a.chat.client.Models.List(ctx)
	if err != nil {
		a.logger.Warn("openai health check failed", "error", a.chat.mapError(err))
		return false
	}
	return page != nil
}

var _ Adapter = (*OpenAIAdapter)(nil)
