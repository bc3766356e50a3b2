package providers

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/decode"
	"github.com/2018wzh/llm-doc-parser/internal/schema"
)

// ID names an adapter variant.
type ID string

const (
	OpenAI ID = "openai"
	Azure  ID = "azure"
	Claude ID = "claude"
	Gemini ID = "gemini"
	Custom ID = "custom"
)

// IDs lists every adapter variant.
var IDs = []ID{OpenAI, Azure, Claude, Gemini, Custom}

// Model capabilities.
const (
	CapText            = "text"
	CapJSONMode        = "json_mode"
	CapVision          = "vision"
	CapFunctionCalling = "function_calling"
	CapStreaming       = "streaming"
	CapLongContext     = "long_context"
)

// Adapter is the capability set every vendor integration provides.
type Adapter interface {
	// ID returns the adapter variant.
	ID() ID

	// Model returns the model used when a request names none.
	Model() string

	// BuildPrompt renders the instruction for content, or for image when
	// content is empty.
	BuildPrompt(content string, image *Image, s schema.Schema) (Prompt, error)

	// Invoke sends one completion request and returns the raw model text.
	Invoke(ctx context.Context, p Prompt, model string, image *Image) (string, error)

	// DecodeResponse turns raw model text into typed values.
	DecodeResponse(raw string, s schema.Schema) ([]schema.Value, error)

	// ListModels returns the static model catalogue.
	ListModels() []ModelInfo

	// HealthCheck issues a minimal call and reports whether it succeeded.
	HealthCheck(ctx context.Context) bool
}

// OCRProvider turns an image into text.
type OCRProvider interface {
	Name() string
	RecognizeText(ctx context.Context, image []byte) (string, error)
}

// Prompt is a rendered instruction.
type Prompt struct {
	System string
	User   string
}

// Image is binary image content sent alongside a prompt.
type Image struct {
	Data []byte
	MIME string
}

// NewImage wraps data, sniffing the MIME type when mimeType is empty.
func NewImage(data []byte, mimeType string) *Image {
	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}
	return &Image{Data: data, MIME: mimeType}
}

// Base64 returns the standard base64 encoding of the image.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURI returns the image as a data: URI.
func (i *Image) DataURI() string {
	return "data:" + i.MIME + ";base64," + i.Base64()
}

// ModelInfo describes one model of a vendor catalogue.
type ModelInfo struct {
	Name            string   `json:"name" yaml:"name"`
	DisplayName     string   `json:"display_name" yaml:"display_name"`
	Provider        string   `json:"provider" yaml:"provider"`
	Description     string   `json:"description,omitempty" yaml:"description,omitempty"`
	MaxTokens       int      `json:"max_tokens" yaml:"max_tokens"`
	Capabilities    []string `json:"capabilities" yaml:"capabilities"`
	CostPer1KInput  float64  `json:"cost_per_1k_input" yaml:"cost_per_1k_input"`
	CostPer1KOutput float64  `json:"cost_per_1k_output" yaml:"cost_per_1k_output"`
}

// Supports reports whether the model lists capability.
func (m ModelInfo) Supports(capability string) bool {
	return slices.Contains(m.Capabilities, capability)
}

// FindModel looks name up in the adapter's catalogue.
func FindModel(a Adapter, name string) (ModelInfo, bool) {
	for _, m := range a.ListModels() {
		if m.Name == name {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// Options configures an adapter. Empty fields fall back to vendor defaults.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string

	// Azure only.
	Endpoint   string
	Deployment string
	APIVersion string

	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client // Optional (tests)
	Logger     *slog.Logger

	// AllowedBaseURLs lists the base URLs a request may switch to. Only read
	// from the configured defaults.
	AllowedBaseURLs []string
}

// merge returns o with empty fields taken from defaults.
// The configured API key is not inherited when o points the adapter at a
// different base URL or endpoint.
func (o Options) merge(defaults Options) Options {
	if o.APIKey == "" && !o.redirects(defaults) {
		o.APIKey = defaults.APIKey
	}
	if o.BaseURL == "" {
		o.BaseURL = defaults.BaseURL
	}
	if o.Model == "" {
		o.Model = defaults.Model
	}
	if o.Endpoint == "" {
		o.Endpoint = defaults.Endpoint
	}
	if o.Deployment == "" {
		o.Deployment = defaults.Deployment
	}
	if o.APIVersion == "" {
		o.APIVersion = defaults.APIVersion
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = defaults.MaxTokens
	}
	if o.Timeout == 0 {
		o.Timeout = defaults.Timeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = defaults.HTTPClient
	}
	if o.Logger == nil {
		o.Logger = defaults.Logger
	}
	return o
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// base carries the behaviour shared by every adapter: prompt rendering in
// the adapter's instructed format, decoding and the catalogue.
type base struct {
	id      ID
	model   string
	format  decode.Format
	models  []ModelInfo
	decoder *decode.Decoder
	logger  *slog.Logger
}

func newBase(id ID, model string, format decode.Format, models []ModelInfo, logger *slog.Logger) base {
	return base{
		id:      id,
		model:   model,
		format:  format,
		models:  models,
		decoder: decode.NewDecoder(logger),
		logger:  logger,
	}
}

func (b *base) ID() ID        { return b.id }
func (b *base) Model() string { return b.model }

// Format returns the notation the adapter instructs the model to use.
func (b *base) Format() decode.Format { return b.format }

func (b *base) ListModels() []ModelInfo {
	return slices.Clone(b.models)
}

func (b *base) BuildPrompt(content string, image *Image, s schema.Schema) (Prompt, error) {
	return buildPrompt(b.format, content, image, s)
}

func (b *base) DecodeResponse(raw string, s schema.Schema) ([]schema.Value, error) {
	return b.decoder.Values(raw, b.format, s)
}

func (b *base) modelOr(model string) string {
	if model != "" {
		return model
	}
	return b.model
}

// redirects reports whether o sends requests somewhere other than defaults.
func (o Options) redirects(defaults Options) bool {
	return (o.BaseURL != "" && !sameURL(o.BaseURL, defaults.BaseURL)) ||
		(o.Endpoint != "" && !sameURL(o.Endpoint, defaults.Endpoint))
}

// checkBaseURL rejects a requested base URL that is neither the configured
// one nor on the configured allowlist.
func (o Options) checkBaseURL(defaults Options) error {
	if o.BaseURL == "" || sameURL(o.BaseURL, defaults.BaseURL) {
		return nil
	}
	for _, allowed := range defaults.AllowedBaseURLs {
		if sameURL(o.BaseURL, allowed) {
			return nil
		}
	}
	return apperr.Validationf("base URL %q is not allowed for this provider", o.BaseURL)
}

func sameURL(a, b string) bool {
	return strings.TrimRight(strings.TrimSpace(a), "/") == strings.TrimRight(strings.TrimSpace(b), "/")
}
