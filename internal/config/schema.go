package config

import (
	"time"
)

// Config holds docparser configuration.
// Stored at: ~/.docparser/config.yaml (or ./config.yaml, or --config)
type Config struct {
	Server          ServerCfg              `mapstructure:"server" yaml:"server"`
	Log             LogCfg                 `mapstructure:"log" yaml:"log"`
	DefaultProvider string                 `mapstructure:"default_provider" yaml:"default_provider" validate:"required,oneof=openai azure claude gemini custom"`
	Providers       map[string]ProviderCfg `mapstructure:"providers" yaml:"providers" validate:"dive,keys,oneof=openai azure claude gemini custom,endkeys"`
	Storage         StorageCfg             `mapstructure:"storage" yaml:"storage"`
	Extract         ExtractCfg             `mapstructure:"extract" yaml:"extract"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port" validate:"required,numeric"`
}

// LogCfg configures the slog handler built by serve.
type LogCfg struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// ProviderCfg configures one LLM provider.
type ProviderCfg struct {
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`   // API key (supports ${ENV_VAR} syntax)
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"` // Custom endpoint (openai, custom)
	Model          string `mapstructure:"model" yaml:"model"`       // Default model
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Deployment     string `mapstructure:"deployment" yaml:"deployment,omitempty"`
	APIVersion     string `mapstructure:"api_version" yaml:"api_version,omitempty"`
	MaxTokens      int    `mapstructure:"max_tokens" yaml:"max_tokens,omitempty" validate:"gte=0"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds,omitempty" validate:"gte=0"`
	// AllowedBaseURLs are the base URLs a request may select with
	// custom_base_url. Requests never receive the configured API key there.
	AllowedBaseURLs []string `mapstructure:"allowed_base_urls" yaml:"allowed_base_urls,omitempty"`
}

// StorageCfg selects where stored objects are read from.
type StorageCfg struct {
	Backend string   `mapstructure:"backend" yaml:"backend" validate:"oneof=minio local"`
	Minio   MinioCfg `mapstructure:"minio" yaml:"minio"`
}

// MinioCfg configures the MinIO client.
type MinioCfg struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Secure    bool   `mapstructure:"secure" yaml:"secure"`
	Region    string `mapstructure:"region" yaml:"region"`
}

// ExtractCfg configures content handling.
type ExtractCfg struct {
	MaxFileSize     int64  `mapstructure:"max_file_size" yaml:"max_file_size" validate:"gte=0"` // bytes
	Pdftotext       string `mapstructure:"pdftotext" yaml:"pdftotext"`
	Catdoc          string `mapstructure:"catdoc" yaml:"catdoc"`
	Xls2csv         string `mapstructure:"xls2csv" yaml:"xls2csv"`
	Catppt          string `mapstructure:"catppt" yaml:"catppt"`
	FallbackCharset string `mapstructure:"fallback_charset" yaml:"fallback_charset"`
	OCR             OCRCfg `mapstructure:"ocr" yaml:"ocr"`
}

// OCRCfg configures the image OCR fallback.
type OCRCfg struct {
	Provider  string `mapstructure:"provider" yaml:"provider" validate:"omitempty,oneof=none tesseract mistral"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"` // mistral (supports ${ENV_VAR} syntax)
	Model     string `mapstructure:"model" yaml:"model"`     // mistral
	Binary    string `mapstructure:"binary" yaml:"binary"`   // tesseract
	Languages string `mapstructure:"languages" yaml:"languages"`
}

// DefaultMaxFileSize is the default upload cap.
const DefaultMaxFileSize = 100 << 20

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerCfg{
			Host: "0.0.0.0",
			Port: "8000",
		},
		Log: LogCfg{
			Level:  "info",
			Format: "text",
		},
		DefaultProvider: "openai",
		Providers: map[string]ProviderCfg{
			"openai": {
				APIKey: "${OPENAI_API_KEY}",
				Model:  "gpt-4o-mini",
			},
			"azure": {
				APIKey:     "${AZURE_OPENAI_KEY}",
				Endpoint:   "${AZURE_OPENAI_ENDPOINT}",
				Deployment: "${AZURE_OPENAI_DEPLOYMENT}",
				APIVersion: "2024-02-15-preview",
			},
			"claude": {
				APIKey: "${ANTHROPIC_API_KEY}",
				Model:  "claude-3-sonnet-20240229",
			},
			"gemini": {
				APIKey: "${GEMINI_API_KEY}",
				Model:  "gemini-2.0-flash",
			},
			"custom": {
				APIKey:         "not-needed",
				BaseURL:        "${CUSTOM_BASE_URL}",
				Model:          "gpt-3.5-turbo",
				TimeoutSeconds: 60,
			},
		},
		Storage: StorageCfg{
			Backend: "minio",
			Minio: MinioCfg{
				Endpoint:  "localhost:9000",
				AccessKey: "${MINIO_ACCESS_KEY}",
				SecretKey: "${MINIO_SECRET_KEY}",
				Region:    "us-east-1",
			},
		},
		Extract: ExtractCfg{
			MaxFileSize:     DefaultMaxFileSize,
			Pdftotext:       "pdftotext",
			Catdoc:          "catdoc",
			Xls2csv:         "xls2csv",
			Catppt:          "catppt",
			FallbackCharset: "gb18030",
			OCR: OCRCfg{
				Provider:  "none",
				APIKey:    "${MISTRAL_API_KEY}",
				Binary:    "tesseract",
				Languages: "chi_sim+eng",
			},
		},
	}
}

// GetProvider returns a provider config by id.
func (c *Config) GetProvider(id string) (ProviderCfg, bool) {
	cfg, ok := c.Providers[id]
	return cfg, ok
}

// Timeout returns the configured HTTP timeout, or zero for the provider
// default.
func (p ProviderCfg) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}
