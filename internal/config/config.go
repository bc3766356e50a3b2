package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/home"
	"github.com/2018wzh/llm-doc-parser/internal/providers"
	"github.com/2018wzh/llm-doc-parser/internal/storage"
	"github.com/2018wzh/llm-doc-parser/internal/textextract"
)

// EnvPrefix prefixes environment overrides, e.g. DOCPARSER_SERVER_PORT.
const EnvPrefix = "DOCPARSER"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

// NewManager creates a new config manager and loads initial config.
// Without cfgFile it looks for config.yaml in the working directory, then
// in homePath.
func NewManager(cfgFile, homePath string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
		logger:    slog.Default(),
	}

	if err := cm.initViper(cfgFile, homePath); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// SetLogger sets the logger used for reload messages.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile, homePath string) error {
	if err := setDefaults(cm.v, DefaultConfig()); err != nil {
		return err
	}

	// Environment variables with DOCPARSER_ prefix
	cm.v.SetEnvPrefix(EnvPrefix)
	cm.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cm.v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		cm.v.SetConfigFile(cfgFile)
	} else {
		cm.v.SetConfigName("config")
		cm.v.SetConfigType("yaml")
		cm.v.AddConfigPath(".")
		if homePath != "" {
			cm.v.AddConfigPath(homePath)
		} else {
			cm.v.AddConfigPath("$HOME/" + home.DefaultDirName)
		}
	}

	// Try to read config file (not required)
	if err := cm.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults registers every leaf of cfg as a viper default so that file
// values and environment overrides merge key by key.
func setDefaults(v *viper.Viper, cfg *Config) error {
	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal defaults: %w", err)
	}
	var tree map[string]any
	if err := yamlv3.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to unmarshal defaults: %w", err)
	}
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for k, val := range node {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if child, ok := val.(map[string]any); ok {
				walk(key, child)
				continue
			}
			v.SetDefault(key, val)
		}
	}
	walk("", tree)
	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the file the configuration was read from, if any.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. An invalid file is
// logged and the previous configuration stays active.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			cm.mu.RLock()
			logger := cm.logger
			cm.mu.RUnlock()
			logger.Warn("config reload rejected", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		logger := cm.logger
		cm.mu.Unlock()

		logger.Info("config reloaded", "file", e.Name)
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

var validate = validator.New()

// Validate checks the structural rules declared in struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s %s", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag(), fe.Param()))
			}
			return apperr.Configurationf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return apperr.Configurationf("invalid configuration: %v", err)
	}
	return nil
}

// ValidateProvider checks that id has the settings it needs to make calls.
func (c *Config) ValidateProvider(id string) error {
	p := c.resolvedProvider(id)
	var missing []string
	switch providers.ID(id) {
	case providers.OpenAI, providers.Claude, providers.Gemini:
		if p.APIKey == "" {
			missing = append(missing, "api_key")
		}
	case providers.Azure:
		if p.APIKey == "" {
			missing = append(missing, "api_key")
		}
		if p.Endpoint == "" {
			missing = append(missing, "endpoint")
		}
		if p.Deployment == "" {
			missing = append(missing, "deployment")
		}
	case providers.Custom:
		if p.BaseURL == "" {
			missing = append(missing, "base_url")
		}
	default:
		_, err := providers.ParseID(id)
		return err
	}
	if len(missing) > 0 {
		return apperr.Configurationf("provider %s is missing %s", id, strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) resolvedProvider(id string) ProviderCfg {
	p := c.Providers[id]
	p.APIKey = ResolveEnvVars(p.APIKey)
	p.BaseURL = ResolveEnvVars(p.BaseURL)
	p.Endpoint = ResolveEnvVars(p.Endpoint)
	p.Deployment = ResolveEnvVars(p.Deployment)
	return p
}

// FactoryConfig converts the provider section for providers.NewFactory.
// It resolves all ${ENV_VAR} references.
func (c *Config) FactoryConfig(logger *slog.Logger) providers.FactoryConfig {
	cfg := providers.FactoryConfig{
		Default:   providers.ID(c.DefaultProvider),
		Providers: make(map[providers.ID]providers.Options, len(c.Providers)),
		Logger:    logger,
	}
	for id := range c.Providers {
		p := c.resolvedProvider(id)
		cfg.Providers[providers.ID(id)] = providers.Options{
			APIKey:     p.APIKey,
			BaseURL:    p.BaseURL,
			Model:      p.Model,
			Endpoint:   p.Endpoint,
			Deployment: p.Deployment,
			APIVersion: p.APIVersion,
			MaxTokens:  p.MaxTokens,
			Timeout:    p.Timeout(),

			AllowedBaseURLs: lo.Map(p.AllowedBaseURLs, func(u string, _ int) string { return ResolveEnvVars(u) }),
		}
	}
	return cfg
}

// StorageConfig converts the storage section for storage.New.
func (c *Config) StorageConfig(h *home.Dir, logger *slog.Logger) storage.Config {
	return storage.Config{
		Backend: c.Storage.Backend,
		Home:    h,
		Minio: storage.MinioConfig{
			Endpoint:  ResolveEnvVars(c.Storage.Minio.Endpoint),
			AccessKey: ResolveEnvVars(c.Storage.Minio.AccessKey),
			SecretKey: ResolveEnvVars(c.Storage.Minio.SecretKey),
			Secure:    c.Storage.Minio.Secure,
			Region:    c.Storage.Minio.Region,
			Logger:    logger,
		},
	}
}

// TextExtractConfig converts the extract section for textextract.New.
func (c *Config) TextExtractConfig(logger *slog.Logger) textextract.Config {
	return textextract.Config{
		Pdftotext:       c.Extract.Pdftotext,
		Catdoc:          c.Extract.Catdoc,
		Xls2csv:         c.Extract.Xls2csv,
		Catppt:          c.Extract.Catppt,
		FallbackCharset: c.Extract.FallbackCharset,
		Logger:          logger,
	}
}

// OCRProvider builds the configured OCR fallback, or nil when none is set.
func (c *Config) OCRProvider(logger *slog.Logger) providers.OCRProvider {
	ocr := c.Extract.OCR
	switch ocr.Provider {
	case "tesseract":
		return providers.NewTesseractOCR(providers.TesseractConfig{
			Binary:    ocr.Binary,
			Languages: ocr.Languages,
			Logger:    logger,
		})
	case "mistral":
		return providers.NewMistralOCRClient(providers.MistralOCRConfig{
			APIKey: ResolveEnvVars(ocr.APIKey),
			Model:  ocr.Model,
			Logger: logger,
		})
	}
	return nil
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# docparser configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export OPENAI_API_KEY=xxx ANTHROPIC_API_KEY=xxx GEMINI_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
