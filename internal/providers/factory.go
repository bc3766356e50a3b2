package providers

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
)

type constructor func(Options) (Adapter, error)

// constructors is the closed set of adapter variants.
var constructors = map[ID]constructor{
	OpenAI: func(o Options) (Adapter, error) { return NewOpenAIAdapter(o), nil },
	Azure:  func(o Options) (Adapter, error) { return NewAzureAdapter(o) },
	Claude: func(o Options) (Adapter, error) { return NewClaudeAdapter(o), nil },
	Gemini: func(o Options) (Adapter, error) { return NewGeminiAdapter(o), nil },
	Custom: func(o Options) (Adapter, error) { return NewCustomAdapter(o) },
}

// FactoryConfig configures a Factory.
type FactoryConfig struct {
	// Default is used when Create is called with an empty id.
	Default ID
	// Providers holds per-provider defaults from configuration.
	Providers map[ID]Options
	Logger    *slog.Logger
}

// Factory builds adapters. It is immutable once created; a configuration
// change builds a new Factory.
type Factory struct {
	def       ID
	providers map[ID]Options
	logger    *slog.Logger
}

// NewFactory creates a Factory. The Providers map is copied.
func NewFactory(cfg FactoryConfig) *Factory {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	def := cfg.Default
	if def == "" {
		def = OpenAI
	}
	providers := maps.Clone(cfg.Providers)
	if providers == nil {
		providers = make(map[ID]Options)
	}
	return &Factory{def: def, providers: providers, logger: logger}
}

// Default returns the provider used for requests naming none.
func (f *Factory) Default() ID {
	return f.def
}

// Configured returns the sorted ids that have configuration.
func (f *Factory) Configured() []ID {
	ids := lo.Keys(f.providers)
	slices.Sort(ids)
	return ids
}

// Defaults returns the configured options for id.
func (f *Factory) Defaults(id ID) Options {
	return f.providers[id]
}

// ParseID normalizes s and checks it names a known variant.
func ParseID(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := constructors[id]; !ok {
		return "", apperr.Configurationf("unsupported LLM provider %q, valid providers: %s", s, strings.Join(validIDs(), ", "))
	}
	return id, nil
}

// Create builds an adapter for providerID. Options override the configured
// defaults field by field. An empty providerID selects the default provider.
func (f *Factory) Create(providerID string, opts Options) (Adapter, error) {
	if strings.TrimSpace(providerID) == "" {
		providerID = string(f.def)
	}
	id, err := ParseID(providerID)
	if err != nil {
		return nil, err
	}

	defaults := f.providers[id]
	if err := opts.checkBaseURL(defaults); err != nil {
		return nil, err
	}
	opts = opts.merge(defaults)
	if opts.Logger == nil {
		opts.Logger = f.logger
	}
	if id == Custom && opts.BaseURL == "" {
		return nil, apperr.Configuration("custom provider requires a base URL (custom_base_url or providers.custom.base_url)")
	}

	adapter, err := constructors[id](opts)
	if err != nil {
		return nil, apperr.Configurationf("%s: %v", id, err)
	}
	f.logger.Debug("adapter created", "provider", id, "model", adapter.Model())
	return adapter, nil
}

func validIDs() []string {
	ids := lo.Map(lo.Keys(constructors), func(id ID, _ int) string { return string(id) })
	slices.Sort(ids)
	return ids
}

// String describes the factory for logs.
func (f *Factory) String() string {
	return fmt.Sprintf("providers(default=%s, configured=%v)", f.def, f.Configured())
}

// FactoryRef holds the current Factory and lets a configuration reload swap
// it without locking request paths.
type FactoryRef struct {
	p atomic.Pointer[Factory]
}

// NewFactoryRef creates a FactoryRef pointing at f.
func NewFactoryRef(f *Factory) *FactoryRef {
	r := &FactoryRef{}
	r.p.Store(f)
	return r
}

// Load returns the current Factory.
func (r *FactoryRef) Load() *Factory {
	return r.p.Load()
}

// Store replaces the current Factory. In-flight requests keep the one they
// loaded.
func (r *FactoryRef) Store(f *Factory) {
	r.p.Store(f)
}

// Create builds an adapter from the current Factory.
func (r *FactoryRef) Create(providerID string, opts Options) (Adapter, error) {
	return r.Load().Create(providerID, opts)
}
