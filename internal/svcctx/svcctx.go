// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/2018wzh/llm-doc-parser/internal/config"
	"github.com/2018wzh/llm-doc-parser/internal/extract"
	"github.com/2018wzh/llm-doc-parser/internal/home"
	"github.com/2018wzh/llm-doc-parser/internal/providers"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Extractor *extract.Service
	Factory   *providers.FactoryRef
	Config    *config.Manager
	Logger    *slog.Logger
	Home      *home.Dir
	// MaxUploadSize caps multipart bodies in bytes.
	MaxUploadSize int64
}

type servicesKey struct{}

type requestIDKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// ExtractorFrom extracts the extraction service from context.
func ExtractorFrom(ctx context.Context) *extract.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.Extractor
	}
	return nil
}

// FactoryFrom returns the current adapter factory, or nil.
func FactoryFrom(ctx context.Context) *providers.Factory {
	if s := ServicesFrom(ctx); s != nil && s.Factory != nil {
		return s.Factory.Load()
	}
	return nil
}

// ConfigFrom returns the current configuration, or nil.
func ConfigFrom(ctx context.Context) *config.Config {
	if s := ServicesFrom(ctx); s != nil && s.Config != nil {
		return s.Config.Get()
	}
	return nil
}

// LoggerFrom extracts the logger from context, tagged with the request id
// when one is set. Falls back to slog.Default.
func LoggerFrom(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		logger = s.Logger
	}
	if id := RequestIDFrom(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	return logger
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// WithRequestID attaches the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
