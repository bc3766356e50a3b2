// Package server runs the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2018wzh/llm-doc-parser/internal/api"
	"github.com/2018wzh/llm-doc-parser/internal/config"
	"github.com/2018wzh/llm-doc-parser/internal/content"
	"github.com/2018wzh/llm-doc-parser/internal/extract"
	"github.com/2018wzh/llm-doc-parser/internal/home"
	"github.com/2018wzh/llm-doc-parser/internal/providers"
	"github.com/2018wzh/llm-doc-parser/internal/server/endpoints"
	"github.com/2018wzh/llm-doc-parser/internal/storage"
	"github.com/2018wzh/llm-doc-parser/internal/svcctx"
	"github.com/2018wzh/llm-doc-parser/internal/textextract"
)

// Server is the docparser HTTP server.
type Server struct {
	httpServer *http.Server
	factory    *providers.FactoryRef
	configMgr  *config.Manager
	home       *home.Dir
	logger     *slog.Logger

	// services is swapped whole on config reload
	services atomic.Pointer[svcctx.Services]

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 0.0.0.0)
	Host string
	// Port is the port to listen on (default: 8000)
	Port string
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home is the data directory used by the local storage backend
	Home *home.Dir
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	settings := cfg.ConfigManager.Get()
	if cfg.Host == "" {
		cfg.Host = settings.Server.Host
	}
	if cfg.Port == "" {
		cfg.Port = settings.Server.Port
	}

	s := &Server{
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
		factory:   providers.NewFactoryRef(providers.NewFactory(settings.FactoryConfig(cfg.Logger))),
	}
	s.checkProviders(settings)
	s.services.Store(s.buildServices(settings))

	// Watch for config changes
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		s.factory.Store(providers.NewFactory(c.FactoryConfig(s.logger)))
		s.checkProviders(c)
		s.services.Store(s.buildServices(c))
		s.logger.Info("providers and extraction service reloaded from config", "factory", s.factory.Load())
	})

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireService)

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           s.withRequestID(withCORS(s.withServices(mux))),
		ReadHeaderTimeout: 30 * time.Second,
		// Extraction waits on the model, so writes get a long deadline.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// checkProviders logs providers that lack required settings. Requests to
// them fail later with a configuration error.
func (s *Server) checkProviders(c *config.Config) {
	for id := range c.Providers {
		if err := c.ValidateProvider(id); err != nil {
			s.logger.Warn("provider not ready", "provider", id, "error", err)
		}
	}
	if err := c.ValidateProvider(c.DefaultProvider); err != nil {
		s.logger.Warn("default provider not ready", "provider", c.DefaultProvider, "error", err)
	}
}

// buildServices wires storage, text extraction and OCR into a new
// extraction service. A storage setup failure disables stored objects only.
func (s *Server) buildServices(c *config.Config) *svcctx.Services {
	var fetcher content.Fetcher
	if f, err := storage.New(c.StorageConfig(s.home, s.logger)); err != nil {
		s.logger.Warn("object storage unavailable", "backend", c.Storage.Backend, "error", err)
	} else {
		fetcher = f
	}

	services := &svcctx.Services{
		Factory:       s.factory,
		Config:        s.configMgr,
		Logger:        s.logger,
		Home:          s.home,
		MaxUploadSize: c.Extract.MaxFileSize,
	}

	svc, err := extract.NewService(extract.Config{
		Acquirer: content.NewAcquirer(content.AcquirerConfig{
			Fetcher: fetcher,
			MaxSize: c.Extract.MaxFileSize,
			Logger:  s.logger,
		}),
		Extractor: textextract.New(c.TextExtractConfig(s.logger)),
		Factory:   s.factory,
		OCR:       c.OCRProvider(s.logger),
		Logger:    s.logger,
	})
	if err != nil {
		s.logger.Error("extraction service unavailable", "error", err)
		return services
	}
	services.Extractor = svc
	return services
}

// Start starts the HTTP server.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr, "providers", s.factory.Load())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			s.setNotRunning()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown drains in-flight requests.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return err
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Factory returns the current adapter factory.
func (s *Server) Factory() *providers.Factory {
	return s.factory.Load()
}

// Services returns the services currently attached to requests.
func (s *Server) Services() *svcctx.Services {
	return s.services.Load()
}
