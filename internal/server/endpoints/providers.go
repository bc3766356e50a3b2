package endpoints

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/2018wzh/llm-doc-parser/internal/api"
	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/providers"
	"github.com/2018wzh/llm-doc-parser/internal/svcctx"
)

// healthCheckTimeout bounds one provider health check.
const healthCheckTimeout = 30 * time.Second

// ProviderStatus describes one adapter variant.
type ProviderStatus struct {
	ID         string `json:"id"`
	Configured bool   `json:"configured"`
	// Ready is false when required settings such as an API key are missing.
	Ready bool   `json:"ready"`
	Model string `json:"model,omitempty"`
	Error string `json:"error,omitempty"`
}

// ProvidersResponse lists every provider.
type ProvidersResponse struct {
	Default   string           `json:"default"`
	Providers []ProviderStatus `json:"providers"`
}

// ModelsResponse lists one provider's model catalogue.
type ModelsResponse struct {
	Provider string                `json:"provider"`
	Models   []providers.ModelInfo `json:"models"`
}

// ProviderHealthResponse is the result of a provider health check.
type ProviderHealthResponse struct {
	Provider string `json:"provider"`
	Healthy  bool   `json:"healthy"`
}

func factoryFrom(ctx context.Context) (*providers.Factory, error) {
	f := svcctx.FactoryFrom(ctx)
	if f == nil {
		return nil, apperr.Configuration("provider factory is not available")
	}
	return f, nil
}

// ListProvidersEndpoint handles GET /api/v1/providers.
type ListProvidersEndpoint struct{}

func (e *ListProvidersEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/providers", e.handler
}

func (e *ListProvidersEndpoint) RequiresService() bool { return false }

func (e *ListProvidersEndpoint) Group() (string, string) { return "providers", "Inspect LLM providers" }

// handler godoc
//
//	@Summary	List providers
//	@Tags		providers
//	@Produce	json
//	@Success	200	{object}	ProvidersResponse
//	@Router		/api/v1/providers [get]
func (e *ListProvidersEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	f, err := factoryFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	cfg := svcctx.ConfigFrom(r.Context())
	configured := f.Configured()

	statuses := lo.Map(providers.IDs, func(id providers.ID, _ int) ProviderStatus {
		st := ProviderStatus{
			ID:         string(id),
			Configured: slices.Contains(configured, id),
			Ready:      true,
			Model:      f.Defaults(id).Model,
		}
		if cfg != nil {
			if err := cfg.ValidateProvider(string(id)); err != nil {
				st.Ready = false
				st.Error = err.Error()
			}
		}
		if st.Ready {
			if a, err := f.Create(string(id), providers.Options{}); err == nil {
				st.Model = a.Model()
			}
		}
		return st
	})

	writeJSON(w, http.StatusOK, ProvidersResponse{
		Default:   string(f.Default()),
		Providers: statuses,
	})
}

func (e *ListProvidersEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List providers and their readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ProvidersResponse
			if err := client.Get(cmd.Context(), "/api/v1/providers", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ProviderModelsEndpoint handles GET /api/v1/providers/{id}/models.
type ProviderModelsEndpoint struct{}

func (e *ProviderModelsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/providers/{id}/models", e.handler
}

func (e *ProviderModelsEndpoint) RequiresService() bool { return false }

func (e *ProviderModelsEndpoint) Group() (string, string) { return "providers", "Inspect LLM providers" }

// handler godoc
//
//	@Summary	List provider models
//	@Tags		providers
//	@Produce	json
//	@Param		id	path		string	true	"Provider id"
//	@Success	200	{object}	ModelsResponse
//	@Failure	400	{object}	ErrorResponse
//	@Router		/api/v1/providers/{id}/models [get]
func (e *ProviderModelsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	f, err := factoryFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	adapter, err := f.Create(id, providers.Options{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ModelsResponse{
		Provider: string(adapter.ID()),
		Models:   adapter.ListModels(),
	})
}

func (e *ProviderModelsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "models <provider>",
		Short: "List a provider's models",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ModelsResponse
			if err := client.Get(cmd.Context(), fmt.Sprintf("/api/v1/providers/%s/models", args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ProviderHealthEndpoint handles GET /api/v1/providers/{id}/health.
type ProviderHealthEndpoint struct{}

func (e *ProviderHealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/providers/{id}/health", e.handler
}

func (e *ProviderHealthEndpoint) RequiresService() bool { return false }

func (e *ProviderHealthEndpoint) Group() (string, string) { return "providers", "Inspect LLM providers" }

// handler godoc
//
//	@Summary	Check a provider
//	@Tags		providers
//	@Produce	json
//	@Param		id	path		string	true	"Provider id"
//	@Success	200	{object}	ProviderHealthResponse
//	@Failure	400	{object}	ErrorResponse
//	@Router		/api/v1/providers/{id}/health [get]
func (e *ProviderHealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	f, err := factoryFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	adapter, err := f.Create(r.PathValue("id"), providers.Options{})
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()
	healthy := adapter.HealthCheck(ctx)

	svcctx.LoggerFrom(r.Context()).Info("provider health checked", "provider", adapter.ID(), "healthy", healthy)
	writeJSON(w, http.StatusOK, ProviderHealthResponse{
		Provider: string(adapter.ID()),
		Healthy:  healthy,
	})
}

func (e *ProviderHealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health <provider>",
		Short: "Check a provider with a minimal request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ProviderHealthResponse
			if err := client.Get(cmd.Context(), fmt.Sprintf("/api/v1/providers/%s/health", args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
