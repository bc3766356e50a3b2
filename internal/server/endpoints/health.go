package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/2018wzh/llm-doc-parser/internal/api"
	"github.com/2018wzh/llm-doc-parser/version"
)

// ServiceTitle names the service in health and info responses.
const ServiceTitle = "LLM Document Parser"

// HealthResponse is the response for the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresService() bool { return false }

// handler godoc
//
//	@Summary	Health check
//	@Tags		info
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Router		/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: ServiceTitle,
		Version: version.GitRelease,
	})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// InfoResponse names the service and its build.
type InfoResponse struct {
	Title   string `json:"title"`
	Version string `json:"version"`
}

// InfoEndpoint handles GET /.
type InfoEndpoint struct{}

func (e *InfoEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/{$}", e.handler
}

func (e *InfoEndpoint) RequiresService() bool { return false }

// handler godoc
//
//	@Summary	API information
//	@Tags		info
//	@Produce	json
//	@Success	200	{object}	InfoResponse
//	@Router		/ [get]
func (e *InfoEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{
		Title:   ServiceTitle,
		Version: version.GitRelease,
	})
}

func (e *InfoEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show server title and version",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp InfoResponse
			if err := client.Get(cmd.Context(), "/", &resp); err != nil {
				return err
			}
			if api.GetOutputFormat() == api.OutputFormatJSON {
				return api.Output(resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", resp.Title, resp.Version)
			return nil
		},
	}
}
