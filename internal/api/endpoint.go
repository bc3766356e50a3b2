package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint defines both an HTTP route and its corresponding CLI command.
// This provides a single source of truth for API operations.
type Endpoint interface {
	// Route returns the HTTP method, path, and handler for this endpoint.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresService returns true if this endpoint needs the extraction
	// service, which is unavailable when storage or extractor setup failed.
	RequiresService() bool

	// Command returns a Cobra command that calls this endpoint via HTTP.
	// getServerURL is called at runtime to get the server URL (deferred evaluation).
	// A nil command keeps the endpoint off the CLI.
	Command(getServerURL func() string) *cobra.Command
}
