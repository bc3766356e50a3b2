package endpoints

import (
	"github.com/2018wzh/llm-doc-parser/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Info endpoints
		&HealthEndpoint{},
		&InfoEndpoint{},

		// Extraction endpoints
		&ExtractEndpoint{},
		&UploadExtractEndpoint{},

		// Provider endpoints
		&ListProvidersEndpoint{},
		&ProviderModelsEndpoint{},
		&ProviderHealthEndpoint{},
	}
}
