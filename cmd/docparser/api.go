package main

import (
	"github.com/2018wzh/llm-doc-parser/internal/api"
	"github.com/2018wzh/llm-doc-parser/internal/server/endpoints"
)

var serverURL string

func init() {
	registry := api.NewRegistry()
	for _, ep := range endpoints.All() {
		registry.Register(ep)
	}

	apiCmd := registry.BuildCommands(func() string { return serverURL })
	apiCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "Server URL")
	rootCmd.AddCommand(apiCmd)
}
