package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/2018wzh/llm-doc-parser/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the docparser server",
	Long: `Start the docparser HTTP server.

Configuration is watched for changes: provider settings, storage and OCR
are rebuilt on every valid edit while the server keeps running.

The server provides:
  - /health           - Basic server health check
  - /api/v1/extract   - JSON extraction API
  - /extract          - Multipart upload extraction
  - /api/v1/providers - Provider status and model catalogues

Examples:
  docparser serve                    # Start on the configured port (8000)
  docparser serve --port 3000        # Start on custom port
  docparser serve --host 127.0.0.1   # Bind to loopback only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, mgr, err := loadConfig()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		logger := newLogger(os.Stdout, mgr.Get().Log)
		mgr.SetLogger(logger)
		mgr.WatchConfig()
		if f := mgr.ConfigFile(); f != "" {
			logger.Info("loaded config", "file", f)
		}

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			ConfigManager: mgr,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host from config)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: server.port from config)")

	rootCmd.AddCommand(serveCmd)
}
