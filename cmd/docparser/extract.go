package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/2018wzh/llm-doc-parser/internal/api"
	"github.com/2018wzh/llm-doc-parser/internal/content"
	"github.com/2018wzh/llm-doc-parser/internal/decode"
	"github.com/2018wzh/llm-doc-parser/internal/extract"
	"github.com/2018wzh/llm-doc-parser/internal/providers"
	"github.com/2018wzh/llm-doc-parser/internal/server/endpoints"
	"github.com/2018wzh/llm-doc-parser/internal/storage"
	"github.com/2018wzh/llm-doc-parser/internal/textextract"
)

var (
	extractText     string
	extractFile     string
	extractObject   string
	extractSchema   string
	extractProvider string
	extractModel    string
	extractBaseURL  string
	extractAPIKey   string
	extractOCR      bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract schema fields without a server",
	Long: `Run one extraction in-process using the local configuration.

Pass exactly one of --text, --file or --object. --schema takes a path to a
JSON or TOON file, or the definitions inline.

Examples:
  docparser extract --text "张三，30岁" --schema schema.json
  docparser extract --file invoice.pdf --schema schema.toon --provider claude
  docparser extract --object docs/2024/invoice.pdf --schema schema.json -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		schemaText, err := endpoints.ReadSchemaArg(extractSchema)
		if err != nil {
			return err
		}
		s, err := decode.ParseSchema(schemaText)
		if err != nil {
			return err
		}

		h, mgr, err := loadConfig()
		if err != nil {
			return err
		}
		cfg := mgr.Get()
		logger := stderrLogger(cfg.Log)

		// Local flags replace the configured custom endpoint outright, so the
		// configured key never follows a different base URL.
		if extractBaseURL != "" || extractAPIKey != "" {
			custom := cfg.Providers[string(providers.Custom)]
			if extractBaseURL != "" {
				custom.BaseURL = extractBaseURL
				custom.APIKey = ""
			}
			if extractAPIKey != "" {
				custom.APIKey = extractAPIKey
			}
			cfg.Providers[string(providers.Custom)] = custom
		}

		var src content.Source
		switch {
		case extractFile != "":
			data, err := os.ReadFile(extractFile)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", extractFile, err)
			}
			src = content.Source{Kind: content.SourceInline, Data: data, Filename: filepath.Base(extractFile)}
		case extractObject != "":
			src = content.Source{Kind: content.SourceStoredObject, Payload: extractObject}
		case extractText != "":
			src = content.Source{Kind: content.SourceInline, Payload: extractText}
		default:
			return fmt.Errorf("one of --text, --file or --object is required")
		}

		var fetcher content.Fetcher
		if src.Kind == content.SourceStoredObject {
			f, err := storage.New(cfg.StorageConfig(h, logger))
			if err != nil {
				return err
			}
			fetcher = f
		}

		svc, err := extract.NewService(extract.Config{
			Acquirer: content.NewAcquirer(content.AcquirerConfig{
				Fetcher: fetcher,
				MaxSize: cfg.Extract.MaxFileSize,
				Logger:  logger,
			}),
			Extractor: textextract.New(cfg.TextExtractConfig(logger)),
			Factory:   providers.NewFactory(cfg.FactoryConfig(logger)),
			OCR:       cfg.OCRProvider(logger),
			Logger:    logger,
		})
		if err != nil {
			return err
		}

		req := extract.Request{
			Source:   src,
			Schema:   s,
			Provider: extractProvider,
			Model:    extractModel,
			OCR:      extractOCR,
		}

		values, err := svc.Extract(ctx, req)
		if err != nil {
			return err
		}
		return api.Output(values)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractText, "text", "", "Inline text to extract from")
	extractCmd.Flags().StringVar(&extractFile, "file", "", "Local document or image")
	extractCmd.Flags().StringVar(&extractObject, "object", "", "Stored object locator (bucket/object or URL)")
	extractCmd.Flags().StringVar(&extractSchema, "schema", "", "Schema file path or inline JSON/TOON")
	extractCmd.Flags().StringVar(&extractProvider, "provider", "", "LLM provider (default: default_provider from config)")
	extractCmd.Flags().StringVar(&extractModel, "model", "", "Model name")
	extractCmd.Flags().StringVar(&extractBaseURL, "base-url", "", "Base URL for the custom provider")
	extractCmd.Flags().StringVar(&extractAPIKey, "api-key", "", "API key for the custom provider")
	extractCmd.Flags().BoolVar(&extractOCR, "ocr", false, "Send images through the OCR provider")
	extractCmd.MarkFlagsMutuallyExclusive("text", "file", "object")
	_ = extractCmd.MarkFlagRequired("schema")

	rootCmd.AddCommand(extractCmd)
}
