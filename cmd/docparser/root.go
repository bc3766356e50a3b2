package main

import (
	"github.com/spf13/cobra"

	"github.com/2018wzh/llm-doc-parser/internal/api"
	"github.com/2018wzh/llm-doc-parser/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "docparser",
	Short: "Extract schema-typed fields from documents with LLMs",
	Long: `docparser extracts structured fields from documents, plain text and
images by prompting a large language model with a caller-supplied schema.

It supports:
  - OpenAI, Azure OpenAI, Claude, Gemini and OpenAI-compatible providers
  - PDF, Word, PowerPoint, Excel, HTML, CSV and plain text documents
  - Images via vision models or an OCR fallback
  - Schemas and model output in JSON or TOON`,
	Version:      version.GitRelease,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.docparser/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "docparser home directory (default: ~/.docparser)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml, json or toon",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
