package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2018wzh/llm-doc-parser/internal/decode"
	"github.com/2018wzh/llm-doc-parser/internal/server/endpoints"
)

var schemaTo string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema utilities",
}

var schemaConvertCmd = &cobra.Command{
	Use:   "convert <schema>",
	Short: "Convert a schema between JSON and TOON",
	Long: `Parse a schema (file path or inline) and print it in the other format.

Examples:
  docparser schema convert schema.json --to toon
  docparser schema convert schema.toon --to json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := endpoints.ReadSchemaArg(args[0])
		if err != nil {
			return err
		}
		s, err := decode.ParseSchema(text)
		if err != nil {
			return err
		}

		var out string
		switch strings.ToLower(schemaTo) {
		case "toon":
			out = decode.EncodeSchema(s)
		case "json":
			out, err = decode.EncodeSchemaJSON(s)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported format %q, use json or toon", schemaTo)
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(out, "\n"))
		return nil
	},
}

func init() {
	schemaConvertCmd.Flags().StringVar(&schemaTo, "to", "toon", "Target format: json or toon")

	schemaCmd.AddCommand(schemaConvertCmd)
	rootCmd.AddCommand(schemaCmd)
}
