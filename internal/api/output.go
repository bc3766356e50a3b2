package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/2018wzh/llm-doc-parser/internal/toon"
)

// OutputFormat defines the output format for CLI commands.
type OutputFormat string

const (
	OutputFormatYAML OutputFormat = "yaml"
	OutputFormatJSON OutputFormat = "json"
	OutputFormatTOON OutputFormat = "toon"
)

// DefaultOutput is the default output format.
var DefaultOutput OutputFormat = OutputFormatYAML

// globalOutputFormat is set by the root command's --output flag.
var globalOutputFormat = DefaultOutput

// SetOutputFormat sets the global output format. Unknown names fall back to
// DefaultOutput.
func SetOutputFormat(format string) {
	switch OutputFormat(strings.ToLower(format)) {
	case OutputFormatJSON:
		globalOutputFormat = OutputFormatJSON
	case OutputFormatYAML:
		globalOutputFormat = OutputFormatYAML
	case OutputFormatTOON:
		globalOutputFormat = OutputFormatTOON
	default:
		globalOutputFormat = DefaultOutput
	}
}

// GetOutputFormat returns the current global output format.
func GetOutputFormat() OutputFormat {
	return globalOutputFormat
}

// Output writes data to stdout in the configured format.
func Output(data any) error {
	return OutputTo(os.Stdout, globalOutputFormat, data)
}

// OutputToFile writes data to path. A .json, .yaml/.yml or .toon extension
// picks the format; anything else uses the configured one.
func OutputToFile(data any, path string) error {
	format := globalOutputFormat
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		format = OutputFormatJSON
	case ".yaml", ".yml":
		format = OutputFormatYAML
	case ".toon":
		format = OutputFormatTOON
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := OutputTo(f, format, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// OutputTo writes data to the given writer in the specified format.
func OutputTo(w io.Writer, format OutputFormat, data any) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(data)
	case OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	case OutputFormatTOON:
		return writeTOON(w, data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// writeTOON normalizes data through JSON so struct tags apply, then renders
// the generic value.
func writeTOON(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	out, err := toon.Encode(generic)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out+"\n")
	return err
}
