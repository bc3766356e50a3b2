package providers

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/2018wzh/llm-doc-parser/internal/decode"
	"github.com/2018wzh/llm-doc-parser/internal/schema"
	"github.com/2018wzh/llm-doc-parser/internal/toon"
)

//go:embed system_json.tmpl
var systemJSONPrompt string

//go:embed system_toon.tmpl
var systemTOONPrompt string

//go:embed user_json.tmpl
var userJSONTmpl string

//go:embed user_toon.tmpl
var userTOONTmpl string

var (
	userJSONTemplate = template.Must(template.New("user_json").Parse(userJSONTmpl))
	userTOONTemplate = template.Must(template.New("user_toon").Parse(userTOONTmpl))
)

type promptData struct {
	Schema   string
	Content  string
	Example  string
	HasImage bool
}

// buildPrompt renders the system and user prompts instructing format.
func buildPrompt(format decode.Format, content string, image *Image, s schema.Schema) (Prompt, error) {
	if len(s) == 0 {
		return Prompt{}, fmt.Errorf("schema has no fields")
	}

	data := promptData{
		Content:  strings.TrimSpace(content),
		HasImage: image != nil && len(image.Data) > 0,
	}

	system := systemJSONPrompt
	tmpl := userJSONTemplate
	switch format {
	case decode.FormatTOON:
		system = systemTOONPrompt
		tmpl = userTOONTemplate
		data.Schema = decode.EncodeSchema(s)
		data.Example = toonExample(s)
	default:
		schemaJSON, err := decode.EncodeSchemaJSON(s)
		if err != nil {
			return Prompt{}, fmt.Errorf("failed to encode schema: %w", err)
		}
		example, err := jsonExample(s)
		if err != nil {
			return Prompt{}, fmt.Errorf("failed to encode output example: %w", err)
		}
		data.Schema = schemaJSON
		data.Example = example
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Prompt{}, fmt.Errorf("failed to render prompt: %w", err)
	}

	return Prompt{
		System: strings.TrimSpace(system),
		User:   strings.TrimSpace(buf.String()),
	}, nil
}

// exampleValue is the placeholder shown for a field type in the output
// example.
func exampleValue(t schema.FieldType) any {
	switch t {
	case schema.TypeText:
		return "示例文本值"
	case schema.TypeInt:
		return 123
	case schema.TypeFloat:
		return 123.45
	case schema.TypeBoolean:
		return true
	case schema.TypeDate:
		return "2024-01-01"
	case schema.TypeDateTime:
		return "2024-01-01 12:00:00"
	default:
		return "示例值"
	}
}

func jsonExample(s schema.Schema) (string, error) {
	rows := make([]schema.Value, len(s))
	for i, f := range s {
		rows[i] = schema.Value{Key: f.Key, Type: string(f.Type), Value: exampleValue(f.Type)}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func toonExample(s schema.Schema) string {
	table := toon.Table{
		Name:   "values",
		Fields: []string{"field", "type", "value"},
		Rows:   make([][]any, len(s)),
	}
	for i, f := range s {
		table.Rows[i] = []any{f.Key, string(f.Type), exampleValue(f.Type)}
	}
	return table.Encode()
}
