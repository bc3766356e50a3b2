// Package decode turns caller schema text and raw model completions into
// typed structures.
package decode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/schema"
	"github.com/2018wzh/llm-doc-parser/internal/toon"
)

// fieldRowSchema describes one schema row as callers send it.
const fieldRowSchema = `{
  "type": "object",
  "required": ["field"],
  "properties": {
    "name": {"type": ["string", "null"]},
    "field": {"type": "string", "minLength": 1},
    "type": {"enum": ["text", "int", "float", "boolean", "date", "datetime"]},
    "required": {"type": ["boolean", "null"]}
  }
}`

// schemaListKeys are checked in order when the decoded document is an object.
var schemaListKeys = []string{"schema", "fields", "items", "values"}

var (
	rowSchemaOnce sync.Once
	rowSchema     *jsonschema.Schema
	rowSchemaErr  error
)

func compiledRowSchema() (*jsonschema.Schema, error) {
	rowSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("field.json", strings.NewReader(fieldRowSchema)); err != nil {
			rowSchemaErr = fmt.Errorf("failed to load field schema: %w", err)
			return
		}
		rowSchema, rowSchemaErr = compiler.Compile("field.json")
	})
	return rowSchema, rowSchemaErr
}

// ParseSchema decodes caller-supplied field definitions. JSON is tried
// first, then TOON. Failures are validation errors.
func ParseSchema(text string) (schema.Schema, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("schema is empty")
	}

	rows, jsonErr := schemaRowsFromJSON(text)
	if jsonErr == nil {
		return SchemaFromRows(rows)
	}

	rows, toonErr := schemaRowsFromTOON(text)
	if toonErr == nil {
		return SchemaFromRows(rows)
	}

	return nil, apperr.Validationf("schema format error: JSON: %v; TOON: %v", jsonErr, toonErr)
}

func schemaRowsFromJSON(text string) ([]any, error) {
	doc, err := unmarshalNumber([]byte(text))
	if err != nil {
		return nil, err
	}
	rows, ok := schemaRowList(doc)
	if !ok {
		return nil, fmt.Errorf("no field list in JSON document")
	}
	return rows, nil
}

func schemaRowsFromTOON(text string) ([]any, error) {
	doc, err := toon.Decode(toon.ExtractBlock(text))
	if err != nil {
		return nil, err
	}
	rows, ok := schemaRowList(doc)
	if !ok {
		return nil, fmt.Errorf("no field list in TOON document")
	}
	return rows, nil
}

func schemaRowList(doc any) ([]any, bool) {
	switch v := doc.(type) {
	case []any:
		return v, true
	case map[string]any:
		for _, key := range schemaListKeys {
			if list, ok := v[key].([]any); ok {
				return list, true
			}
		}
		return singleKeyList(v)
	}
	return nil, false
}

func singleKeyList(m map[string]any) ([]any, bool) {
	if len(m) != 1 {
		return nil, false
	}
	for _, v := range m {
		list, ok := v.([]any)
		return list, ok
	}
	return nil, false
}

// SchemaFromRows validates decoded rows and converts them to fields,
// preserving order.
func SchemaFromRows(rows []any) (schema.Schema, error) {
	if len(rows) == 0 {
		return nil, apperr.Validation("schema has no fields")
	}
	validator, err := compiledRowSchema()
	if err != nil {
		return nil, apperr.Internal("field schema unavailable", err)
	}

	fields := make(schema.Schema, 0, len(rows))
	for i, row := range rows {
		// Round-trip through JSON so TOON integers and json.Number values
		// reach the validator as plain JSON numbers.
		raw, err := json.Marshal(row)
		if err != nil {
			return nil, apperr.Validationf("field %d: %v", i, err)
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, apperr.Validationf("field %d: %v", i, err)
		}
		if err := validator.Validate(doc); err != nil {
			return nil, apperr.Validationf("field %d: %v", i, err)
		}

		var f schema.Field
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, apperr.Validationf("field %d: %v", i, err)
		}
		if f.Type == "" {
			f.Type = schema.TypeText
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// EncodeSchema renders fields as a TOON table with the header
// values[N]{name,field,type,required}:.
func EncodeSchema(s schema.Schema) string {
	table := toon.Table{
		Name:   "values",
		Fields: []string{"name", "field", "type", "required"},
		Rows:   make([][]any, len(s)),
	}
	for i, f := range s {
		table.Rows[i] = []any{f.Name, f.Key, string(f.Type), f.Required}
	}
	return table.Encode()
}

// EncodeSchemaJSON renders fields as an indented JSON array with non-ASCII
// characters kept as-is.
func EncodeSchemaJSON(s schema.Schema) (string, error) {
	if s == nil {
		s = schema.Schema{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func unmarshalNumber(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return doc, nil
}
