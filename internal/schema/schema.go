// Package schema holds the field definitions callers request and the typed
// values the pipeline returns for them.
package schema

import (
	"encoding/json"
	"fmt"
)

// FieldType is the primitive type a field is coerced to.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeInt      FieldType = "int"
	TypeFloat    FieldType = "float"
	TypeBoolean  FieldType = "boolean"
	TypeDate     FieldType = "date"
	TypeDateTime FieldType = "datetime"
)

// FieldTypes lists every supported field type.
var FieldTypes = []FieldType{TypeText, TypeInt, TypeFloat, TypeBoolean, TypeDate, TypeDateTime}

// Valid reports whether t is a supported field type.
func (t FieldType) Valid() bool {
	for _, ft := range FieldTypes {
		if t == ft {
			return true
		}
	}
	return false
}

// Field is one requested output field.
// Required is advisory: nothing in the pipeline enforces it.
type Field struct {
	Name     string    `json:"name" yaml:"name"`
	Key      string    `json:"field" yaml:"field" validate:"required"`
	Type     FieldType `json:"type" yaml:"type" validate:"required,oneof=text int float boolean date datetime"`
	Required bool      `json:"required" yaml:"required"`
}

// UnmarshalJSON defaults Required to true when the key is absent.
func (f *Field) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name     string    `json:"name"`
		Key      string    `json:"field"`
		Type     FieldType `json:"type"`
		Required *bool     `json:"required"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Name = raw.Name
	f.Key = raw.Key
	f.Type = raw.Type
	f.Required = raw.Required == nil || *raw.Required
	return nil
}

// Schema is an ordered list of fields.
type Schema []Field

// Index returns the fields keyed by Key. Later duplicates win.
func (s Schema) Index() map[string]Field {
	idx := make(map[string]Field, len(s))
	for _, f := range s {
		idx[f.Key] = f
	}
	return idx
}

// Keys returns the field keys in order.
func (s Schema) Keys() []string {
	keys := make([]string, len(s))
	for i, f := range s {
		keys[i] = f.Key
	}
	return keys
}

// Normalize fills in the text type for fields that omit one.
func (s Schema) Normalize() Schema {
	out := make(Schema, len(s))
	for i, f := range s {
		if f.Type == "" {
			f.Type = TypeText
		}
		out[i] = f
	}
	return out
}

// Validate checks that every field has a key and a supported type.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("schema has no fields")
	}
	for i, f := range s {
		if f.Key == "" {
			return fmt.Errorf("field %d: missing field key", i)
		}
		if !f.Type.Valid() {
			return fmt.Errorf("field %q: unsupported type %q", f.Key, f.Type)
		}
	}
	return nil
}

// Value is one extracted output field. Type echoes what the model reported.
type Value struct {
	Key   string `json:"field" yaml:"field"`
	Type  string `json:"type" yaml:"type"`
	Value any    `json:"value" yaml:"value"`
}
