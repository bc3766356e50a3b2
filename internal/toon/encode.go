package toon

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const indentUnit = "  "

// Table is a tabular array with a fixed column order.
type Table struct {
	Name   string
	Fields []string
	Rows   [][]any
}

// Encode renders the table as a "name[N]{fields}:" header followed by one
// indented row per entry.
func (t Table) Encode() string {
	var b strings.Builder
	b.WriteString(encodeKey(t.Name))
	fmt.Fprintf(&b, "[%d]{", len(t.Rows))
	for i, f := range t.Fields {
		if i > 0 {
			b.WriteByte(DefaultDelimiter)
		}
		b.WriteString(encodeKey(f))
	}
	b.WriteString("}:")
	for _, row := range t.Rows {
		b.WriteByte('\n')
		b.WriteString(indentUnit)
		for i, cell := range row {
			if i > 0 {
				b.WriteByte(DefaultDelimiter)
			}
			b.WriteString(encodePrimitive(cell))
		}
	}
	return b.String()
}

// Encode renders a value built from maps, slices and primitives. Map keys
// are written in sorted order; use Table when column order matters.
func Encode(v any) (string, error) {
	var b strings.Builder
	switch val := v.(type) {
	case map[string]any:
		if err := encodeObject(&b, val, 0); err != nil {
			return "", err
		}
	case []any:
		if err := encodeArray(&b, "", val, 0); err != nil {
			return "", err
		}
	default:
		if !isPrimitive(v) {
			return "", fmt.Errorf("toon: unsupported type %T", v)
		}
		b.WriteString(encodePrimitive(v))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func encodeObject(b *strings.Builder, obj map[string]any, depth int) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := encodeField(b, k, obj[k], depth); err != nil {
			return err
		}
	}
	return nil
}

func encodeField(b *strings.Builder, key string, v any, depth int) error {
	prefix := strings.Repeat(indentUnit, depth)
	switch val := v.(type) {
	case map[string]any:
		b.WriteString(prefix + encodeKey(key) + ":\n")
		return encodeObject(b, val, depth+1)
	case []any:
		b.WriteString(prefix)
		return encodeArray(b, encodeKey(key), val, depth)
	default:
		if !isPrimitive(v) {
			return fmt.Errorf("toon: unsupported type %T for key %q", v, key)
		}
		b.WriteString(prefix + encodeKey(key) + ": " + encodePrimitive(v) + "\n")
		return nil
	}
}

// encodeArray writes the header (the caller has written any indentation)
// and the array body.
func encodeArray(b *strings.Builder, key string, arr []any, depth int) error {
	if fields, ok := tabularFields(arr); ok {
		fmt.Fprintf(b, "%s[%d]{%s}:\n", key, len(arr), strings.Join(mapSlice(fields, encodeKey), ","))
		rowPrefix := strings.Repeat(indentUnit, depth+1)
		for _, item := range arr {
			obj := item.(map[string]any)
			cells := make([]string, len(fields))
			for i, f := range fields {
				cells[i] = encodePrimitive(obj[f])
			}
			b.WriteString(rowPrefix + strings.Join(cells, ",") + "\n")
		}
		return nil
	}

	if allPrimitive(arr) {
		cells := mapSlice(arr, encodePrimitive)
		if len(cells) == 0 {
			fmt.Fprintf(b, "%s[0]:\n", key)
			return nil
		}
		fmt.Fprintf(b, "%s[%d]: %s\n", key, len(arr), strings.Join(cells, ","))
		return nil
	}

	fmt.Fprintf(b, "%s[%d]:\n", key, len(arr))
	itemPrefix := strings.Repeat(indentUnit, depth+1)
	for _, item := range arr {
		switch val := item.(type) {
		case map[string]any:
			var inner strings.Builder
			if err := encodeObject(&inner, val, depth+2); err != nil {
				return err
			}
			// The first field moves onto the dash line.
			body := strings.TrimPrefix(inner.String(), strings.Repeat(indentUnit, depth+2))
			b.WriteString(itemPrefix + "- " + body)
		case []any:
			b.WriteString(itemPrefix + "- ")
			if err := encodeArray(b, "", val, depth+1); err != nil {
				return err
			}
		default:
			if !isPrimitive(item) {
				return fmt.Errorf("toon: unsupported type %T in array", item)
			}
			b.WriteString(itemPrefix + "- " + encodePrimitive(item) + "\n")
		}
	}
	return nil
}

// tabularFields returns the shared sorted keys when every element is a
// non-empty object with the same keys and only primitive values.
func tabularFields(arr []any) ([]string, bool) {
	if len(arr) == 0 {
		return nil, false
	}
	var fields []string
	for i, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok || len(obj) == 0 {
			return nil, false
		}
		keys := make([]string, 0, len(obj))
		for k, v := range obj {
			if !isPrimitive(v) {
				return nil, false
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if i == 0 {
			fields = keys
			continue
		}
		if strings.Join(keys, "\x00") != strings.Join(fields, "\x00") {
			return nil, false
		}
	}
	return fields, true
}

func allPrimitive(arr []any) bool {
	for _, v := range arr {
		if !isPrimitive(v) {
			return false
		}
	}
	return true
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case nil, string, bool, int, int64, float64, json.Number:
		return true
	}
	return false
}

func mapSlice[T any](in []T, fn func(T) string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

func encodeKey(k string) string {
	if k == "" || keyPattern.MatchString(k) {
		return k
	}
	return quote(k)
}

func encodePrimitive(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return "null"
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case string:
		if needsQuote(val) {
			return quote(val)
		}
		return val
	}
	return quote(fmt.Sprint(v))
}

// needsQuote reports whether s would decode as something other than itself
// when written bare.
func needsQuote(s string) bool {
	if s == "" || s != strings.TrimSpace(s) {
		return true
	}
	switch s {
	case "true", "false", "null":
		return true
	}
	if numberPattern.MatchString(s) || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "[") {
		return true
	}
	return strings.ContainsAny(s, ",:\"\\\n\r\t|{}")
}

func quote(s string) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimRight(b.String(), "\n")
}
