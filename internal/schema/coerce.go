package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Result is the outcome of Coerce. It is always usable: when conversion
// fails, Value holds the stringified input and Fallback is set.
type Result struct {
	Value    any
	Fallback bool
	Err      error
}

var (
	truthyStrings = map[string]bool{"true": true, "yes": true, "1": true}
	falsyStrings  = map[string]bool{"false": true, "no": true, "0": true}
)

// Coerce converts a decoded value to the declared type. A nil input stays
// nil for every type. Unknown types are treated as text.
func Coerce(raw any, declared string) Result {
	if raw == nil {
		return Result{}
	}

	switch FieldType(declared) {
	case TypeInt:
		n, err := toInt(raw)
		if err != nil {
			return fallback(raw, err)
		}
		return Result{Value: n}
	case TypeFloat:
		f, err := toFloat(raw)
		if err != nil {
			return fallback(raw, err)
		}
		return Result{Value: f}
	case TypeBoolean:
		return Result{Value: toBool(raw)}
	default:
		return Result{Value: Stringify(raw)}
	}
}

func fallback(raw any, err error) Result {
	return Result{Value: Stringify(raw), Fallback: true, Err: err}
}

func toInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("cannot convert %v to int", v)
		}
		if v >= 0x1p63 || v < -0x1p63 {
			return 0, fmt.Errorf("%v overflows int64", v)
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err == nil {
			return n, nil
		}
		if !strings.ContainsAny(v.String(), ".eE") {
			return 0, err
		}
		f, err := v.Float64()
		if err != nil {
			return 0, err
		}
		return toInt(f)
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", raw)
	}
}

func toFloat(raw any) (float64, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case bool:
		if v {
			f = 1
		}
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		return 0, fmt.Errorf("cannot convert %T to float", raw)
	}
	// Non-finite values cannot be encoded as JSON.
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite float %v", f)
	}
	return f, nil
}

// toBool never fails. Strings outside the known synonyms fall back to
// truthiness, so any other non-empty string is true.
func toBool(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		lower := strings.ToLower(v)
		if truthyStrings[lower] {
			return true
		}
		if falsyStrings[lower] {
			return false
		}
		return v != ""
	case json.Number:
		f, err := v.Float64()
		return err != nil || f != 0
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	}
	return true
}

// Stringify renders a decoded value as text. Numbers keep their literal
// form; composite values are rendered as JSON.
func Stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case fmt.Stringer:
		return v.String()
	}
	if b, err := json.Marshal(raw); err == nil {
		return string(b)
	}
	return fmt.Sprint(raw)
}
