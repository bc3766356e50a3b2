package decode

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/schema"
	"github.com/2018wzh/llm-doc-parser/internal/toon"
)

// Format is the output notation an adapter instructs the model to use.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOON Format = "toon"
)

// strategy recovers the row list from a raw completion.
type strategy struct {
	name string
	rows func(raw string) ([]any, error)
}

var (
	jsonStrategies = []strategy{
		{name: "json", rows: jsonRows},
		{name: "json-fenced", rows: func(raw string) ([]any, error) { return jsonRows(stripCodeFences(raw)) }},
		{name: "json-embedded", rows: embeddedJSONRows},
	}
	toonStrategies = []strategy{
		{name: "toon", rows: toonRows},
	}
)

// strategiesFor returns the instructed format's strategies followed by the
// other format's, so a model that answers in the wrong notation still decodes.
func strategiesFor(format Format) []strategy {
	if format == FormatTOON {
		return append(append([]strategy{}, toonStrategies...), jsonStrategies...)
	}
	return append(append([]strategy{}, jsonStrategies...), toonStrategies...)
}

// Decoder converts model completions into schema values.
type Decoder struct {
	Logger *slog.Logger
}

// NewDecoder returns a Decoder logging to logger, or slog.Default when nil.
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{Logger: logger}
}

// Values decodes raw with the instructed format. Rows for unknown keys or
// without a field key are dropped. An error is returned only when no row
// list can be recovered at all.
func (d *Decoder) Values(raw string, format Format, s schema.Schema) ([]schema.Value, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		rows    []any
		lastErr error
		used    string
	)
	for _, st := range strategiesFor(format) {
		r, err := st.rows(raw)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", st.name, err)
			continue
		}
		rows, used, lastErr = r, st.name, nil
		break
	}
	if lastErr != nil {
		logger.Error("failed to decode model output", "format", format, "error", lastErr)
		return nil, apperr.LLM(fmt.Sprintf("cannot parse model response: %v", lastErr), lastErr)
	}

	fields := s.Index()
	values := make([]schema.Value, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			continue
		}
		key, ok := obj["field"].(string)
		if !ok {
			logger.Warn("dropping row without field key", "row", row)
			continue
		}
		f, ok := fields[key]
		if !ok {
			logger.Warn("dropping field not in schema", "field", key)
			continue
		}

		reported := string(schema.TypeText)
		if t, ok := obj["type"]; ok && t != nil {
			reported = schema.Stringify(t)
		}

		res := schema.Coerce(obj["value"], string(f.Type))
		if res.Fallback {
			logger.Warn("value kept as text", "field", key, "type", f.Type, "error", res.Err)
		}
		values = append(values, schema.Value{Key: key, Type: reported, Value: res.Value})
	}

	logger.Debug("decoded model output", "strategy", used, "rows", len(rows), "values", len(values))
	return values, nil
}

func jsonRows(raw string) ([]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty response")
	}
	doc, err := unmarshalNumber([]byte(raw))
	if err != nil {
		return nil, err
	}
	switch v := doc.(type) {
	case []any:
		return v, nil
	default:
		// A lone object or scalar is one row; scalars are dropped later.
		return []any{v}, nil
	}
}

// embeddedJSONRows parses the JSON span inside surrounding prose. The span
// must hold at least one object so bracketed text such as a TOON header is
// not mistaken for an answer.
func embeddedJSONRows(raw string) ([]any, error) {
	rows, err := jsonRows(extractJSONCandidate(raw))
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if _, ok := row.(map[string]any); ok {
			return rows, nil
		}
	}
	return nil, fmt.Errorf("no JSON object in response")
}

func toonRows(raw string) ([]any, error) {
	doc, err := toon.Decode(toon.ExtractBlock(raw))
	if err != nil {
		return nil, err
	}
	switch v := doc.(type) {
	case []any:
		return v, nil
	case map[string]any:
		if list, ok := v["values"].([]any); ok {
			return list, nil
		}
		if list, ok := singleKeyList(v); ok {
			return list, nil
		}
	}
	return nil, fmt.Errorf("no row list in TOON document")
}

// stripCodeFences drops a leading ``` line (with any language tag) and a
// trailing ``` line. It returns "" when raw is not fenced.
func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		if i := strings.Index(trimmed, "```"); i >= 0 {
			trimmed = trimmed[i:]
		} else {
			return ""
		}
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	for i, l := range lines {
		if strings.TrimSpace(l) == "```" {
			lines = lines[:i]
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractJSONCandidate returns the span from the first '[' or '{' to the
// last matching closer.
func extractJSONCandidate(raw string) string {
	trimmed := strings.TrimSpace(raw)
	objectStart := strings.Index(trimmed, "{")
	arrayStart := strings.Index(trimmed, "[")

	start, closeChar := -1, ""
	switch {
	case arrayStart >= 0 && (objectStart < 0 || arrayStart < objectStart):
		start, closeChar = arrayStart, "]"
	case objectStart >= 0:
		start, closeChar = objectStart, "}"
	default:
		return ""
	}

	end := strings.LastIndex(trimmed, closeChar)
	if end < start {
		return ""
	}
	return trimmed[start : end+1]
}
