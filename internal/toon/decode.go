// Package toon reads and writes TOON, a compact indentation-based notation
// whose tabular arrays declare their length and columns up front:
//
//	values[2]{field,type,value}:
//	  name,text,张三
//	  age,int,30
//
// Decoded documents use the same shapes as encoding/json with an any target:
// map[string]any, []any, string, bool, int64, float64 and nil.
package toon

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultDelimiter separates values in rows and inline arrays.
const DefaultDelimiter = ','

type line struct {
	num    int
	indent int
	text   string
}

type parser struct {
	lines []line
	pos   int
}

// Decode parses a TOON document.
func Decode(input string) (any, error) {
	lines, err := splitLines(input)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("toon: empty document")
	}

	p := &parser{lines: lines}
	first := lines[0]

	if strings.HasPrefix(first.text, "[") {
		p.pos++
		h, err := parseHeader(first.text)
		if err != nil {
			return nil, lineErr(first, err)
		}
		v, err := p.parseArray(first, h)
		if err != nil {
			return nil, err
		}
		if p.pos < len(p.lines) {
			return nil, lineErr(p.lines[p.pos], fmt.Errorf("unexpected content after root array"))
		}
		return v, nil
	}

	if len(lines) == 1 && !hasKey(first.text) {
		return parsePrimitive(first.text)
	}

	obj, err := p.parseObject(first.indent)
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.lines) {
		return nil, lineErr(p.lines[p.pos], fmt.Errorf("unexpected indentation"))
	}
	return obj, nil
}

func splitLines(input string) ([]line, error) {
	raw := strings.Split(strings.ReplaceAll(input, "\r\n", "\n"), "\n")
	lines := make([]line, 0, len(raw))
	for i, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		indent := 0
		for indent < len(r) && r[indent] == ' ' {
			indent++
		}
		if indent < len(r) && r[indent] == '\t' {
			return nil, fmt.Errorf("toon: line %d: tab used for indentation", i+1)
		}
		lines = append(lines, line{num: i + 1, indent: indent, text: strings.TrimRight(r[indent:], " \t")})
	}
	return lines, nil
}

func lineErr(l line, err error) error {
	return fmt.Errorf("toon: line %d: %w", l.num, err)
}

func (p *parser) parseObject(indent int) (map[string]any, error) {
	obj := make(map[string]any)
	for p.pos < len(p.lines) {
		l := p.lines[p.pos]
		if l.indent < indent {
			break
		}
		if l.indent > indent {
			return nil, lineErr(l, fmt.Errorf("unexpected indentation"))
		}
		p.pos++
		key, val, err := p.parseEntry(l, l.text)
		if err != nil {
			return nil, err
		}
		obj[key] = val
	}
	return obj, nil
}

// parseEntry parses "key: value", "key:" with a nested block, or an array
// field "key[N]...:". text is the entry without indentation; it differs from
// l.text for the first field of a list item.
func (p *parser) parseEntry(l line, text string) (string, any, error) {
	key, rest, err := splitKey(text)
	if err != nil {
		return "", nil, lineErr(l, err)
	}

	if strings.HasPrefix(rest, "[") {
		h, err := parseHeader(rest)
		if err != nil {
			return "", nil, lineErr(l, err)
		}
		v, err := p.parseArray(l, h)
		return key, v, err
	}

	after := strings.TrimSpace(rest[1:])
	if after != "" {
		v, err := parsePrimitive(after)
		if err != nil {
			return "", nil, lineErr(l, err)
		}
		return key, v, nil
	}

	if p.pos < len(p.lines) && p.lines[p.pos].indent > l.indent {
		nested, err := p.parseObject(p.lines[p.pos].indent)
		return key, nested, err
	}
	return key, map[string]any{}, nil
}

type header struct {
	length int
	delim  rune
	fields []string
	inline string
}

var headerPattern = regexp.MustCompile(`^\[#?(\d+)([\t|]?)\](?:\{([^}]*)\})?:(.*)$`)

func parseHeader(text string) (header, error) {
	m := headerPattern.FindStringSubmatch(text)
	if m == nil {
		return header{}, fmt.Errorf("malformed array header %q", text)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return header{}, fmt.Errorf("invalid array length %q", m[1])
	}
	h := header{length: n, delim: DefaultDelimiter, inline: strings.TrimSpace(m[4])}
	if m[2] != "" {
		h.delim = rune(m[2][0])
	}
	if m[3] != "" {
		for _, f := range splitDelimited(m[3], h.delim) {
			name, err := unquoteKey(strings.TrimSpace(f))
			if err != nil {
				return header{}, err
			}
			h.fields = append(h.fields, name)
		}
	}
	return h, nil
}

func (p *parser) parseArray(l line, h header) ([]any, error) {
	switch {
	case len(h.fields) > 0:
		return p.parseTabular(l, h)
	case h.inline != "":
		return parseInlineArray(l, h)
	default:
		return p.parseListItems(l, h)
	}
}

func (p *parser) parseTabular(l line, h header) ([]any, error) {
	rows := make([]any, 0, h.length)
	for p.pos < len(p.lines) && p.lines[p.pos].indent > l.indent {
		rl := p.lines[p.pos]
		p.pos++
		cells := splitDelimited(rl.text, h.delim)
		if len(cells) != len(h.fields) {
			return nil, lineErr(rl, fmt.Errorf("row has %d values, header declares %d fields", len(cells), len(h.fields)))
		}
		row := make(map[string]any, len(h.fields))
		for i, cell := range cells {
			v, err := parsePrimitive(strings.TrimSpace(cell))
			if err != nil {
				return nil, lineErr(rl, err)
			}
			row[h.fields[i]] = v
		}
		rows = append(rows, row)
	}
	if len(rows) != h.length {
		return nil, lineErr(l, fmt.Errorf("array declares %d rows, found %d", h.length, len(rows)))
	}
	return rows, nil
}

func parseInlineArray(l line, h header) ([]any, error) {
	cells := splitDelimited(h.inline, h.delim)
	if len(cells) != h.length {
		return nil, lineErr(l, fmt.Errorf("array declares %d values, found %d", h.length, len(cells)))
	}
	out := make([]any, len(cells))
	for i, cell := range cells {
		v, err := parsePrimitive(strings.TrimSpace(cell))
		if err != nil {
			return nil, lineErr(l, err)
		}
		out[i] = v
	}
	return out, nil
}

func (p *parser) parseListItems(l line, h header) ([]any, error) {
	items := make([]any, 0, h.length)
	for p.pos < len(p.lines) && p.lines[p.pos].indent > l.indent {
		il := p.lines[p.pos]
		if il.text != "-" && !strings.HasPrefix(il.text, "- ") {
			return nil, lineErr(il, fmt.Errorf("expected list item"))
		}
		p.pos++
		body := strings.TrimSpace(strings.TrimPrefix(il.text, "-"))

		switch {
		case body == "":
			items = append(items, map[string]any{})
		case strings.HasPrefix(body, "["):
			ih, err := parseHeader(body)
			if err != nil {
				return nil, lineErr(il, err)
			}
			v, err := p.parseArray(il, ih)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		case hasKey(body):
			// The first field sits on the dash line; siblings follow two
			// columns further in.
			obj := make(map[string]any)
			key, val, err := p.parseEntry(line{num: il.num, indent: il.indent + 2, text: body}, body)
			if err != nil {
				return nil, err
			}
			obj[key] = val
			if p.pos < len(p.lines) && p.lines[p.pos].indent == il.indent+2 {
				rest, err := p.parseObject(il.indent + 2)
				if err != nil {
					return nil, err
				}
				for k, v := range rest {
					obj[k] = v
				}
			}
			items = append(items, obj)
		default:
			v, err := parsePrimitive(body)
			if err != nil {
				return nil, lineErr(il, err)
			}
			items = append(items, v)
		}
	}
	if len(items) != h.length {
		return nil, lineErr(l, fmt.Errorf("array declares %d items, found %d", h.length, len(items)))
	}
	return items, nil
}

// splitKey separates a key from the remainder, which starts with '[' or ':'.
func splitKey(text string) (string, string, error) {
	if strings.HasPrefix(text, `"`) {
		end := closingQuote(text)
		if end < 0 {
			return "", "", fmt.Errorf("unterminated quoted key")
		}
		key, err := unquoteKey(text[:end+1])
		if err != nil {
			return "", "", err
		}
		rest := text[end+1:]
		if !strings.HasPrefix(rest, ":") && !strings.HasPrefix(rest, "[") {
			return "", "", fmt.Errorf("expected ':' after key %q", key)
		}
		return key, rest, nil
	}

	idx := strings.IndexAny(text, ":[")
	if idx <= 0 {
		return "", "", fmt.Errorf("missing key in %q", text)
	}
	return strings.TrimSpace(text[:idx]), text[idx:], nil
}

// hasKey reports whether text looks like "key: ..." or "key[N]...".
func hasKey(text string) bool {
	if strings.HasPrefix(text, `"`) {
		end := closingQuote(text)
		return end > 0 && end+1 < len(text) && (text[end+1] == ':' || text[end+1] == '[')
	}
	idx := strings.IndexAny(text, ":[")
	if idx <= 0 {
		return false
	}
	if text[idx] == '[' {
		return headerPattern.MatchString(text[idx:])
	}
	return true
}

func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

func unquoteKey(s string) (string, error) {
	if !strings.HasPrefix(s, `"`) {
		return s, nil
	}
	var out string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return "", fmt.Errorf("invalid quoted key %s: %w", s, err)
	}
	return out, nil
}

// splitDelimited splits on delim outside double quotes.
func splitDelimited(s string, delim rune) []string {
	var parts []string
	var cur strings.Builder
	inQuote := false
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && inQuote:
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case r == delim && !inQuote:
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	return append(parts, cur.String())
}

var numberPattern = regexp.MustCompile(`^-?(0|[1-9]\d*)(\.\d+)?([eE][+-]?\d+)?$`)

func parsePrimitive(token string) (any, error) {
	switch token {
	case "":
		return "", nil
	case "null":
		return nil, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	if strings.HasPrefix(token, `"`) {
		if len(token) < 2 || !strings.HasSuffix(token, `"`) || closingQuote(token) != len(token)-1 {
			return nil, fmt.Errorf("unterminated string %s", token)
		}
		var s string
		if err := json.Unmarshal([]byte(token), &s); err != nil {
			return nil, fmt.Errorf("invalid string %s: %w", token, err)
		}
		return s, nil
	}

	if numberPattern.MatchString(token) {
		if !strings.ContainsAny(token, ".eE") {
			n, err := strconv.ParseInt(token, 10, 64)
			if err != nil {
				// Integers beyond int64 keep every digit.
				return json.Number(token), nil
			}
			return n, nil
		}
		if f, err := strconv.ParseFloat(token, 64); err == nil {
			return f, nil
		}
	}
	return token, nil
}
