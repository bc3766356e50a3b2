package toon

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDecode_Tabular(t *testing.T) {
	input := "values[2]{field,type,value}:\n  name,text,张三\n  age,int,30"

	got, err := Decode(input)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	want := map[string]any{
		"values": []any{
			map[string]any{"field": "name", "type": "text", "value": "张三"},
			map[string]any{"field": "age", "type": "int", "value": int64(30)},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decode() = %#v, want %#v", got, want)
	}
}

func TestDecode_RootArray(t *testing.T) {
	got, err := Decode("[2]{a,b}:\n  1,x\n  2,\"y, z\"")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	rows, ok := got.([]any)
	if !ok || len(rows) != 2 {
		t.Fatalf("Decode() = %#v, want two rows", got)
	}
	second := rows[1].(map[string]any)
	if second["b"] != "y, z" {
		t.Errorf("quoted cell = %#v, want %q", second["b"], "y, z")
	}
}

func TestDecode_Primitives(t *testing.T) {
	tests := []struct {
		token string
		want  any
	}{
		{"true", true},
		{"false", false},
		{"null", nil},
		{"42", int64(42)},
		{"62220212345678901234", json.Number("62220212345678901234")},
		{"-98765432109876543210", json.Number("-98765432109876543210")},
		{"-1.5", -1.5},
		{"007", "007"},
		{`"42"`, "42"},
		{"2024-01-01", "2024-01-01"},
		{"hello world", "hello world"},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := Decode(tt.token)
			if err != nil {
				t.Fatalf("Decode(%q) error = %v", tt.token, err)
			}
			if got != tt.want {
				t.Errorf("Decode(%q) = %#v, want %#v", tt.token, got, tt.want)
			}
		})
	}
}

func TestDecode_NestedAndLists(t *testing.T) {
	input := strings.Join([]string{
		"meta:",
		"  source: invoice",
		"  pages: 2",
		"tags[3]: a,b,c",
		"items[2]:",
		"  - name: first",
		"    qty: 1",
		"  - plain",
	}, "\n")

	got, err := Decode(input)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	obj := got.(map[string]any)

	meta := obj["meta"].(map[string]any)
	if meta["source"] != "invoice" || meta["pages"] != int64(2) {
		t.Errorf("meta = %#v", meta)
	}
	if !reflect.DeepEqual(obj["tags"], []any{"a", "b", "c"}) {
		t.Errorf("tags = %#v", obj["tags"])
	}
	items := obj["items"].([]any)
	if !reflect.DeepEqual(items[0], map[string]any{"name": "first", "qty": int64(1)}) {
		t.Errorf("items[0] = %#v", items[0])
	}
	if items[1] != "plain" {
		t.Errorf("items[1] = %#v", items[1])
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", "   \n  "},
		{"row count mismatch", "values[3]{a,b}:\n  1,2\n  3,4"},
		{"row width mismatch", "values[1]{a,b}:\n  1,2,3"},
		{"inline count mismatch", "tags[2]: a"},
		{"bad indentation", "a: 1\n    b: 2"},
		{"unterminated string", `name: "abc`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.input); err == nil {
				t.Errorf("Decode(%q) expected error", tt.input)
			}
		})
	}
}

func TestTable_RoundTrip(t *testing.T) {
	table := Table{
		Name:   "values",
		Fields: []string{"name", "field", "type", "required"},
		Rows: [][]any{
			{"姓名", "name", "text", true},
			{"年龄", "age", "int", false},
			{"备注, 其他", "note", "text", true},
		},
	}

	encoded := table.Encode()
	if !strings.HasPrefix(encoded, "values[3]{name,field,type,required}:\n  姓名,name,text,true") {
		t.Errorf("Encode() = %q", encoded)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	rows := decoded.(map[string]any)["values"].([]any)
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	for i, row := range rows {
		r := row.(map[string]any)
		for j, f := range table.Fields {
			if r[f] != table.Rows[i][j] {
				t.Errorf("row %d %s = %#v, want %#v", i, f, r[f], table.Rows[i][j])
			}
		}
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	in := map[string]any{
		"count": int64(2),
		"label": "true",
		"empty": "",
		"nested": map[string]any{
			"ok": true,
		},
		"rows": []any{
			map[string]any{"k": "a", "v": int64(1)},
			map[string]any{"k": "b", "v": nil},
		},
		"mixed": []any{
			map[string]any{"deep": []any{"x", "y"}},
			"scalar",
		},
	}

	encoded, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode(%q) error = %v", encoded, err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip mismatch:\nencoded:\n%s\ngot:  %#v\nwant: %#v", encoded, out, in)
	}
}

func TestExtractBlock(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "toon fence",
			text: "Here you go:\n```toon\nvalues[0]{a}:\n```\ntrailing",
			want: "values[0]{a}:",
		},
		{
			name: "toon fence wins over earlier bare fence",
			text: "```\nfirst\n```\n```TOON\nsecond\n```",
			want: "second",
		},
		{
			name: "bare fence",
			text: "```\nvalues[1]{a}:\n  1\n```",
			want: "values[1]{a}:\n  1",
		},
		{
			name: "no fence",
			text: "  values[0]{a}:  \n",
			want: "values[0]{a}:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractBlock(tt.text); got != tt.want {
				t.Errorf("ExtractBlock() = %q, want %q", got, tt.want)
			}
		})
	}
}
