package textextract

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// plainText returns UTF-8 text. BOM-marked UTF-16 is transcoded; other
// invalid UTF-8 is decoded with the fallback charset.
func plainText(data []byte, fallback string) (string, error) {
	if bytes.HasPrefix(data, bomUTF16LE) || bytes.HasPrefix(data, bomUTF16BE) {
		dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
		out, _, err := transform.Bytes(dec, data)
		if err != nil {
			return "", fmt.Errorf("failed to decode utf-16 text: %w", err)
		}
		return string(out), nil
	}

	data = bytes.TrimPrefix(data, bomUTF8)
	if utf8.Valid(data) {
		return string(data), nil
	}

	enc, err := htmlindex.Get(fallback)
	if err != nil {
		return "", fmt.Errorf("unknown fallback charset %q: %w", fallback, err)
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s text: %w", fallback, err)
	}
	return string(out), nil
}
