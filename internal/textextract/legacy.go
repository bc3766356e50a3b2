package textextract

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// legacyOfficeText runs the catdoc tool matching ext on an OLE2 Word, Excel
// or PowerPoint file and returns its UTF-8 output.
func (e *Extractor) legacyOfficeText(ctx context.Context, data []byte, ext string) (string, error) {
	var bin string
	switch ext {
	case ".doc":
		bin = e.cfg.Catdoc
	case ".xls":
		bin = e.cfg.Xls2csv
	case ".ppt":
		bin = e.cfg.Catppt
	default:
		return "", fmt.Errorf("no converter for %s", ext)
	}

	path, err := writeTemp(data, ext)
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	out, errb, err := e.runner.Run(ctx, bin, "-d", "utf-8", path)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", bin, err, strings.TrimSpace(string(errb)))
	}
	// xls2csv separates sheets with a form feed.
	return strings.ReplaceAll(string(out), "\f", "\n"), nil
}
