package textextract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
)

// pdfText validates the PDF with pdfcpu, then runs
// pdftotext -layout -enc UTF-8 -eol unix <path> -.
func (e *Extractor) pdfText(ctx context.Context, data []byte) (string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pageCount, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return "", apperr.FileProcessing("invalid PDF", err)
	}

	path, err := writeTemp(data, ".pdf")
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w: %s", err, strings.TrimSpace(string(errb)))
	}

	text := string(out)
	// pdftotext separates pages with a form feed.
	extracted := 1 + strings.Count(strings.TrimRight(text, "\f"), "\f")
	e.logger.Debug("pdf text extracted", "pages", pageCount, "text_pages", extracted)
	return strings.ReplaceAll(text, "\f", "\n"), nil
}

// writeTemp stores data in a temp file for command-line tools. The caller
// removes it.
func writeTemp(data []byte, ext string) (string, error) {
	f, err := os.CreateTemp("", "docparser-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return f.Name(), nil
}
