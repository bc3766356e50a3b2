// Package textextract turns document bytes into one plain-text blob.
package textextract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
)

// Config configures an Extractor.
type Config struct {
	// Pdftotext is the binary name or path; defaults to "pdftotext".
	Pdftotext string
	// Catdoc, Xls2csv and Catppt convert legacy .doc, .xls and .ppt files.
	// They default to the catdoc package's binary names.
	Catdoc  string
	Xls2csv string
	Catppt  string
	// FallbackCharset decodes non-UTF-8 text without a BOM; defaults to gb18030.
	FallbackCharset string
	Runner          Runner
	Logger          *slog.Logger
}

// Extractor dispatches on the extension hint, falling back to sniffing.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// New creates an Extractor with defaults filled in.
func New(cfg Config) *Extractor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Catdoc == "" {
		cfg.Catdoc = "catdoc"
	}
	if cfg.Xls2csv == "" {
		cfg.Xls2csv = "xls2csv"
	}
	if cfg.Catppt == "" {
		cfg.Catppt = "catppt"
	}
	if cfg.FallbackCharset == "" {
		cfg.FallbackCharset = "gb18030"
	}
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{Logger: cfg.Logger}
	}
	return &Extractor{cfg: cfg, runner: cfg.Runner, logger: cfg.Logger}
}

// ExtractText returns the text content of data. extHint is a file extension
// such as ".pdf"; when empty the bytes are sniffed. Failures are
// file-processing errors.
func (e *Extractor) ExtractText(ctx context.Context, data []byte, extHint string) (string, error) {
	ext := normalizeExt(extHint)
	if ext == "" {
		ext = mimetype.Detect(data).Extension()
	}

	var (
		text string
		err  error
	)
	switch ext {
	case ".pdf":
		text, err = e.pdfText(ctx, data)
	case ".docx":
		text, err = docxText(data)
	case ".pptx":
		text, err = pptxText(data)
	case ".xlsx", ".xlsm":
		text, err = xlsxText(data)
	case ".doc", ".xls", ".ppt":
		text, err = e.legacyOfficeText(ctx, data, ext)
	case ".html", ".htm", ".xhtml":
		text, err = htmlText(data)
	default:
		text, err = plainText(data, e.cfg.FallbackCharset)
	}
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return "", err
		}
		return "", apperr.FileProcessing(fmt.Sprintf("failed to extract text from %s", describe(ext)), err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.FileProcessing(fmt.Sprintf("no text found in %s", describe(ext)), nil)
	}

	e.logger.Debug("text extracted", "ext", ext, "chars", len([]rune(text)))
	return text, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func describe(ext string) string {
	if ext == "" {
		return "content"
	}
	return strings.TrimPrefix(ext, ".") + " content"
}
