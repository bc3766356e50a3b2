package providers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/textextract"
)

const (
	TesseractName      = "tesseract"
	TesseractBinary    = "tesseract"
	TesseractLanguages = "chi_sim+eng"
)

// TesseractConfig configures the local tesseract OCR provider.
type TesseractConfig struct {
	Binary    string
	Languages string
	Runner    textextract.Runner
	Logger    *slog.Logger
}

// TesseractOCR runs the tesseract CLI on a temporary copy of the image.
type TesseractOCR struct {
	binary    string
	languages string
	runner    textextract.Runner
	logger    *slog.Logger
}

// NewTesseractOCR creates a tesseract OCR provider.
func NewTesseractOCR(cfg TesseractConfig) *TesseractOCR {
	if cfg.Binary == "" {
		cfg.Binary = TesseractBinary
	}
	if cfg.Languages == "" {
		cfg.Languages = TesseractLanguages
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runner := cfg.Runner
	if runner == nil {
		runner = textextract.ExecRunner{Logger: logger}
	}
	return &TesseractOCR{
		binary:    cfg.Binary,
		languages: cfg.Languages,
		runner:    runner,
		logger:    logger,
	}
}

// Name returns the provider identifier.
func (t *TesseractOCR) Name() string {
	return TesseractName
}

// RecognizeText runs tesseract <file> stdout -l <languages>.
func (t *TesseractOCR) RecognizeText(ctx context.Context, image []byte) (string, error) {
	f, err := os.CreateTemp("", "docparser-ocr-*")
	if err != nil {
		return "", apperr.FileProcessing("OCR failed", fmt.Errorf("failed to create temp file: %w", err))
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(image); err != nil {
		f.Close()
		return "", apperr.FileProcessing("OCR failed", fmt.Errorf("failed to write temp file: %w", err))
	}
	if err := f.Close(); err != nil {
		return "", apperr.FileProcessing("OCR failed", fmt.Errorf("failed to close temp file: %w", err))
	}

	out, errb, err := t.runner.Run(ctx, t.binary, f.Name(), "stdout", "-l", t.languages)
	if err != nil {
		return "", apperr.FileProcessing("OCR failed", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(string(errb))))
	}

	text := strings.TrimSpace(string(out))
	t.logger.Debug("ocr complete", "provider", TesseractName, "chars", len(text))
	return text, nil
}

var _ OCRProvider = (*TesseractOCR)(nil)
