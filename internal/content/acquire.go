package content

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
)

// SourceKind says where a payload comes from.
type SourceKind string

const (
	SourceStoredObject SourceKind = "stored-object"
	SourceInline       SourceKind = "inline"
)

// ParseSourceKind accepts the canonical names and the "minio" and "raw"
// aliases.
func ParseSourceKind(s string) (SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stored-object", "minio", "object", "storage":
		return SourceStoredObject, nil
	case "inline", "raw", "":
		return SourceInline, nil
	}
	return "", apperr.Validationf("unsupported source %q, expected minio or raw", s)
}

// Source is the caller's description of the content. For stored objects
// Payload is the locator. For inline content Data wins over Payload when set.
type Source struct {
	Kind     SourceKind
	Payload  string
	Data     []byte
	Filename string
}

// Envelope is acquired content ready for extraction.
type Envelope struct {
	Data      []byte
	Filename  string
	Kind      Kind
	MIME      string
	Extension string
}

// Text returns the payload as a string.
func (e *Envelope) Text() string {
	return string(e.Data)
}

// Fetcher downloads a stored object.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// AcquirerConfig configures an Acquirer.
type AcquirerConfig struct {
	Fetcher Fetcher
	// MaxSize caps payload size in bytes; zero disables the check.
	MaxSize int64
	Logger  *slog.Logger
}

// Acquirer resolves sources into envelopes.
type Acquirer struct {
	fetcher Fetcher
	maxSize int64
	logger  *slog.Logger
}

// NewAcquirer creates an Acquirer. Fetcher may be nil when only inline
// content is served.
func NewAcquirer(cfg AcquirerConfig) *Acquirer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{fetcher: cfg.Fetcher, maxSize: cfg.MaxSize, logger: logger}
}

// Acquire loads and classifies the source.
func (a *Acquirer) Acquire(ctx context.Context, src Source) (*Envelope, error) {
	var data []byte
	filename := src.Filename

	switch src.Kind {
	case SourceStoredObject:
		if a.fetcher == nil {
			return nil, apperr.Configuration("object storage is not configured")
		}
		locator := strings.TrimSpace(src.Payload)
		if locator == "" {
			return nil, apperr.Validation("object locator is required")
		}
		b, err := a.fetcher.Fetch(ctx, locator)
		if err != nil {
			if _, ok := apperr.As(err); ok {
				return nil, err
			}
			return nil, apperr.Storage(fmt.Sprintf("failed to fetch %s", locator), err)
		}
		if len(b) == 0 {
			return nil, apperr.FileProcessing(fmt.Sprintf("object %s is empty", locator), nil)
		}
		data = b
		if filename == "" {
			filename = path.Base(locator)
		}

	case SourceInline, "":
		data = src.Data
		if data == nil {
			data = []byte(src.Payload)
		}
		if utf8.Valid(data) && strings.TrimSpace(string(data)) == "" {
			return nil, apperr.Validation("content is empty")
		}

	default:
		return nil, apperr.Validationf("unsupported source %q", src.Kind)
	}

	if a.maxSize > 0 && int64(len(data)) > a.maxSize {
		return nil, apperr.Validationf("content is %d bytes, limit is %d", len(data), a.maxSize)
	}

	kind, mimeType, ext := Classify(data, filename)
	if kind == KindUnknown && utf8.Valid(data) {
		kind = KindText
	}

	a.logger.Debug("content acquired",
		"source", src.Kind,
		"kind", kind,
		"mime", mimeType,
		"bytes", len(data),
	)

	return &Envelope{
		Data:      data,
		Filename:  filename,
		Kind:      kind,
		MIME:      mimeType,
		Extension: ext,
	}, nil
}
