// Package extract runs the extraction pipeline: acquire the content, turn it
// into text or an image, prompt the model and decode its answer against the
// caller's schema.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/content"
	"github.com/2018wzh/llm-doc-parser/internal/providers"
	"github.com/2018wzh/llm-doc-parser/internal/schema"
)

// AdapterFactory resolves a provider id to an adapter.
type AdapterFactory interface {
	Create(providerID string, opts providers.Options) (providers.Adapter, error)
}

// TextExtractor turns document bytes into text.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, extHint string) (string, error)
}

// Request is one extraction call.
type Request struct {
	// RequestID correlates log lines; generated when empty.
	RequestID string
	Source    content.Source
	Schema    schema.Schema `validate:"required,min=1,dive"`
	Provider  string        `validate:"omitempty,max=32"`
	Model     string        `validate:"omitempty,max=256"`
	// Options override the provider's configured defaults.
	Options providers.Options `validate:"-"`
	// OCR forces images through the OCR provider.
	OCR bool
}

// Config configures a Service.
type Config struct {
	Acquirer  *content.Acquirer
	Extractor TextExtractor
	Factory   AdapterFactory
	// OCR is optional; without it images always go to the model.
	OCR    providers.OCRProvider
	Logger *slog.Logger
}

// Service orchestrates extraction requests. It holds no per-request state.
type Service struct {
	acquirer  *content.Acquirer
	extractor TextExtractor
	factory   AdapterFactory
	ocr       providers.OCRProvider
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("adapter factory is required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("text extractor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	acquirer := cfg.Acquirer
	if acquirer == nil {
		acquirer = content.NewAcquirer(content.AcquirerConfig{Logger: logger})
	}
	return &Service{
		acquirer:  acquirer,
		extractor: cfg.Extractor,
		factory:   cfg.Factory,
		ocr:       cfg.OCR,
		validate:  validator.New(),
		logger:    logger,
	}, nil
}

// Extract runs the pipeline and returns one value per recognised field, in
// the order the model reported them. Required fields are not enforced.
func (s *Service) Extract(ctx context.Context, req Request) ([]schema.Value, error) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	logger := s.logger.With("request_id", req.RequestID)

	req.Schema = req.Schema.Normalize()
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	env, err := s.acquirer.Acquire(ctx, req.Source)
	if err != nil {
		return nil, err
	}

	opts := req.Options
	if req.Model != "" {
		opts.Model = req.Model
	}
	adapter, err := s.factory.Create(req.Provider, opts)
	if err != nil {
		return nil, err
	}
	model := adapter.Model()

	text, image, err := s.prepare(ctx, env, adapter, model, req.OCR, logger)
	if err != nil {
		return nil, err
	}

	prompt, err := adapter.BuildPrompt(text, image, req.Schema)
	if err != nil {
		return nil, apperr.Internal("failed to build prompt", err)
	}

	logger.Info("extracting",
		"provider", adapter.ID(),
		"model", model,
		"kind", env.Kind,
		"fields", len(req.Schema),
	)
	raw, err := adapter.Invoke(ctx, prompt, model, image)
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.LLM("model call failed", err)
	}

	values, err := adapter.DecodeResponse(raw, req.Schema)
	if err != nil {
		return nil, err
	}

	logger.Info("extraction complete",
		"provider", adapter.ID(),
		"model", model,
		"values", len(values),
		"duration", time.Since(start),
	)
	return values, nil
}

// prepare returns the text to prompt with, or the image to attach. Images go
// through OCR when forced or when the model cannot read images.
func (s *Service) prepare(ctx context.Context, env *content.Envelope, adapter providers.Adapter, model string, forceOCR bool, logger *slog.Logger) (string, *providers.Image, error) {
	switch env.Kind {
	case content.KindImage:
		if s.ocr != nil && (forceOCR || !acceptsImages(adapter, model)) {
			logger.Info("recognizing image text", "ocr", s.ocr.Name(), "model", model)
			text, err := s.ocr.RecognizeText(ctx, env.Data)
			if err != nil {
				if _, ok := apperr.As(err); ok {
					return "", nil, err
				}
				return "", nil, apperr.FileProcessing("OCR failed", err)
			}
			if strings.TrimSpace(text) == "" {
				return "", nil, apperr.FileProcessing("no text recognized in image", nil)
			}
			return text, nil, nil
		}
		return "", providers.NewImage(env.Data, env.MIME), nil

	case content.KindDocument, content.KindText:
		text, err := s.extractor.ExtractText(ctx, env.Data, env.Extension)
		if err != nil {
			if _, ok := apperr.As(err); ok {
				return "", nil, err
			}
			return "", nil, apperr.FileProcessing("text extraction failed", err)
		}
		return text, nil, nil

	default:
		return "", nil, apperr.FileProcessing(fmt.Sprintf("unsupported content type %s", env.MIME), nil)
	}
}

// acceptsImages reports whether model lists vision. Models missing from the
// catalogue are assumed to accept images.
func acceptsImages(adapter providers.Adapter, model string) bool {
	info, ok := providers.FindModel(adapter, model)
	return !ok || info.Supports(providers.CapVision)
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Request.")
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s needs at least %s entries", field, fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of %s", field, strings.ReplaceAll(fe.Param(), " ", ", ")))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return apperr.Validation(strings.Join(msgs, "; "))
}
