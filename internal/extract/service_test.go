package extract

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/content"
	"github.com/2018wzh/llm-doc-parser/internal/decode"
	"github.com/2018wzh/llm-doc-parser/internal/providers"
	"github.com/2018wzh/llm-doc-parser/internal/schema"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var personSchema = schema.Schema{
	{Name: "姓名", Key: "name", Type: schema.TypeText, Required: true},
	{Name: "年龄", Key: "age", Type: schema.TypeInt, Required: true},
}

// fakeFactory hands out one adapter and records what it was asked for.
type fakeFactory struct {
	adapter  providers.Adapter
	err      error
	provider string
	opts     providers.Options
}

func (f *fakeFactory) Create(providerID string, opts providers.Options) (providers.Adapter, error) {
	f.provider = providerID
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.adapter, nil
}

type fakeExtractor struct {
	text  string
	err   error
	calls int
	hint  string
}

func (e *fakeExtractor) ExtractText(_ context.Context, data []byte, extHint string) (string, error) {
	e.calls++
	e.hint = extHint
	if e.err != nil {
		return "", e.err
	}
	if e.text != "" {
		return e.text, nil
	}
	return string(data), nil
}

type fakeOCR struct {
	text  string
	calls int
}

func (o *fakeOCR) Name() string { return "fake-ocr" }

func (o *fakeOCR) RecognizeText(context.Context, []byte) (string, error) {
	o.calls++
	return o.text, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestService(t *testing.T, factory AdapterFactory, extractor TextExtractor, ocr providers.OCRProvider) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Acquirer:  content.NewAcquirer(content.AcquirerConfig{Logger: quietLogger}),
		Extractor: extractor,
		Factory:   factory,
		OCR:       ocr,
		Logger:    quietLogger,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestExtract_InlineTextJSON(t *testing.T) {
	mock := providers.NewMockAdapter(decode.FormatJSON)
	mock.ResponseText = `[{"field":"name","type":"text","value":"张三"},{"field":"age","type":"int","value":"30"}]`
	extractor := &fakeExtractor{}
	factory := &fakeFactory{adapter: mock}
	svc := newTestService(t, factory, extractor, nil)

	values, err := svc.Extract(context.Background(), Request{
		Source:   content.Source{Kind: content.SourceInline, Payload: "张三，年龄30"},
		Schema:   personSchema,
		Provider: "openai",
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	want := []schema.Value{
		{Key: "name", Type: "text", Value: "张三"},
		{Key: "age", Type: "int", Value: int64(30)},
	}
	if len(values) != len(want) {
		t.Fatalf("values = %+v, want %+v", values, want)
	}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("values[%d] = %+v, want %+v", i, values[i], want[i])
		}
	}

	if factory.provider != "openai" {
		t.Errorf("factory asked for %q", factory.provider)
	}
	calls := mock.Calls()
	if len(calls) != 1 || !strings.Contains(calls[0].Prompt.User, "张三，年龄30") {
		t.Errorf("prompt should carry the content: %+v", calls)
	}
	if calls[0].Image != nil {
		t.Error("text request should not attach an image")
	}
}

func TestExtract_TOONMissingFieldIsNotAnError(t *testing.T) {
	mock := providers.NewMockAdapter(decode.FormatTOON)
	mock.ResponseText = "values[1]{field,type,value}:\n  name,text,张三"
	svc := newTestService(t, &fakeFactory{adapter: mock}, &fakeExtractor{}, nil)

	values, err := svc.Extract(context.Background(), Request{
		Source: content.Source{Kind: content.SourceInline, Payload: "张三"},
		Schema: personSchema,
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(values) != 1 || values[0].Key != "name" || values[0].Value != "张三" {
		t.Errorf("values = %+v, want only name", values)
	}
}

func TestExtract_ImageSkipsTextExtraction(t *testing.T) {
	mock := providers.NewMockAdapter(decode.FormatJSON)
	mock.ResponseText = `[{"field":"name","type":"text","value":"李四"}]`
	extractor := &fakeExtractor{}
	svc := newTestService(t, &fakeFactory{adapter: mock}, extractor, nil)

	data := pngBytes(t)
	values, err := svc.Extract(context.Background(), Request{
		Source: content.Source{Kind: content.SourceInline, Data: data, Filename: "card.png"},
		Schema: personSchema,
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(values) != 1 || values[0].Value != "李四" {
		t.Errorf("values = %+v", values)
	}

	if extractor.calls != 0 {
		t.Errorf("text extractor called %d times for an image", extractor.calls)
	}
	calls := mock.Calls()
	if len(calls) != 1 || calls[0].Image == nil {
		t.Fatalf("adapter should receive the image: %+v", calls)
	}
	if calls[0].Image.MIME != "image/png" || !bytes.Equal(calls[0].Image.Data, data) {
		t.Errorf("image = %s (%d bytes)", calls[0].Image.MIME, len(calls[0].Image.Data))
	}
}

func TestExtract_UnknownProvider(t *testing.T) {
	factory := providers.NewFactory(providers.FactoryConfig{Logger: quietLogger})
	extractor := &fakeExtractor{}
	svc := newTestService(t, factory, extractor, nil)

	_, err := svc.Extract(context.Background(), Request{
		Source:   content.Source{Kind: content.SourceInline, Data: []byte("%PDF-1.4\n1 0 obj\n"), Filename: "contract.pdf"},
		Schema:   personSchema,
		Provider: "cohere",
	})
	if !apperr.Is(err, apperr.KindConfiguration) {
		t.Fatalf("error = %v, want configuration", err)
	}
	for _, id := range providers.IDs {
		if !strings.Contains(err.Error(), string(id)) {
			t.Errorf("error should name %q: %v", id, err)
		}
	}
	if extractor.calls != 0 {
		t.Errorf("text extraction ran %d times before the provider was resolved", extractor.calls)
	}
}

func TestExtract_OCRFallback(t *testing.T) {
	textOnly := providers.ModelInfo{Name: "text-model", Capabilities: []string{providers.CapText}}
	vision := providers.ModelInfo{Name: "vision-model", Capabilities: []string{providers.CapText, providers.CapVision}}

	tests := []struct {
		name     string
		models   []providers.ModelInfo
		forceOCR bool
		wantOCR  bool
	}{
		{"text-only model uses OCR", []providers.ModelInfo{textOnly}, false, true},
		{"vision model gets the image", []providers.ModelInfo{vision}, false, false},
		{"forced OCR", []providers.ModelInfo{vision}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := providers.NewMockAdapter(decode.FormatJSON, tt.models...)
			mock.ResponseText = "[]"
			ocr := &fakeOCR{text: "姓名 王五"}
			svc := newTestService(t, &fakeFactory{adapter: mock}, &fakeExtractor{}, ocr)

			_, err := svc.Extract(context.Background(), Request{
				Source: content.Source{Kind: content.SourceInline, Data: pngBytes(t)},
				Schema: personSchema,
				OCR:    tt.forceOCR,
			})
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}

			call := mock.Calls()[0]
			if tt.wantOCR {
				if ocr.calls != 1 || call.Image != nil || !strings.Contains(call.Prompt.User, "姓名 王五") {
					t.Errorf("expected OCR text in prompt, ocr calls = %d, image = %v", ocr.calls, call.Image != nil)
				}
			} else if ocr.calls != 0 || call.Image == nil {
				t.Errorf("expected image to reach the model, ocr calls = %d", ocr.calls)
			}
		})
	}
}

func TestExtract_Errors(t *testing.T) {
	t.Run("empty schema", func(t *testing.T) {
		svc := newTestService(t, &fakeFactory{adapter: providers.NewMockAdapter(decode.FormatJSON)}, &fakeExtractor{}, nil)
		_, err := svc.Extract(context.Background(), Request{
			Source: content.Source{Payload: "text"},
		})
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("error = %v, want validation", err)
		}
	})

	t.Run("bad field type", func(t *testing.T) {
		svc := newTestService(t, &fakeFactory{adapter: providers.NewMockAdapter(decode.FormatJSON)}, &fakeExtractor{}, nil)
		_, err := svc.Extract(context.Background(), Request{
			Source: content.Source{Payload: "text"},
			Schema: schema.Schema{{Key: "x", Type: "money"}},
		})
		if !apperr.Is(err, apperr.KindValidation) || !strings.Contains(err.Error(), "Type must be one of") {
			t.Errorf("error = %v, want validation naming the type", err)
		}
	})

	t.Run("empty inline text", func(t *testing.T) {
		svc := newTestService(t, &fakeFactory{adapter: providers.NewMockAdapter(decode.FormatJSON)}, &fakeExtractor{}, nil)
		_, err := svc.Extract(context.Background(), Request{
			Source: content.Source{Payload: "   "},
			Schema: personSchema,
		})
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("error = %v, want validation", err)
		}
	})

	t.Run("text extraction failure", func(t *testing.T) {
		extractor := &fakeExtractor{err: errors.New("pdftotext missing")}
		svc := newTestService(t, &fakeFactory{adapter: providers.NewMockAdapter(decode.FormatJSON)}, extractor, nil)
		_, err := svc.Extract(context.Background(), Request{
			Source: content.Source{Payload: "text"},
			Schema: personSchema,
		})
		if !apperr.Is(err, apperr.KindFileProcessing) {
			t.Errorf("error = %v, want file processing", err)
		}
	})

	t.Run("model failure", func(t *testing.T) {
		mock := providers.NewMockAdapter(decode.FormatJSON)
		mock.ShouldFail = true
		svc := newTestService(t, &fakeFactory{adapter: mock}, &fakeExtractor{}, nil)
		_, err := svc.Extract(context.Background(), Request{
			Source: content.Source{Payload: "text"},
			Schema: personSchema,
		})
		if !apperr.Is(err, apperr.KindLLM) {
			t.Errorf("error = %v, want llm", err)
		}
	})

	t.Run("unparseable response", func(t *testing.T) {
		mock := providers.NewMockAdapter(decode.FormatJSON)
		mock.ResponseText = "I could not find anything."
		svc := newTestService(t, &fakeFactory{adapter: mock}, &fakeExtractor{}, nil)
		_, err := svc.Extract(context.Background(), Request{
			Source: content.Source{Payload: "text"},
			Schema: personSchema,
		})
		if !apperr.Is(err, apperr.KindLLM) {
			t.Errorf("error = %v, want llm", err)
		}
	})

	t.Run("stored object without storage", func(t *testing.T) {
		svc := newTestService(t, &fakeFactory{adapter: providers.NewMockAdapter(decode.FormatJSON)}, &fakeExtractor{}, nil)
		_, err := svc.Extract(context.Background(), Request{
			Source: content.Source{Kind: content.SourceStoredObject, Payload: "bucket/a.pdf"},
			Schema: personSchema,
		})
		if !apperr.Is(err, apperr.KindConfiguration) {
			t.Errorf("error = %v, want configuration", err)
		}
	})
}

func TestExtract_ModelOverride(t *testing.T) {
	mock := providers.NewMockAdapter(decode.FormatJSON)
	mock.ResponseText = "[]"
	factory := &fakeFactory{adapter: mock}
	svc := newTestService(t, factory, &fakeExtractor{}, nil)

	_, err := svc.Extract(context.Background(), Request{
		Source:  content.Source{Payload: "text"},
		Schema:  personSchema,
		Model:   "gpt-4o",
		Options: providers.Options{BaseURL: "http://localhost:8000/v1"},
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if factory.opts.Model != "gpt-4o" || factory.opts.BaseURL != "http://localhost:8000/v1" {
		t.Errorf("factory options = %+v", factory.opts)
	}
}
