package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2018wzh/llm-doc-parser/internal/api"
	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/content"
	"github.com/2018wzh/llm-doc-parser/internal/decode"
	"github.com/2018wzh/llm-doc-parser/internal/extract"
	"github.com/2018wzh/llm-doc-parser/internal/providers"
	"github.com/2018wzh/llm-doc-parser/internal/schema"
	"github.com/2018wzh/llm-doc-parser/internal/svcctx"
)

// ExtractRequest is the JSON body of POST /api/v1/extract.
type ExtractRequest struct {
	// Source is "minio" for a stored object or "raw" for inline text.
	Source string `json:"source" example:"raw"`
	// File is the object locator or the inline text.
	File string `json:"file" example:"张三是一名程序员，出生于1990年5月15日"`
	// Schema is a field list, or a string holding JSON or TOON.
	Schema        json.RawMessage `json:"schema" swaggertype:"array,object"`
	Provider      string          `json:"provider,omitempty" example:"openai"`
	Model         string          `json:"model,omitempty" example:"gpt-4o-mini"`
	Filename      string          `json:"filename,omitempty"`
	CustomBaseURL string          `json:"custom_base_url,omitempty"`
	CustomAPIKey  string          `json:"custom_api_key,omitempty"`
	// OCR sends images through the configured OCR provider.
	OCR bool `json:"ocr,omitempty"`
}

// ExtractResponse wraps extracted values.
type ExtractResponse struct {
	Data    []schema.Value `json:"data"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
}

func successResponse(values []schema.Value) ExtractResponse {
	if values == nil {
		values = []schema.Value{}
	}
	return ExtractResponse{Data: values, Code: "200", Message: "Success"}
}

// ParseSchemaField accepts a JSON field list or a JSON string holding JSON
// or TOON field definitions.
func ParseSchemaField(raw json.RawMessage) (schema.Schema, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, apperr.Validation("schema is required")
	}
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, apperr.Validationf("schema is not a valid string: %v", err)
		}
		return decode.ParseSchema(text)
	}
	return decode.ParseSchema(trimmed)
}

// serviceRequest converts a parsed body into an extraction request.
func (req ExtractRequest) serviceRequest(requestID string) (extract.Request, error) {
	if strings.TrimSpace(req.Source) == "" {
		return extract.Request{}, apperr.Validation("source is required")
	}
	kind, err := content.ParseSourceKind(req.Source)
	if err != nil {
		return extract.Request{}, err
	}
	if req.File == "" {
		return extract.Request{}, apperr.Validation("file is required")
	}
	s, err := ParseSchemaField(req.Schema)
	if err != nil {
		return extract.Request{}, err
	}
	return extract.Request{
		RequestID: requestID,
		Source:    content.Source{Kind: kind, Payload: req.File, Filename: req.Filename},
		Schema:    s,
		Provider:  req.Provider,
		Model:     req.Model,
		Options:   customOptions(req.Provider, req.CustomBaseURL, req.CustomAPIKey),
		OCR:       req.OCR,
	}, nil
}

// customOptions forwards per-call endpoint overrides to the custom
// provider only.
func customOptions(provider, baseURL, apiKey string) providers.Options {
	if providers.ID(strings.ToLower(strings.TrimSpace(provider))) != providers.Custom {
		return providers.Options{}
	}
	return providers.Options{BaseURL: baseURL, APIKey: apiKey}
}

// ExtractEndpoint handles POST /api/v1/extract.
type ExtractEndpoint struct{}

func (e *ExtractEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/extract", e.handler
}

func (e *ExtractEndpoint) RequiresService() bool { return true }

// handler godoc
//
//	@Summary		Extract fields
//	@Description	Extracts schema fields from a stored object or inline text
//	@Tags			extract
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ExtractRequest	true	"Extraction request"
//	@Success		200		{object}	ExtractResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/api/v1/extract [post]
func (e *ExtractEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, apperr.Validationf("invalid request body: %v", err))
		return
	}

	sreq, err := req.serviceRequest(svcctx.RequestIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	runExtract(w, r, sreq)
}

func runExtract(w http.ResponseWriter, r *http.Request, req extract.Request) {
	svc := svcctx.ExtractorFrom(r.Context())
	if svc == nil {
		writeError(w, r, apperr.Configuration("extraction service is not available"))
		return
	}
	svcctx.LoggerFrom(r.Context()).Info("extract request", "source", req.Source.Kind, "provider", req.Provider)

	values, err := svc.Extract(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse(values))
}

func (e *ExtractEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		text, object, file, schemaArg string
		provider, model, baseURL      string
		apiKey                        string
		ocr                           bool
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract schema fields through the server",
		Long: `Extract schema fields through the running server.

Pass exactly one of --text, --object or --file. --file uploads a local
document or image as multipart form data.

--schema takes a path to a JSON or TOON file, or the definitions inline.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			schemaText, err := ReadSchemaArg(schemaArg)
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp ExtractResponse

			switch {
			case file != "":
				fields := map[string]string{
					"source":          "raw",
					"schema":          schemaText,
					"provider":        provider,
					"model":           model,
					"custom_base_url": baseURL,
					"custom_api_key":  apiKey,
				}
				if ocr {
					fields["ocr"] = "true"
				}
				if err := client.PostMultipart(cmd.Context(), "/extract", fields, "file", file, &resp); err != nil {
					return err
				}
			case text != "" || object != "":
				body := ExtractRequest{
					Source:        "raw",
					File:          text,
					Provider:      provider,
					Model:         model,
					CustomBaseURL: baseURL,
					CustomAPIKey:  apiKey,
					OCR:           ocr,
				}
				if object != "" {
					body.Source = "minio"
					body.File = object
				}
				body.Schema, _ = json.Marshal(schemaText)
				if err := client.Post(cmd.Context(), "/api/v1/extract", body, &resp); err != nil {
					return err
				}
			default:
				return fmt.Errorf("one of --text, --object or --file is required")
			}
			return api.Output(resp.Data)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Inline text to extract from")
	cmd.Flags().StringVar(&object, "object", "", "Stored object locator (bucket/object or URL)")
	cmd.Flags().StringVar(&file, "file", "", "Local file to upload")
	cmd.Flags().StringVar(&schemaArg, "schema", "", "Schema file path or inline JSON/TOON")
	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider (openai, azure, claude, gemini, custom)")
	cmd.Flags().StringVar(&model, "model", "", "Model name")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL for the custom provider")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for the custom provider")
	cmd.Flags().BoolVar(&ocr, "ocr", false, "Send images through the OCR provider")
	cmd.MarkFlagsMutuallyExclusive("text", "object", "file")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

// ReadSchemaArg returns the contents of the file at arg, or arg itself when
// no such file exists.
func ReadSchemaArg(arg string) (string, error) {
	if strings.TrimSpace(arg) == "" {
		return "", apperr.Validation("schema is required")
	}
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		data, err := os.ReadFile(arg)
		if err != nil {
			return "", fmt.Errorf("failed to read schema %s: %w", arg, err)
		}
		return string(data), nil
	}
	return arg, nil
}

// UploadExtractEndpoint handles POST /extract with multipart form data.
type UploadExtractEndpoint struct{}

func (e *UploadExtractEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/extract", e.handler
}

func (e *UploadExtractEndpoint) RequiresService() bool { return true }

// multipartOverhead leaves room for the non-file form fields.
const multipartOverhead = 1 << 20

// handler godoc
//
//	@Summary		Extract fields from form data
//	@Description	Accepts an uploaded file or a text field plus a JSON or TOON schema
//	@Tags			extract
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			source			formData	string	false	"minio or raw"
//	@Param			file			formData	file	false	"Document, image or text"
//	@Param			schema			formData	string	true	"Field definitions as JSON or TOON"
//	@Param			provider		formData	string	false	"LLM provider"
//	@Param			model			formData	string	false	"Model name"
//	@Param			custom_base_url	formData	string	false	"Custom provider base URL"
//	@Param			custom_api_key	formData	string	false	"Custom provider API key"
//	@Param			ocr				formData	bool	false	"Force OCR for images"
//	@Success		200				{object}	ExtractResponse
//	@Failure		400				{object}	ErrorResponse
//	@Failure		422				{object}	ErrorResponse
//	@Failure		500				{object}	ErrorResponse
//	@Router			/extract [post]
func (e *UploadExtractEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	maxSize := int64(0)
	if s := svcctx.ServicesFrom(r.Context()); s != nil {
		maxSize = s.MaxUploadSize
	}
	if maxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, apperr.Validationf("upload exceeds the %d byte limit", maxSize))
			return
		}
		writeError(w, r, apperr.Validationf("invalid form data: %v", err))
		return
	}

	req := ExtractRequest{
		Source:        r.FormValue("source"),
		File:          r.FormValue("file"),
		Provider:      r.FormValue("provider"),
		Model:         r.FormValue("model"),
		Filename:      r.FormValue("filename"),
		CustomBaseURL: r.FormValue("custom_base_url"),
		CustomAPIKey:  r.FormValue("custom_api_key"),
	}
	if v := r.FormValue("ocr"); v != "" {
		req.OCR, _ = strconv.ParseBool(v)
	}
	schemaText := r.FormValue("schema")
	if strings.TrimSpace(schemaText) == "" {
		writeError(w, r, apperr.Validation("schema is required"))
		return
	}
	s, err := decode.ParseSchema(schemaText)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var sreq extract.Request
	f, hdr, err := r.FormFile("file")
	switch {
	case err == nil:
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			writeError(w, r, apperr.FileProcessing("failed to read upload", err))
			return
		}
		filename := req.Filename
		if filename == "" {
			filename = hdr.Filename
		}
		sreq = extract.Request{
			Source: content.Source{Kind: content.SourceInline, Data: data, Filename: filename},
		}
	case errors.Is(err, http.ErrMissingFile):
		if req.Source == "" {
			req.Source = "raw"
		}
		kind, err := content.ParseSourceKind(req.Source)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if req.File == "" {
			writeError(w, r, apperr.Validation("file is required"))
			return
		}
		sreq = extract.Request{
			Source: content.Source{Kind: kind, Payload: req.File, Filename: req.Filename},
		}
	default:
		writeError(w, r, apperr.Validationf("invalid file part: %v", err))
		return
	}

	sreq.RequestID = svcctx.RequestIDFrom(r.Context())
	sreq.Schema = s
	sreq.Provider = req.Provider
	sreq.Model = req.Model
	sreq.Options = customOptions(req.Provider, req.CustomBaseURL, req.CustomAPIKey)
	sreq.OCR = req.OCR
	runExtract(w, r, sreq)
}

// Command is nil; "api extract --file" covers uploads.
func (e *UploadExtractEndpoint) Command(getServerURL func() string) *cobra.Command {
	return nil
}
