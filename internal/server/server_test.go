package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/2018wzh/llm-doc-parser/internal/config"
	"github.com/2018wzh/llm-doc-parser/internal/home"
	"github.com/2018wzh/llm-doc-parser/internal/server/endpoints"
	"github.com/2018wzh/llm-doc-parser/internal/svcctx"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const personSchemaJSON = `[{"name":"姓名","field":"name","type":"text"},{"name":"年龄","field":"age","type":"int"}]`

// fakeLLM is an OpenAI-compatible chat endpoint that answers with content.
type fakeLLM struct {
	*httptest.Server
	content  atomic.Value
	calls    atomic.Int32
	lastBody atomic.Value
	lastAuth atomic.Value
}

func newFakeLLM(t *testing.T, content string) *fakeLLM {
	t.Helper()
	f := &fakeLLM{}
	f.content.Store(content)
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		f.lastBody.Store(string(body))
		f.lastAuth.Store(r.Header.Get("Authorization"))
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		resp, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "local-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": f.content.Load().(string)},
			}},
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(resp)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeLLM) auth() string {
	v, _ := f.lastAuth.Load().(string)
	return v
}

func (f *fakeLLM) requestBody() string {
	v, _ := f.lastBody.Load().(string)
	return v
}

// newTestServer builds a server whose default provider is the custom
// adapter pointed at llm, with local object storage under a temp home.
func newTestServer(t *testing.T, llm *fakeLLM) (*Server, *home.Dir) {
	t.Helper()
	return newTestServerWithCustom(t, llm, "")
}

// newTestServerWithCustom appends customYAML to the custom provider section.
func newTestServerWithCustom(t *testing.T, llm *fakeLLM, customYAML string) (*Server, *home.Dir) {
	t.Helper()
	dir := t.TempDir()
	h, err := home.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.EnsureExists(); err != nil {
		t.Fatal(err)
	}

	cfgFile := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
default_provider: custom
providers:
  custom:
    base_url: %s
    model: local-model
%sstorage:
  backend: local
extract:
  max_file_size: 4096
`, llm.URL, customYAML)
	if err := os.WriteFile(cfgFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	mgr, err := config.NewManager(cfgFile, "")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	srv, err := New(Config{ConfigManager: mgr, Home: h, Logger: quietLogger})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, h
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, newFakeLLM(t, "[]"))

	rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	health := decodeBody[endpoints.HealthResponse](t, rec)
	if health.Status != "healthy" || health.Service != endpoints.ServiceTitle {
		t.Errorf("health = %+v", health)
	}

	rec = do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/", nil))
	info := decodeBody[endpoints.InfoResponse](t, rec)
	if info.Title != endpoints.ServiceTitle || info.Version == "" {
		t.Errorf("info = %+v", info)
	}

	rec = do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
}

func TestServer_Middleware(t *testing.T) {
	srv, _ := newTestServer(t, newFakeLLM(t, "[]"))

	t.Run("generates request id", func(t *testing.T) {
		rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Header().Get(RequestIDHeader) == "" {
			t.Error("expected generated X-Request-ID")
		}
	})

	t.Run("echoes request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rec := do(t, srv.Handler(), req)
		if got := rec.Header().Get(RequestIDHeader); got != "req-123" {
			t.Errorf("X-Request-ID = %q", got)
		}
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/extract", nil)
		req.Header.Set("Origin", "http://example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := do(t, srv.Handler(), req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Error("expected wildcard origin")
		}
	})
}

func TestServer_ExtractJSON(t *testing.T) {
	llm := newFakeLLM(t, `[{"field":"name","type":"text","value":"张三"},{"field":"age","type":"int","value":"30"}]`)
	srv, _ := newTestServer(t, llm)

	body := `{"source":"raw","file":"张三今年30岁","schema":` + personSchemaJSON + `}`
	rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data []struct {
			Field string `json:"field"`
			Type  string `json:"type"`
			Value any    `json:"value"`
		} `json:"data"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != "200" || resp.Message != "Success" {
		t.Errorf("envelope = %s/%s", resp.Code, resp.Message)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("data = %+v", resp.Data)
	}
	if resp.Data[0].Value != "张三" {
		t.Errorf("name = %v", resp.Data[0].Value)
	}
	if resp.Data[1].Value != float64(30) {
		t.Errorf("age = %v (%T), want number 30", resp.Data[1].Value, resp.Data[1].Value)
	}
	if !strings.Contains(llm.requestBody(), "张三今年30岁") {
		t.Error("expected the content in the prompt")
	}
}

func TestServer_ExtractSchemaFormats(t *testing.T) {
	llm := newFakeLLM(t, `[{"field":"name","type":"text","value":"李四"}]`)
	srv, _ := newTestServer(t, llm)

	schemas := map[string]string{
		"json string": `"[{\"name\":\"姓名\",\"field\":\"name\",\"type\":\"text\"}]"`,
		"toon string": `"fields[1]{name,field,type,required}:\n  姓名,name,text,true"`,
	}
	for name, schemaField := range schemas {
		t.Run(name, func(t *testing.T) {
			body := `{"source":"raw","file":"李四","schema":` + schemaField + `}`
			rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(body)))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestServer_ExtractStoredObject(t *testing.T) {
	llm := newFakeLLM(t, `[{"field":"name","type":"text","value":"王五"}]`)
	srv, h := newTestServer(t, llm)

	path, err := h.ObjectPath("docs", "people/wang.txt")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("王五是一名教师"), 0o644); err != nil {
		t.Fatal(err)
	}

	body := `{"source":"minio","file":"docs/people/wang.txt","schema":` + personSchemaJSON + `}`
	rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(llm.requestBody(), "王五是一名教师") {
		t.Error("expected the stored object text in the prompt")
	}

	t.Run("missing object", func(t *testing.T) {
		body := `{"source":"minio","file":"docs/missing.txt","schema":` + personSchemaJSON + `}`
		rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(body)))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", rec.Code)
		}
		if resp := decodeBody[endpoints.ErrorResponse](t, rec); resp.Code != "STORAGE_ERROR" {
			t.Errorf("code = %s", resp.Code)
		}
	})
}

func TestServer_ExtractErrors(t *testing.T) {
	llm := newFakeLLM(t, "this is not a table")
	srv, _ := newTestServer(t, llm)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"malformed body", `{"source":`, 400, "VALIDATION_ERROR"},
		{"missing schema", `{"source":"raw","file":"x"}`, 400, "VALIDATION_ERROR"},
		{"bad source", `{"source":"ftp","file":"x","schema":` + personSchemaJSON + `}`, 400, "VALIDATION_ERROR"},
		{"missing source", `{"file":"x","schema":` + personSchemaJSON + `}`, 400, "VALIDATION_ERROR"},
		{"bad field type", `{"source":"raw","file":"x","schema":[{"name":"n","field":"n","type":"money"}]}`, 400, "VALIDATION_ERROR"},
		{"unknown provider", `{"source":"raw","file":"x","provider":"bedrock","schema":` + personSchemaJSON + `}`, 400, "CONFIGURATION_ERROR"},
		{"undecodable answer", `{"source":"raw","file":"x","schema":` + personSchemaJSON + `}`, 500, "LLM_ERROR"},
		{"too large", `{"source":"raw","file":"` + strings.Repeat("a", 5000) + `","schema":` + personSchemaJSON + `}`, 400, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(tt.body)))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body=%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			resp := decodeBody[endpoints.ErrorResponse](t, rec)
			if resp.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", resp.Code, tt.wantCode)
			}
			if resp.Message == "" {
				t.Error("expected a message")
			}
		})
	}
}

func TestServer_ExtractCustomOverrides(t *testing.T) {
	t.Run("allowed base url", func(t *testing.T) {
		configured := newFakeLLM(t, `[{"field":"name","type":"text","value":"a"}]`)
		override := newFakeLLM(t, `[{"field":"name","type":"text","value":"b"}]`)
		srv, _ := newTestServerWithCustom(t, configured, fmt.Sprintf("    allowed_base_urls:\n      - %s\n", override.URL))

		body := fmt.Sprintf(`{"source":"raw","file":"x","provider":"custom","custom_base_url":%q,"custom_api_key":"k","schema":%s}`,
			override.URL, personSchemaJSON)
		rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(body)))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
		}
		if override.calls.Load() != 1 || configured.calls.Load() != 0 {
			t.Errorf("calls: override=%d configured=%d", override.calls.Load(), configured.calls.Load())
		}
		if got := override.auth(); got != "Bearer k" {
			t.Errorf("Authorization = %q, want the request key", got)
		}
	})

	t.Run("allowed base url without key", func(t *testing.T) {
		configured := newFakeLLM(t, "[]")
		override := newFakeLLM(t, "[]")
		srv, _ := newTestServerWithCustom(t, configured,
			fmt.Sprintf("    api_key: sk-operator-secret\n    allowed_base_urls:\n      - %s\n", override.URL))

		body := fmt.Sprintf(`{"source":"raw","file":"x","provider":"custom","custom_base_url":%q,"schema":%s}`,
			override.URL, personSchemaJSON)
		rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(body)))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
		}
		if strings.Contains(override.auth(), "sk-operator-secret") {
			t.Errorf("configured key sent to request base url: %q", override.auth())
		}
	})

	t.Run("unlisted base url rejected", func(t *testing.T) {
		configured := newFakeLLM(t, "[]")
		other := newFakeLLM(t, "[]")
		srv, _ := newTestServerWithCustom(t, configured, "    api_key: sk-operator-secret\n")

		body := fmt.Sprintf(`{"source":"raw","file":"x","provider":"custom","custom_base_url":%q,"schema":%s}`,
			other.URL, personSchemaJSON)
		rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
		}
		if resp := decodeBody[endpoints.ErrorResponse](t, rec); resp.Code != "VALIDATION_ERROR" {
			t.Errorf("code = %q", resp.Code)
		}
		if other.calls.Load() != 0 || configured.calls.Load() != 0 {
			t.Errorf("calls: other=%d configured=%d", other.calls.Load(), configured.calls.Load())
		}
	})
}

func TestServer_ExtractUnparseableAnswer(t *testing.T) {
	srv, _ := newTestServer(t, newFakeLLM(t, "I cannot help with that."))

	body := `{"source":"raw","file":"张三今年30岁","schema":` + personSchemaJSON + `}`
	rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(body)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[endpoints.ErrorResponse](t, rec)
	if resp.Code != "LLM_ERROR" {
		t.Errorf("code = %q", resp.Code)
	}
	if !strings.HasPrefix(resp.Message, "cannot parse model response: ") || resp.Message == "cannot parse model response: " {
		t.Errorf("message = %q, want the parse error included", resp.Message)
	}
}

func multipartBody(t *testing.T, fields map[string]string, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(data)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestServer_ExtractMultipart(t *testing.T) {
	llm := newFakeLLM(t, `[{"field":"name","type":"text","value":"赵六"}]`)
	srv, _ := newTestServer(t, llm)

	t.Run("uploaded text file", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"schema": personSchemaJSON}, "note.txt", []byte("赵六，40岁"))
		req := httptest.NewRequest(http.MethodPost, "/extract", body)
		req.Header.Set("Content-Type", ct)
		rec := do(t, srv.Handler(), req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(llm.requestBody(), "赵六，40岁") {
			t.Error("expected uploaded text in prompt")
		}
	})

	t.Run("uploaded image goes to the model", func(t *testing.T) {
		png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
		body, ct := multipartBody(t, map[string]string{"schema": personSchemaJSON}, "card.png", png)
		req := httptest.NewRequest(http.MethodPost, "/extract", body)
		req.Header.Set("Content-Type", ct)
		rec := do(t, srv.Handler(), req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(llm.requestBody(), "data:image/png;base64,") {
			t.Error("expected image data URI in request")
		}
	})

	t.Run("text field", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{
			"source": "raw",
			"file":   "赵六",
			"schema": "fields[1]{name,field,type}:\n  姓名,name,text",
		}, "", nil)
		req := httptest.NewRequest(http.MethodPost, "/extract", body)
		req.Header.Set("Content-Type", ct)
		rec := do(t, srv.Handler(), req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
		}
	})

	t.Run("missing schema", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"file": "x"}, "", nil)
		req := httptest.NewRequest(http.MethodPost, "/extract", body)
		req.Header.Set("Content-Type", ct)
		rec := do(t, srv.Handler(), req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("upload over limit", func(t *testing.T) {
		big := bytes.Repeat([]byte("a"), 2<<20)
		body, ct := multipartBody(t, map[string]string{"schema": personSchemaJSON}, "big.txt", big)
		req := httptest.NewRequest(http.MethodPost, "/extract", body)
		req.Header.Set("Content-Type", ct)
		rec := do(t, srv.Handler(), req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d body=%s", rec.Code, rec.Body.String())
		}
	})
}

func TestServer_Providers(t *testing.T) {
	srv, _ := newTestServer(t, newFakeLLM(t, "[]"))

	t.Run("list", func(t *testing.T) {
		rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		resp := decodeBody[endpoints.ProvidersResponse](t, rec)
		if resp.Default != "custom" {
			t.Errorf("default = %s", resp.Default)
		}
		if len(resp.Providers) != 5 {
			t.Fatalf("providers = %+v", resp.Providers)
		}
		for _, p := range resp.Providers {
			if p.ID == "custom" && (!p.Ready || p.Model != "local-model") {
				t.Errorf("custom = %+v", p)
			}
		}
	})

	t.Run("models", func(t *testing.T) {
		rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/api/v1/providers/claude/models", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		resp := decodeBody[endpoints.ModelsResponse](t, rec)
		if resp.Provider != "claude" || len(resp.Models) == 0 {
			t.Errorf("models = %+v", resp)
		}
	})

	t.Run("unknown provider models", func(t *testing.T) {
		rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/api/v1/providers/bedrock/models", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("health", func(t *testing.T) {
		rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/api/v1/providers/custom/health", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		resp := decodeBody[endpoints.ProviderHealthResponse](t, rec)
		if !resp.Healthy {
			t.Error("expected custom provider healthy against fake server")
		}
	})
}

func TestServer_RequireService(t *testing.T) {
	srv, _ := newTestServer(t, newFakeLLM(t, "[]"))
	services := *srv.Services()
	services.Extractor = nil
	srv.services.Store(&services)

	body := `{"source":"raw","file":"x","schema":` + personSchemaJSON + `}`
	rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(body)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	rec = do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health should not need the service, got %d", rec.Code)
	}
}

func TestServer_NoDocsRoutes(t *testing.T) {
	srv, _ := newTestServer(t, newFakeLLM(t, "[]"))

	for _, path := range []string{"/swagger", "/swagger.json"} {
		rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestServer_ServicesInContext(t *testing.T) {
	srv, _ := newTestServer(t, newFakeLLM(t, "[]"))

	var got *svcctx.Services
	h := srv.withServices(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = svcctx.ServicesFrom(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got == nil || got.Extractor == nil || got.Factory == nil {
		t.Fatalf("services = %+v", got)
	}
	if got.MaxUploadSize != 4096 {
		t.Errorf("MaxUploadSize = %d", got.MaxUploadSize)
	}
}
