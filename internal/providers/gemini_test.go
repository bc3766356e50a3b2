package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/decode"
)

func TestGeminiAdapter_Invoke(t *testing.T) {
	var req geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.0-flash:generateContent" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("x-goog-api-key = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		resp := map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": "```toon\nvalues[2]{field,type,value}:\n  name,text,张三\n  age,int,30\n```"}},
				},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]any{"promptTokenCount": 20, "candidatesTokenCount": 10},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	a := NewGeminiAdapter(Options{APIKey: "test-key", BaseURL: server.URL, Logger: quietLogger})
	if a.Format() != decode.FormatTOON {
		t.Errorf("Format() = %q, want toon", a.Format())
	}

	p, err := a.BuildPrompt("张三，年龄30", nil, personSchema)
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	img := &Image{Data: []byte("fake"), MIME: "image/webp"}
	raw, err := a.Invoke(context.Background(), p, "", img)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != p.System {
		t.Errorf("system instruction = %+v", req.SystemInstruction)
	}
	parts := req.Contents[0].Parts
	if len(parts) != 2 || parts[1].InlineData == nil || parts[1].InlineData.MimeType != "image/webp" {
		t.Errorf("parts = %+v", parts)
	}
	if req.GenerationConfig.MaxOutputTokens != GeminiDefaultMaxTokens {
		t.Errorf("maxOutputTokens = %d", req.GenerationConfig.MaxOutputTokens)
	}

	values, err := a.DecodeResponse(raw, personSchema)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if len(values) != 2 || values[0].Value != "张三" || values[1].Value != int64(30) {
		t.Errorf("values = %+v", values)
	}
}

func TestGeminiAdapter_Errors(t *testing.T) {
	t.Run("status error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
		}))
		defer server.Close()

		a := NewGeminiAdapter(Options{APIKey: "bad", BaseURL: server.URL, Logger: quietLogger})
		_, err := a.Invoke(context.Background(), Prompt{User: "u"}, "", nil)
		if !apperr.Is(err, apperr.KindLLM) {
			t.Fatalf("error = %v, want llm kind", err)
		}
		if ae, _ := apperr.As(err); !strings.Contains(ae.Message, "API key not valid") {
			t.Errorf("Message = %q, want the vendor message", ae.Message)
		}
		if a.HealthCheck(context.Background()) {
			t.Error("HealthCheck() = true, want false")
		}
	})

	t.Run("blocked prompt", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
		}))
		defer server.Close()

		a := NewGeminiAdapter(Options{APIKey: "k", BaseURL: server.URL, Logger: quietLogger})
		_, err := a.Invoke(context.Background(), Prompt{User: "u"}, "", nil)
		if !apperr.Is(err, apperr.KindLLM) || !strings.Contains(err.Error(), "SAFETY") {
			t.Errorf("error = %v", err)
		}
	})
}

func TestGeminiAdapter_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1beta/models" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"models":[{"name":"models/gemini-2.0-flash"}]}`)
	}))
	defer server.Close()

	a := NewGeminiAdapter(Options{APIKey: "k", BaseURL: server.URL, Logger: quietLogger})
	if !a.HealthCheck(context.Background()) {
		t.Error("HealthCheck() = false, want true")
	}
}
