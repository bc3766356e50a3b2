package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/decode"
)

// Mock is the id reported by MockAdapter.
const Mock ID = "mock"

// MockAdapter is an Adapter for testing. It returns ResponseText from every
// Invoke and records the calls it received.
type MockAdapter struct {
	base

	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	ResponseText string
	Healthy      bool

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	calls        []MockCall
}

// MockCall is one recorded Invoke.
type MockCall struct {
	Prompt Prompt
	Model  string
	Image  *Image
}

// NewMockAdapter creates a mock adapter instructing format and listing
// models.
func NewMockAdapter(format decode.Format, models ...ModelInfo) *MockAdapter {
	if len(models) == 0 {
		models = []ModelInfo{{
			Name:         "mock-model",
			DisplayName:  "Mock",
			Provider:     string(Mock),
			MaxTokens:    4096,
			Capabilities: []string{CapText, CapVision},
		}}
	}
	return &MockAdapter{
		base:    newBase(Mock, models[0].Name, format, models, nil),
		Healthy: true,
	}
}

// Invoke records the call and returns ResponseText.
func (m *MockAdapter) Invoke(ctx context.Context, p Prompt, model string, image *Image) (string, error) {
	count := m.requestCount.Add(1)

	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Prompt: p, Model: m.modelOr(model), Image: image})
	m.mu.Unlock()

	if m.ShouldFail {
		return "", apperr.LLM("mock call failed", fmt.Errorf("mock adapter configured to fail (request %d)", count))
	}

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.ResponseText, nil
}

// HealthCheck returns Healthy.
func (m *MockAdapter) HealthCheck(context.Context) bool {
	return m.Healthy
}

// Calls returns the recorded Invoke calls.
func (m *MockAdapter) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// RequestCount returns the number of Invoke calls.
func (m *MockAdapter) RequestCount() int64 {
	return m.requestCount.Load()
}

var _ Adapter = (*MockAdapter)(nil)
