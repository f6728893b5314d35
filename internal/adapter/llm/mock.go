package llm

import (
	"context"
	"sync"
	"time"

	"agency-ai/internal/domain"
)

// MockProvider returns scripted responses. It backs the "mock" provider
// type for offline development and is used directly in tests.
type MockProvider struct {
	name string

	// Delay is applied before each response, honoring ctx cancellation.
	Delay time.Duration

	mu      sync.Mutex
	scripts []mockResult
	calls   []domain.InferenceRequest
}

type mockResult struct {
	resp *domain.InferenceResponse
	err  error
}

// NewMockProvider creates a mock provider. Without scripted results it
// answers every request with a canned response and zero usage.
func NewMockProvider(name string) *MockProvider {
	if name == "" {
		name = "mock"
	}
	return &MockProvider{name: name}
}

// Script queues a successful response returned on a subsequent call.
func (m *MockProvider) Script(text string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, mockResult{resp: &domain.InferenceResponse{Text: text}})
	return m
}

// ScriptError queues a failure returned on a subsequent call.
func (m *MockProvider) ScriptError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, mockResult{err: err})
	return m
}

// Calls returns a copy of every request seen so far.
func (m *MockProvider) Calls() []domain.InferenceRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.InferenceRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// Generate implements domain.InferenceProvider. Scripted results are
// consumed in order; once exhausted it falls back to the canned response.
func (m *MockProvider) Generate(ctx context.Context, req domain.InferenceRequest) (*domain.InferenceResponse, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	if len(m.scripts) > 0 {
		next := m.scripts[0]
		m.scripts = m.scripts[1:]
		if next.err != nil {
			return nil, next.err
		}
		resp := *next.resp
		if resp.Model == "" {
			resp.Model = req.Model
		}
		return &resp, nil
	}

	return &domain.InferenceResponse{
		Text:  "mock response to: " + req.Message,
		Model: req.Model,
	}, nil
}

// Name implements domain.InferenceProvider.
func (m *MockProvider) Name() string { return m.name }

var _ domain.InferenceProvider = (*MockProvider)(nil)
