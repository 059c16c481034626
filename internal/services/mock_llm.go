package services

import (
	"context"
	"sync"
)

// MockLLM is a mock implementation of LLMService and ModelLister for testing
type MockLLM struct {
	GenerateFunc   func(ctx context.Context, req GenerateRequest) (string, error)
	PingFunc       func(ctx context.Context) error
	ListModelsFunc func(ctx context.Context) ([]string, error)

	// Track calls for testing
	GenerateCalls   []GenerateRequest
	PingCalls       int
	ListModelsCalls int

	apiKey string

	mu sync.Mutex // protects all fields above
}

var (
	_ LLMService  = (*MockLLM)(nil)
	_ ModelLister = (*MockLLM)(nil)
)

// NewMockLLM creates a mock that answers "Mock response".
func NewMockLLM() *MockLLM {
	return &MockLLM{
		GenerateCalls: make([]GenerateRequest, 0),
	}
}

// Generate mocks a completion
func (m *MockLLM) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	m.mu.Lock()
	m.GenerateCalls = append(m.GenerateCalls, req)
	fn := m.GenerateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return "Mock response", nil
}

// Ping mocks a reachability probe
func (m *MockLLM) Ping(ctx context.Context) error {
	m.mu.Lock()
	m.PingCalls++
	fn := m.PingFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return nil
}

// ListModels mocks model listing
func (m *MockLLM) ListModels(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	m.ListModelsCalls++
	fn := m.ListModelsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return []string{"mock-model"}, nil
}

// SetAPIKey stores a credential so the mock can stand in for a hosted
// provider.
func (m *MockLLM) SetAPIKey(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiKey = key
}

// APIKey returns the stored credential.
func (m *MockLLM) APIKey() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apiKey
}

// SetGenerateResponse makes every Generate call return text.
func (m *MockLLM) SetGenerateResponse(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateFunc = func(ctx context.Context, req GenerateRequest) (string, error) {
		return text, nil
	}
}

// SetGenerateError makes every Generate call fail with err.
func (m *MockLLM) SetGenerateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateFunc = func(ctx context.Context, req GenerateRequest) (string, error) {
		return "", err
	}
}

// SetGenerateSequence returns the given replies in order, then repeats the
// last one.
func (m *MockLLM) SetGenerateSequence(replies ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := 0
	m.GenerateFunc = func(ctx context.Context, req GenerateRequest) (string, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if len(replies) == 0 {
			return "", nil
		}
		r := replies[min(i, len(replies)-1)]
		i++
		return r, nil
	}
}

// SetUnreachable makes Ping and ListModels fail with err.
func (m *MockLLM) SetUnreachable(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PingFunc = func(ctx context.Context) error { return err }
	m.ListModelsFunc = func(ctx context.Context) ([]string, error) { return nil, err }
}

// SetModels makes ListModels return names.
func (m *MockLLM) SetModels(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListModelsFunc = func(ctx context.Context) ([]string, error) {
		return names, nil
	}
}

// GetCalls returns a copy of the Generate calls in a thread-safe way
func (m *MockLLM) GetCalls() []GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GenerateRequest, len(m.GenerateCalls))
	copy(out, m.GenerateCalls)
	return out
}

// Reset clears all call tracking
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateCalls = make([]GenerateRequest, 0)
	m.PingCalls = 0
	m.ListModelsCalls = 0
}
