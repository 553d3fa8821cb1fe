package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/gavelhq/gavel/internal/models"
)

// MockProvider is a scripted provider for tests and dry runs. Responses are
// keyed by rendered prompt; unmatched prompts fall back to Default or echo
// the prompt.
type MockProvider struct {
	Ref       string
	Responses map[string]*models.ProviderResponse
	Default   *models.ProviderResponse
	// Err fails every call when set.
	Err error

	mu    sync.Mutex
	calls []string
}

var _ Provider = (*MockProvider)(nil)

// NewMockProvider creates a mock that echoes prompts back as output.
func NewMockProvider(ref string) *MockProvider {
	return &MockProvider{Ref: ref}
}

// ID implements Provider.
func (m *MockProvider) ID() string {
	if m.Ref == "" {
		return "mock"
	}
	return m.Ref
}

// CallAPI implements Provider.
func (m *MockProvider) CallAPI(ctx context.Context, prompt string, _ map[string]any, _ map[string]any) (*models.ProviderResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, prompt)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, fmt.Errorf("mock provider %s: %w", m.ID(), m.Err)
	}
	if resp, ok := m.Responses[prompt]; ok {
		return resp, nil
	}
	if m.Default != nil {
		return m.Default, nil
	}
	return &models.ProviderResponse{Output: prompt}, nil
}

// Calls returns the prompts received so far, in call order.
func (m *MockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}
