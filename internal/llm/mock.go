package llm

import (
	"context"
	"sync"
)

// MockGenerator is a test double. Respond, when set, takes precedence over
// Response/Err. Calls are recorded and safe for concurrent use.
type MockGenerator struct {
	Response string
	Err      error
	Respond  func(ctx context.Context, req Request) (string, error)

	mu    sync.Mutex
	calls []Request
}

func (m *MockGenerator) Name() string { return "mock" }

func (m *MockGenerator) Generate(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.Respond != nil {
		return m.Respond(ctx, req)
	}
	return m.Response, m.Err
}

// Calls returns a copy of the requests received so far.
func (m *MockGenerator) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}
