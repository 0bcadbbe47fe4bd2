package provider

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// MockProvider is a deterministic in-process Provider for tests that don't
// need a real model call — session/compaction/retry tests build one of
// these rather than hitting a network API. Grounded on
// internal/provider/mock_provider_test.go's intent (a scriptable fake model
// backend), reshaped around the eino schema.Pipe streaming primitive
// (internal/provider/provider.go's CompletionStream) instead of an HTTP
// mock server, since there is no concrete HTTP client left to intercept.
type MockProvider struct {
	id     string
	models []ModelInfo
	// Script returns the sequence of message deltas (and an optional final
	// error) to emit for one CreateCompletion call. Defaults to a single
	// "ok" text reply with no ResponseMeta (no finish reason, no usage).
	Script func(req *CompletionRequest) (deltas []*schema.Message, err error)
}

// NewMockProvider creates a mock registered under id, offering models.
func NewMockProvider(id string, models []ModelInfo) *MockProvider {
	return &MockProvider{id: id, models: models}
}

func (m *MockProvider) ID() string          { return m.id }
func (m *MockProvider) Name() string        { return m.id }
func (m *MockProvider) Models() []ModelInfo { return m.models }

// CreateCompletion streams whatever Script returns (or a single "ok" text
// reply by default), via a real schema.Pipe so callers exercise the actual
// StreamReader/StreamWriter contract.
func (m *MockProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	script := m.Script
	if script == nil {
		script = func(*CompletionRequest) ([]*schema.Message, error) {
			return []*schema.Message{{Role: schema.Assistant, Content: "ok"}}, nil
		}
	}
	deltas, scriptErr := script(req)

	sr, sw := schema.Pipe[*schema.Message](len(deltas) + 1)
	go func() {
		defer sw.Close()
		for _, d := range deltas {
			sw.Send(d, nil)
		}
		if scriptErr != nil {
			sw.Send(nil, scriptErr)
		}
	}()

	return NewCompletionStream(sr), nil
}
