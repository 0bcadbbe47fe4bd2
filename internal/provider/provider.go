// Package provider is the model-provider boundary (spec §4.3 step 3: "the
// model stream" the Agent Loop and Compaction Engine both call through the
// Retry Wrapper). It defines the Provider interface and a Registry; it owns
// no concrete HTTP clients — those are out of scope (see DESIGN.md).
//
// Grounded on internal/provider/provider.go and registry.go: the same
// cloudwego/eino schema.Message/schema.ToolInfo/schema.StreamReader
// boundary types, the same CompletionRequest/CompletionStream shape, and
// the same Registry (Register/Get/List/GetModel/AllModels/DefaultModel)
// API, trimmed of the teacher's concrete Anthropic/OpenAI/Ark constructors
// and its config-driven InitializeProviders bootstrapper.
package provider

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/schema"
)

// ModelInfo describes one model a Provider exposes.
type ModelInfo struct {
	ID                  string
	Name                string
	ContextWindowTokens int
	SupportsReasoning   bool
}

// Provider is an LLM backend exposing one or more models (spec §4.3, §4.7).
type Provider interface {
	ID() string
	Name() string
	Models() []ModelInfo
	CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error)
}

// CompletionRequest is one model call (spec §4.3 "build context").
type CompletionRequest struct {
	Model           string
	Messages        []*schema.Message
	Tools           []*schema.ToolInfo
	MaxTokens       int
	Temperature     float64
	ReasoningEffort string
}

// CompletionStream wraps an eino stream reader of assistant message deltas.
type CompletionStream struct {
	reader *schema.StreamReader[*schema.Message]
}

// NewCompletionStream wraps reader as a CompletionStream.
func NewCompletionStream(reader *schema.StreamReader[*schema.Message]) *CompletionStream {
	return &CompletionStream{reader: reader}
}

// Recv receives the next message delta from the stream.
func (s *CompletionStream) Recv() (*schema.Message, error) {
	return s.reader.Recv()
}

// Close releases the stream.
func (s *CompletionStream) Close() {
	s.reader.Close()
}

// ErrModelNotFound is returned by Registry.GetModel for an unknown
// provider/model pair.
var ErrModelNotFound = errors.New("provider: model not found")

// ErrProviderNotFound is returned by Registry.Get for an unregistered
// provider id.
var ErrProviderNotFound = errors.New("provider: not found")
