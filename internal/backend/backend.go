// Package backend abstracts the text-generation providers behind a single
// interface. The orchestrator never inspects provider identity at call sites;
// the concrete backend is chosen once at construction from configuration.
package backend

import "context"

// Kind identifies a provider family. The set is closed: adding a provider
// means adding a constructor, not a string branch in callers.
type Kind string

const (
	KindOpenAI Kind = "openai"
	KindOllama Kind = "ollama"
)

// Request carries one generation call. System is optional; Prompt is the
// fully composed instruction text.
type Request struct {
	System string
	Prompt string
	Params Params
}

// Usage reports token accounting. Provider-reported numbers win; when a
// provider reports nothing the backend fills in an estimate.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed generation. FinishReason is the provider's
// completion reason ("stop", "length", ...), empty when not reported.
type Response struct {
	Text         string
	FinishReason string
	Usage        Usage
	Estimated    bool // true when Usage is estimated rather than provider-reported
}

// Fragment is one streamed chunk. A terminal fragment carries Err (stream
// failed) or Done (stream completed); Usage and FinishReason are only
// meaningful on the Done fragment.
type Fragment struct {
	Text         string
	Done         bool
	Usage        Usage
	FinishReason string
	Err          error
}

// ModelInfo describes the configured model for status surfaces.
type ModelInfo struct {
	Kind          Kind   `json:"kind"`
	Name          string `json:"name"`
	ContextWindow int    `json:"context_window,omitempty"`
}

// Backend is implemented by each provider client.
//
// GenerateStream returns a channel the backend closes after sending a
// terminal fragment. Cancelling ctx terminates the stream; the backend sends
// a fragment carrying ctx's error before closing.
type Backend interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	GenerateStream(ctx context.Context, req Request) (<-chan Fragment, error)
	IsAvailable(ctx context.Context) bool
	ModelInfo() ModelInfo

	// EstimateTokens approximates token count for prompt budgeting when the
	// provider has not reported usage.
	EstimateTokens(text string) int
}
