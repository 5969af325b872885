// Package llm defines the Provider interface for Large Language Model
// backends.
//
// Two parts of the runtime call LLMs: the conversation handler (free-form
// dialogue with per-handler history) and the optional LLM-as-NLU stage
// (structured intent classification with a constrained output). Both go
// through the same Provider so backends can be swapped by configuration.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Message is one turn of a chat-style prompt.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// CompletionRequest carries everything the model needs to produce a
// response. Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation, last message driving the
	// response.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests
	// near-deterministic decoding, which the NLU stage relies on.
	Temperature float64

	// MaxTokens caps the completion length. Zero uses the provider default.
	MaxTokens int

	// ResponseJSON asks the provider to constrain output to a single JSON
	// object, where the backend supports it. Callers must still validate
	// the parsed result.
	ResponseJSON bool
}

// Completion is a finished model response.
type Completion struct {
	// Text is the full response content.
	Text string

	// Model identifies the backend model that produced the response.
	Model string

	// PromptTokens and CompletionTokens are the backend's token accounting,
	// zero when the backend does not report usage.
	PromptTokens     int
	CompletionTokens int
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// Name returns a short stable identifier ("openai", "anyllm", "mock")
	// used in configuration and logs.
	Name() string

	// Complete performs one blocking completion. It honours ctx cancellation
	// and deadlines.
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}
