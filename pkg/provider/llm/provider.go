// Package llm defines the Provider interface for text-generation backends.
//
// An LLM provider wraps a remote or local model API (Gemini, OpenAI, or any
// vendor reachable through any-llm-go) behind one request/response call. The
// coach uses it for per-turn feedback, final assessments, the coach's next
// line and scenario personalisation. Most of those calls expect a JSON object
// back; [CompletionRequest.ResponseSchema] lets providers that support
// structured output constrain the reply, but callers still validate it.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation. Providers without a dedicated system field prepend it as a
	// "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation. The last message is typically from
	// the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness. Zero means provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int

	// ResponseSchema, when non-nil, requests a JSON object reply. Providers
	// that support schema-constrained output pass the JSON Schema through;
	// others fall back to a plain JSON mode.
	ResponseSchema map[string]any
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	// Content is the text of the reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is done first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
