// Package llm defines the Provider interface for the Large Language Model
// backends used by the cloud intent fallback.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, Gemini,
// a local Ollama instance, ...) behind a single blocking Complete call. The
// fallback only ever needs one short JSON answer per transcript, so no
// streaming or tool-calling surface is exposed, and answers cut off at the
// token limit are reported as [ErrTruncated] instead of returned.
//
// Implementations must be safe for concurrent use.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrTruncated is returned when the backend stopped at the token limit.
	// The partial answer is discarded.
	ErrTruncated = errors.New("llm: completion truncated at the token limit")

	// ErrRefused is returned when the model declined to answer.
	ErrRefused = errors.New("llm: model refused the request")
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single message in a completion request.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser] or [RoleAssistant].
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is usually from
	// the user and drives the response.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means the provider
	// default.
	MaxTokens int

	// SystemPrompt is injected before Messages as a system-role message.
	SystemPrompt string

	// JSON asks for a reply that is a single JSON object. Backends with a
	// native JSON mode enforce it; the others are told so in an extra system
	// message.
	JSON bool
}

// CompletionResponse is returned by [Provider.Complete].
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response. It
	// returns promptly with ctx.Err() when ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model identifier requests are sent to.
	Model() string
}
