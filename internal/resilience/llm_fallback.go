package resilience

import (
	"context"

	"github.com/MrWong99/courtside/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// LLM backends. Each backend has its own circuit breaker; when the primary fails
// or its breaker is open, the next healthy fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried. A cancelled
// ctx stops the failover chain.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return p.Complete(ctx, req)
	})
}

// Model returns the primary's model identifier.
func (f *LLMFallback) Model() string {
	return f.group.entries[0].value.Model()
}

// Available reports whether any backend's circuit breaker is not open.
func (f *LLMFallback) Available() bool {
	return f.group.Available()
}

// Names returns the backend names in failover order.
func (f *LLMFallback) Names() []string {
	return f.group.Names()
}
