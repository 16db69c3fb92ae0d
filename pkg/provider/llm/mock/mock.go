// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the requests the coach sends and to
// feed controlled replies without a live LLM backend. Replies are taken from
// Responses in order; once exhausted, CompleteResponse is returned. Set
// CompleteFunc for full control.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []string{`{"score": 80, "tip": "t", "sampleReply": "s"}`},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// CompleteFunc, if set, handles every call and overrides all other fields.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Responses are returned as Content one per call, in order.
	Responses []string

	// CompleteResponse is returned once Responses is exhausted.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned from every call.
	CompleteErr error

	// CompleteCalls records every call to Complete in order.
	CompleteCalls []CompleteCall
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn := p.CompleteFunc
	if fn != nil {
		p.mu.Unlock()
		return fn(ctx, req)
	}
	defer p.mu.Unlock()

	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if len(p.Responses) > 0 {
		content := p.Responses[0]
		p.Responses = p.Responses[1:]
		return &llm.CompletionResponse{Content: content}, nil
	}
	if p.CompleteResponse != nil {
		resp := *p.CompleteResponse
		return &resp, nil
	}
	return &llm.CompletionResponse{}, nil
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

var _ llm.Provider = (*Provider)(nil)
