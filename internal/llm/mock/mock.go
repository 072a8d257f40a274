// Package mock provides a test double for llm.Provider.
//
// Responses are served in order; once they run out, Response is returned for
// every further call. Every call is recorded.
//
//	p := &mock.Provider{Responses: []string{`{"type":"question","confidence":0.9}`, "Rebase replays commits."}}
package mock

import (
	"context"
	"sync"

	"voxgit/internal/llm"
)

type Call struct {
	Ctx context.Context
	Req llm.Request
}

type Provider struct {
	mu sync.Mutex

	// Responses are returned one per call, in order.
	Responses []string

	// Response is returned once Responses is exhausted.
	Response string

	// Err, if non-nil, is returned by every call.
	Err error

	// Calls records every invocation in order.
	Calls []Call
}

func (p *Provider) Complete(ctx context.Context, req llm.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req})
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Responses) > 0 {
		out := p.Responses[0]
		p.Responses = p.Responses[1:]
		return out, nil
	}
	return p.Response, nil
}

// CallCount is safe to call while other goroutines use the mock.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastRequest returns the most recent request, or the zero Request.
func (p *Provider) LastRequest() llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return llm.Request{}
	}
	return p.Calls[len(p.Calls)-1].Req
}

func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

var _ llm.Provider = (*Provider)(nil)
