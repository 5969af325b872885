// Package mock provides a scripted llm.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/droman42/irene/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider yields scripted completions in order, repeating the last one.
type Provider struct {
	mu      sync.Mutex
	scripts []string
	next    int

	// Err forces every call to fail.
	Err error

	// Requests records every request seen, for assertions.
	Requests []llm.CompletionRequest
}

// New creates a mock yielding the given completion texts in order.
func New(scripts ...string) *Provider {
	return &Provider{scripts: scripts}
}

func (p *Provider) Name() string { return "mock" }

func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return llm.Completion{}, p.Err
	}
	if len(p.scripts) == 0 {
		return llm.Completion{Text: "", Model: "mock"}, nil
	}
	i := p.next
	if i >= len(p.scripts) {
		i = len(p.scripts) - 1
	} else {
		p.next++
	}
	return llm.Completion{Text: p.scripts[i], Model: "mock"}, nil
}
