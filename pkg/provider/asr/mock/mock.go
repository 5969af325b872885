// Package mock provides a scripted asr.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/droman42/irene/pkg/audio"
	"github.com/droman42/irene/pkg/provider/asr"
)

var _ asr.Provider = (*Provider)(nil)

// Provider returns pre-scripted transcripts in order, then empty strings.
// Err, when set, is returned by every call instead.
type Provider struct {
	mu      sync.Mutex
	scripts []string
	next    int

	// Err forces every Transcribe call to fail.
	Err error

	// Calls records the segments seen, for assertions.
	Calls []audio.Segment
}

// New creates a mock that yields the given transcripts in order.
func New(scripts ...string) *Provider {
	return &Provider{scripts: scripts}
}

func (p *Provider) Name() string { return "mock" }

func (p *Provider) Transcribe(_ context.Context, seg audio.Segment, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, seg)
	if p.Err != nil {
		return "", p.Err
	}
	if p.next >= len(p.scripts) {
		return "", nil
	}
	out := p.scripts[p.next]
	p.next++
	return out, nil
}

func (p *Provider) Close() error { return nil }
