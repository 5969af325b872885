// Package mock provides a scripted wake.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/droman42/irene/pkg/audio"
	"github.com/droman42/irene/pkg/provider/wake"
)

var _ wake.Provider = (*Provider)(nil)

// Provider yields scripted detections in order, then misses.
type Provider struct {
	mu      sync.Mutex
	scripts []wake.Detection
	next    int

	// Err forces every call to fail.
	Err error
}

// New creates a mock yielding the given detections in order.
func New(scripts ...wake.Detection) *Provider {
	return &Provider{scripts: scripts}
}

// Hit is a convenience detection for the default wake phrase.
func Hit() wake.Detection {
	return wake.Detection{Detected: true, Phrase: "ирина", Confidence: 0.97}
}

func (p *Provider) Name() string { return "mock" }

func (p *Provider) Detect(_ context.Context, _ audio.Segment, _ string) (wake.Detection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return wake.Detection{}, p.Err
	}
	if p.next >= len(p.scripts) {
		return wake.Detection{}, nil
	}
	out := p.scripts[p.next]
	p.next++
	return out, nil
}
