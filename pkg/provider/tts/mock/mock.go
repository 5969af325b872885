// Package mock provides a canned tts.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/droman42/irene/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// Provider records synthesis requests and returns fixed bytes.
type Provider struct {
	// Audio is returned by every call. Defaults to a short placeholder.
	Audio []byte

	// Err forces every call to fail.
	Err error

	mu    sync.Mutex
	Texts []string
}

// New creates a mock returning placeholder audio bytes.
func New() *Provider {
	return &Provider{Audio: []byte("RIFFmock")}
}

func (p *Provider) Name() string { return "mock" }

func (p *Provider) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	p.mu.Lock()
	p.Texts = append(p.Texts, text)
	p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Audio, nil
}

func (p *Provider) Close() error { return nil }
