// Package tts defines the Provider interface for speech synthesis backends.
//
// Synthesis produces a complete audio file's bytes; the pipeline writes them
// to a temp file with a fresh UUID name, plays it, and deletes it. Backends
// that stream internally buffer behind this interface.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any synthesis backend.
type Provider interface {
	// Name returns a short stable identifier ("exec", "mock") used in
	// configuration and logs.
	Name() string

	// Synthesize renders text as playable audio (WAV unless the backend
	// documents otherwise). language is a BCP-47 code; empty uses the
	// backend default voice.
	Synthesize(ctx context.Context, text, language string) ([]byte, error)

	// Close releases backend resources.
	Close() error
}
