// Package asr defines the Provider interface for speech recognition
// backends.
//
// The pipeline is segment oriented: voice activity detection carves the
// audio stream into bounded segments, and each segment is transcribed as one
// blocking call. Backends that stream internally buffer behind this
// interface.
//
// Implementations must be safe for concurrent use.
package asr

import (
	"context"

	"github.com/droman42/irene/pkg/audio"
)

// Provider is the abstraction over any transcription backend.
type Provider interface {
	// Name returns a short stable identifier ("whisper", "mock") used in
	// configuration and logs.
	Name() string

	// Transcribe converts one voice segment to text. language is a BCP-47
	// code ("ru", "en"); empty lets the backend auto-detect. An empty
	// string with nil error means the segment contained no recognisable
	// speech.
	Transcribe(ctx context.Context, seg audio.Segment, language string) (string, error)

	// Close releases backend resources (loaded models, connections).
	Close() error
}
