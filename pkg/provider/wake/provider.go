// Package wake defines the Provider interface for wake-word detection.
//
// The pipeline hands each voice segment to the detector until one reports a
// hit; the following segment is then treated as the command. Sources that
// gate on their own hardware set skip_wake_word and bypass detection.
package wake

import (
	"context"

	"github.com/droman42/irene/pkg/audio"
)

// Detection is the outcome of scanning one segment.
type Detection struct {
	// Detected reports whether a wake phrase was heard.
	Detected bool

	// Phrase is the matched wake phrase, when detected.
	Phrase string

	// Confidence is the detector's score in [0, 1].
	Confidence float64
}

// Provider is the abstraction over any wake-word backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name returns a short stable identifier ("phrase", "mock").
	Name() string

	// Detect scans one voice segment for a wake phrase.
	Detect(ctx context.Context, seg audio.Segment, language string) (Detection, error)
}
