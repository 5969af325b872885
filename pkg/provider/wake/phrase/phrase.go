// Package phrase implements wake.Provider by transcribing the segment and
// fuzzy-matching the transcript against configured wake phrases. It trades
// latency for zero extra model dependencies: any ASR backend doubles as the
// wake detector.
package phrase

import (
	"context"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/droman42/irene/pkg/audio"
	"github.com/droman42/irene/pkg/provider/asr"
	"github.com/droman42/irene/pkg/provider/wake"
)

// DefaultThreshold is the Jaro-Winkler score a transcript word must reach
// against a wake phrase.
const DefaultThreshold = 0.86

var _ wake.Provider = (*Detector)(nil)

// Detector scans ASR transcripts for wake phrases.
type Detector struct {
	recognizer asr.Provider
	phrases    []string
	threshold  float64
}

// Option configures a [Detector].
type Option func(*Detector)

// WithThreshold overrides [DefaultThreshold].
func WithThreshold(t float64) Option {
	return func(d *Detector) { d.threshold = t }
}

// New creates a detector for the given wake phrases ("ирина", "irene").
func New(recognizer asr.Provider, phrases []string, opts ...Option) (*Detector, error) {
	if len(phrases) == 0 {
		return nil, fmt.Errorf("phrase: at least one wake phrase is required")
	}
	d := &Detector{recognizer: recognizer, threshold: DefaultThreshold}
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			d.phrases = append(d.phrases, p)
		}
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

func (d *Detector) Name() string { return "phrase" }

// Detect transcribes the segment and fuzzy-compares each transcript word to
// each wake phrase. The best-scoring phrase at or above the threshold wins.
func (d *Detector) Detect(ctx context.Context, seg audio.Segment, language string) (wake.Detection, error) {
	text, err := d.recognizer.Transcribe(ctx, seg, language)
	if err != nil {
		return wake.Detection{}, fmt.Errorf("phrase: transcribe: %w", err)
	}
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return wake.Detection{}, nil
	}

	var best wake.Detection
	for _, p := range d.phrases {
		for _, w := range words {
			if score := matchr.JaroWinkler(w, p, false); score > best.Confidence {
				best = wake.Detection{Phrase: p, Confidence: score}
			}
		}
	}
	best.Detected = best.Confidence >= d.threshold
	if !best.Detected {
		return wake.Detection{Confidence: best.Confidence}, nil
	}
	return best, nil
}
