// Package whisper implements asr.Provider on the whisper.cpp CGO bindings.
// The static library (libwhisper.a) and headers must be available at link
// time via LIBRARY_PATH and C_INCLUDE_PATH.
package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/droman42/irene/pkg/audio"
	"github.com/droman42/irene/pkg/provider/asr"
)

var _ asr.Provider = (*Provider)(nil)

// Provider transcribes segments with a whisper.cpp model loaded once at
// startup and shared across requests. Each Transcribe call gets its own
// whisper context, so calls may run concurrently.
type Provider struct {
	model    whisperlib.Model
	language string

	// The bindings expect one inference at a time per context; contexts are
	// cheap, the model is not, so the model is guarded for creation only.
	mu sync.Mutex
}

// Option configures a [Provider].
type Option func(*Provider)

// WithLanguage sets the default transcription language ("ru", "en").
// Per-call languages override it.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// New loads the whisper.cpp model at modelPath. Call Close when done.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &Provider{model: model, language: "ru"}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func (p *Provider) Name() string { return "whisper" }

// Transcribe runs one blocking inference over the segment's PCM.
func (p *Provider) Transcribe(ctx context.Context, seg audio.Segment, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(seg.PCM) < 2 {
		return "", nil
	}
	if language == "" {
		language = p.language
	}

	p.mu.Lock()
	wctx, err := p.model.NewContext()
	p.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("whisper: new context: %w", err)
	}
	if err := wctx.SetLanguage(baseLang(language)); err != nil {
		return "", fmt.Errorf("whisper: set language %q: %w", language, err)
	}

	samples := pcmToFloat32Mono(seg.PCM, seg.Channels)
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process: %w", err)
	}

	var sb strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.TrimSpace(segment.Text))
	}
	return strings.TrimSpace(sb.String()), nil
}

// Close releases the model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

func baseLang(lang string) string {
	if i := strings.IndexByte(lang, '-'); i > 0 {
		return lang[:i]
	}
	return lang
}

// pcmToFloat32Mono converts 16-bit LE PCM to mono float32 in [-1, 1],
// averaging channels. A trailing odd byte is ignored.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
