package audio

import (
	"fmt"
	"time"

	"layeh.com/gopus"
)

// WebSocket transport audio: 48 kHz stereo Opus at 20 ms frame size, matching
// what browser capture stacks emit by default.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20
	// opusFrameSize is samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
)

// OpusDecoder decodes a single client's Opus packet stream into PCM frames.
// One decoder per stream; Opus decoders are stateful across packets.
// Not safe for concurrent use.
type OpusDecoder struct {
	dec     *gopus.Decoder
	elapsed time.Duration
}

// NewOpusDecoder creates a decoder for the transport's 48 kHz stereo stream.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode decodes one Opus packet into a PCM [Frame]. The frame's timestamp
// advances by the packet duration on every call.
func (d *OpusDecoder) Decode(packet []byte) (Frame, error) {
	pcm, err := d.dec.Decode(packet, opusFrameSize, false)
	if err != nil {
		return Frame{}, fmt.Errorf("audio: opus decode: %w", err)
	}
	f := Frame{
		Data:       FromSamples(pcm),
		SampleRate: opusSampleRate,
		Channels:   opusChannels,
		Timestamp:  d.elapsed,
	}
	d.elapsed += opusFrameSizeMs * time.Millisecond
	return f, nil
}
