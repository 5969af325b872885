// Package audio holds the frame types and PCM plumbing shared by the voice
// pipeline: Opus decoding for transport input, downmix/resample to the ASR
// format, and the playback provider contract for synthesised responses.
package audio

import "time"

// ASR input format: whisper-class recognisers consume 16 kHz mono PCM.
const (
	ASRSampleRate = 16000
	ASRChannels   = 1
)

// Frame is a single fixed-duration chunk of little-endian int16 PCM flowing
// through the pipeline. Frames are the atomic unit the VAD consumes; typical
// durations are 10-30 ms.
type Frame struct {
	// Data is interleaved little-endian int16 PCM.
	Data []byte

	// SampleRate in Hz (48000 for Opus transport input, 16000 for ASR).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp is the frame's offset relative to stream start.
	Timestamp time.Duration
}

// Duration returns the frame's play time derived from its sample count.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Samples decodes the frame's PCM bytes into int16 samples.
func (f Frame) Samples() []int16 {
	out := make([]int16, len(f.Data)/2)
	for i := range out {
		out[i] = int16(f.Data[i*2]) | int16(f.Data[i*2+1])<<8
	}
	return out
}

// FromSamples encodes int16 samples as little-endian PCM bytes.
func FromSamples(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// Segment is a contiguous run of voiced frames emitted by the VAD, bounded by
// detected onset and offset.
type Segment struct {
	// PCM is the concatenated frame data in the stream's format.
	PCM []byte

	// SampleRate and Channels describe the PCM layout.
	SampleRate int
	Channels   int

	// Start is the timestamp of the first frame in the segment.
	Start time.Duration

	// Duration is the total voiced duration.
	Duration time.Duration

	// Truncated marks segments force-closed by the maximum-duration cap
	// rather than by detected silence.
	Truncated bool
}
