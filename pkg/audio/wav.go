package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// uploadFrameDuration is the frame size uploaded audio is chopped into
// before entering the pipeline. 20 ms matches the transport frame size.
const uploadFrameDuration = 20 * time.Millisecond

var errNotWAV = errors.New("audio: not a RIFF/WAVE file")

// DecodeWAV parses a PCM WAV file and returns its sample data and layout.
// Only uncompressed 16-bit PCM is supported; anything else is an error.
func DecodeWAV(data []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, errNotWAV
	}

	// Walk the chunk list; fmt must precede data.
	var haveFmt bool
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			return nil, 0, 0, fmt.Errorf("audio: wav chunk %q overruns file", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, errors.New("audio: wav fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, 0, 0, fmt.Errorf("audio: unsupported wav format %d, want PCM", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if bits != 16 {
				return nil, 0, 0, fmt.Errorf("audio: unsupported wav bit depth %d, want 16", bits)
			}
			if channels < 1 || channels > 2 || sampleRate <= 0 {
				return nil, 0, 0, fmt.Errorf("audio: unsupported wav layout: %d ch @ %d Hz", channels, sampleRate)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, 0, 0, errors.New("audio: wav data chunk before fmt chunk")
			}
			return data[body : body+size], sampleRate, channels, nil
		}

		// Chunks are word-aligned.
		off = body + size + size%2
	}
	return nil, 0, 0, errors.New("audio: wav file has no data chunk")
}

// FramesFromPCM chops a PCM buffer into 20 ms frames and sends them on the
// returned channel, which closes after the last frame. A trailing partial
// frame is sent as-is.
func FramesFromPCM(pcm []byte, sampleRate, channels int) <-chan Frame {
	out := make(chan Frame, 16)
	go func() {
		defer close(out)
		frameBytes := sampleRate * int(uploadFrameDuration.Milliseconds()) / 1000 * channels * 2
		if frameBytes <= 0 {
			return
		}
		var ts time.Duration
		for off := 0; off < len(pcm); off += frameBytes {
			end := min(off+frameBytes, len(pcm))
			f := Frame{
				Data:       pcm[off:end],
				SampleRate: sampleRate,
				Channels:   channels,
				Timestamp:  ts,
			}
			out <- f
			ts += f.Duration()
		}
	}()
	return out
}
