package audio

import (
	"encoding/binary"
	"testing"
	"time"
)

// buildWAV assembles a minimal PCM WAV file around pcm.
func buildWAV(pcm []byte, sampleRate, channels int, format, bits uint16) []byte {
	out := make([]byte, 0, 44+len(pcm))
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(36+len(pcm)))
	out = append(out, "WAVE"...)

	out = append(out, "fmt "...)
	out = binary.LittleEndian.AppendUint32(out, 16)
	out = binary.LittleEndian.AppendUint16(out, format)
	out = binary.LittleEndian.AppendUint16(out, uint16(channels))
	out = binary.LittleEndian.AppendUint32(out, uint32(sampleRate))
	byteRate := sampleRate * channels * int(bits) / 8
	out = binary.LittleEndian.AppendUint32(out, uint32(byteRate))
	out = binary.LittleEndian.AppendUint16(out, uint16(channels*int(bits)/8))
	out = binary.LittleEndian.AppendUint16(out, bits)

	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(pcm)))
	out = append(out, pcm...)
	return out
}

func TestDecodeWAV_Valid(t *testing.T) {
	pcm := FromSamples([]int16{10, -10, 20, -20})
	data := buildWAV(pcm, 16000, 1, 1, 16)

	got, rate, channels, err := DecodeWAV(data)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 16000 || channels != 1 {
		t.Errorf("layout = %d ch @ %d Hz", channels, rate)
	}
	if len(got) != len(pcm) {
		t.Errorf("pcm = %d bytes, want %d", len(got), len(pcm))
	}
}

func TestDecodeWAV_SkipsForeignChunks(t *testing.T) {
	pcm := FromSamples([]int16{1, 2})
	data := buildWAV(pcm, 44100, 2, 1, 16)

	// Splice a LIST chunk between fmt and data.
	list := append([]byte("LIST"), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(list[4:], 4)
	list = append(list, "INFO"...)
	spliced := append(append(append([]byte{}, data[:36]...), list...), data[36:]...)

	got, rate, channels, err := DecodeWAV(spliced)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 44100 || channels != 2 || len(got) != len(pcm) {
		t.Errorf("decode = %d bytes, %d ch @ %d Hz", len(got), channels, rate)
	}
}

func TestDecodeWAV_Rejections(t *testing.T) {
	pcm := FromSamples([]int16{1, 2})
	tests := []struct {
		name string
		data []byte
	}{
		{"not riff", []byte("OGGSxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx")},
		{"too short", []byte("RIFF")},
		{"compressed format", buildWAV(pcm, 16000, 1, 6, 16)},
		{"eight bit", buildWAV(pcm, 16000, 1, 1, 8)},
		{"too many channels", buildWAV(pcm, 16000, 3, 1, 16)},
		{"truncated data chunk", func() []byte {
			d := buildWAV(FromSamples(make([]int16, 100)), 16000, 1, 1, 16)
			return d[:len(d)-50]
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, _, err := DecodeWAV(tt.data); err == nil {
				t.Error("malformed file accepted")
			}
		})
	}
}

func TestFramesFromPCM_ChopsInto20msFrames(t *testing.T) {
	// 50 ms of 16 kHz mono: two full 20 ms frames plus a 10 ms tail.
	pcm := FromSamples(make([]int16, 800))

	var frames []Frame
	for f := range FramesFromPCM(pcm, 16000, 1) {
		frames = append(frames, f)
	}

	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	if len(frames[0].Data) != 640 || len(frames[1].Data) != 640 {
		t.Errorf("full frame sizes = %d, %d bytes", len(frames[0].Data), len(frames[1].Data))
	}
	if len(frames[2].Data) != 320 {
		t.Errorf("tail frame = %d bytes, want the 10 ms remainder", len(frames[2].Data))
	}
	if frames[1].Timestamp != 20*time.Millisecond || frames[2].Timestamp != 40*time.Millisecond {
		t.Errorf("timestamps = %v, %v", frames[1].Timestamp, frames[2].Timestamp)
	}
}

func TestFramesFromPCM_EmptyInputClosesImmediately(t *testing.T) {
	ch := FramesFromPCM(nil, 16000, 1)
	select {
	case _, more := <-ch:
		if more {
			t.Error("frame emitted from empty input")
		}
	case <-time.After(time.Second):
		t.Fatal("channel did not close")
	}
}
