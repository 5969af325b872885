package vad

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/droman42/irene/pkg/audio"
)

// Test frames are 20 ms of 16 kHz mono PCM: a 400 Hz tone for voice, zeros
// for silence.
const (
	testRate         = 16000
	testFrameSamples = 320
)

func voicedFrame(ts time.Duration) audio.Frame {
	samples := make([]int16, testFrameSamples)
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*400*float64(i)/testRate))
	}
	return audio.Frame{Data: audio.FromSamples(samples), SampleRate: testRate, Channels: 1, Timestamp: ts}
}

func silentFrame(ts time.Duration) audio.Frame {
	return audio.Frame{Data: make([]byte, testFrameSamples*2), SampleRate: testRate, Channels: 1, Timestamp: ts}
}

func testConfig() Config {
	return Config{
		VoiceFramesRequired:   2,
		SilenceFramesRequired: 3,
		UseZCR:                true,
	}
}

func TestProcessFrame_AllSilenceEmitsNothing(t *testing.T) {
	p := New(testConfig())

	for i := range 50 {
		if _, ok := p.ProcessFrame(silentFrame(time.Duration(i) * 20 * time.Millisecond)); ok {
			t.Fatalf("frame %d: unexpected segment from pure silence", i)
		}
	}
	if p.State() != StateSilence {
		t.Errorf("state = %v, want silence", p.State())
	}
}

func TestProcessFrame_VoiceThenSilenceEmitsOneSegment(t *testing.T) {
	p := New(testConfig())

	var ts time.Duration
	feed := func(f audio.Frame) (audio.Segment, bool) {
		seg, ok := p.ProcessFrame(f)
		ts += 20 * time.Millisecond
		return seg, ok
	}

	for range 10 {
		if _, ok := feed(voicedFrame(ts)); ok {
			t.Fatal("segment emitted before any silence")
		}
	}
	if p.State() != StateVoiceActive {
		t.Fatalf("state after voiced run = %v, want active", p.State())
	}

	var got audio.Segment
	var emitted bool
	for range 3 {
		if seg, ok := feed(silentFrame(ts)); ok {
			got, emitted = seg, ok
		}
	}
	if !emitted {
		t.Fatal("no segment after confirmed offset")
	}

	// 10 voiced frames plus the single retained trailing silent frame.
	wantBytes := 11 * testFrameSamples * 2
	if len(got.PCM) != wantBytes {
		t.Errorf("segment PCM = %d bytes, want %d", len(got.PCM), wantBytes)
	}
	if got.Truncated {
		t.Error("silence-terminated segment marked truncated")
	}
	if got.SampleRate != testRate || got.Channels != 1 {
		t.Errorf("segment layout = %d ch @ %d Hz", got.Channels, got.SampleRate)
	}
	if got.Duration != 11*20*time.Millisecond {
		t.Errorf("segment duration = %v", got.Duration)
	}
}

func TestProcessFrame_OnsetFlickerDoesNotStartSegment(t *testing.T) {
	p := New(testConfig())

	// One voiced frame below the onset run, then silence.
	if _, ok := p.ProcessFrame(voicedFrame(0)); ok {
		t.Fatal("segment from a single voiced frame")
	}
	for i := range 10 {
		if _, ok := p.ProcessFrame(silentFrame(time.Duration(i+1) * 20 * time.Millisecond)); ok {
			t.Fatal("segment from onset flicker")
		}
	}
	if p.State() != StateSilence {
		t.Errorf("state = %v, want silence after flicker", p.State())
	}
}

func TestProcessFrame_DurationCapTruncates(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSegmentDuration = 100 * time.Millisecond
	p := New(cfg)

	var got audio.Segment
	var emitted bool
	for i := range 20 {
		if seg, ok := p.ProcessFrame(voicedFrame(time.Duration(i) * 20 * time.Millisecond)); ok {
			got, emitted = seg, ok
			break
		}
	}
	if !emitted {
		t.Fatal("no segment despite exceeding the duration cap")
	}
	if !got.Truncated {
		t.Error("capped segment not marked truncated")
	}
	if got.Duration < 100*time.Millisecond {
		t.Errorf("segment duration = %v, want >= cap", got.Duration)
	}
}

func TestProcessFrame_MalformedFramesSkipped(t *testing.T) {
	p := New(testConfig())

	bad := audio.Frame{Data: []byte{1, 2, 3}, SampleRate: testRate, Channels: 1}
	if _, ok := p.ProcessFrame(bad); ok {
		t.Fatal("segment from malformed frame")
	}
	if p.MalformedCount != 1 {
		t.Errorf("MalformedCount = %d, want 1", p.MalformedCount)
	}
}

func TestProcessStream_FlushesTrailingVoice(t *testing.T) {
	p := New(testConfig())

	frames := make(chan audio.Frame, 8)
	for i := range 6 {
		frames <- voicedFrame(time.Duration(i) * 20 * time.Millisecond)
	}
	close(frames)

	var segs []audio.Segment
	for seg := range p.ProcessStream(context.Background(), frames) {
		segs = append(segs, seg)
	}

	if len(segs) != 1 {
		t.Fatalf("segments = %d, want 1 flushed at stream end", len(segs))
	}
	if len(segs[0].PCM) != 6*testFrameSamples*2 {
		t.Errorf("flushed PCM = %d bytes", len(segs[0].PCM))
	}
}

func TestProcessStream_ContextCancelCloses(t *testing.T) {
	p := New(testConfig())
	ctx, cancel := context.WithCancel(context.Background())

	frames := make(chan audio.Frame)
	out := p.ProcessStream(ctx, frames)
	cancel()

	select {
	case _, more := <-out:
		if more {
			t.Fatal("segment emitted after cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("segment channel did not close on context cancel")
	}
}
