package audio

import (
	"testing"
	"time"
)

func TestToASRFormat_PassThrough(t *testing.T) {
	f := Frame{Data: FromSamples([]int16{1, 2, 3}), SampleRate: ASRSampleRate, Channels: 1}
	got := ToASRFormat(f)
	if &got.Data[0] != &f.Data[0] {
		t.Error("ASR-format frame was copied")
	}
}

func TestToASRFormat_DownmixesStereo(t *testing.T) {
	// Interleaved L/R pairs; mono output is the pair average.
	stereo := FromSamples([]int16{1000, 2000, -400, -600})
	f := Frame{Data: stereo, SampleRate: ASRSampleRate, Channels: 2}

	got := ToASRFormat(f)
	if got.Channels != 1 || got.SampleRate != ASRSampleRate {
		t.Fatalf("layout = %d ch @ %d Hz", got.Channels, got.SampleRate)
	}
	samples := got.Samples()
	if len(samples) != 2 || samples[0] != 1500 || samples[1] != -500 {
		t.Errorf("downmixed samples = %v, want [1500 -500]", samples)
	}
}

func TestToASRFormat_Downsamples(t *testing.T) {
	// One second of 48 kHz mono becomes one second at 16 kHz.
	src := make([]int16, 48000)
	f := Frame{Data: FromSamples(src), SampleRate: 48000, Channels: 1}

	got := ToASRFormat(f)
	if got.SampleRate != ASRSampleRate {
		t.Fatalf("rate = %d", got.SampleRate)
	}
	if len(got.Data) != 16000*2 {
		t.Errorf("resampled to %d bytes, want %d", len(got.Data), 16000*2)
	}
}

func TestToASRFormat_ConstantSignalSurvivesResampling(t *testing.T) {
	src := make([]int16, 4800)
	for i := range src {
		src[i] = 1234
	}
	f := Frame{Data: FromSamples(src), SampleRate: 48000, Channels: 1}

	for _, s := range ToASRFormat(f).Samples() {
		if s != 1234 {
			t.Fatalf("sample = %d, want the constant preserved", s)
		}
	}
}

func TestToASRFormat_OddByteCountDropped(t *testing.T) {
	f := Frame{Data: []byte{1, 2, 3}, SampleRate: 48000, Channels: 1}
	got := ToASRFormat(f)
	if len(got.Data) != 0 {
		t.Errorf("corrupt frame kept %d bytes", len(got.Data))
	}
}

func TestSegmentToASRFormat(t *testing.T) {
	seg := Segment{
		PCM:        FromSamples(make([]int16, 9600)),
		SampleRate: 48000,
		Channels:   1,
		Start:      time.Second,
		Duration:   200 * time.Millisecond,
		Truncated:  true,
	}

	got := SegmentToASRFormat(seg)
	if got.SampleRate != ASRSampleRate || got.Channels != 1 {
		t.Errorf("layout = %d ch @ %d Hz", got.Channels, got.SampleRate)
	}
	if len(got.PCM) != 3200*2 {
		t.Errorf("PCM = %d bytes, want %d", len(got.PCM), 3200*2)
	}
	if got.Start != time.Second || got.Duration != 200*time.Millisecond || !got.Truncated {
		t.Errorf("segment metadata lost: %+v", got)
	}
}

func TestFrameDuration(t *testing.T) {
	f := Frame{Data: make([]byte, 640), SampleRate: 16000, Channels: 1}
	if got := f.Duration(); got != 20*time.Millisecond {
		t.Errorf("Duration() = %v, want 20ms", got)
	}

	stereo := Frame{Data: make([]byte, 1280), SampleRate: 16000, Channels: 2}
	if got := stereo.Duration(); got != 20*time.Millisecond {
		t.Errorf("stereo Duration() = %v, want 20ms", got)
	}

	var zero Frame
	if zero.Duration() != 0 {
		t.Error("zero frame has non-zero duration")
	}
}

func TestSamplesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768}
	f := Frame{Data: FromSamples(in)}
	got := f.Samples()
	for i, s := range got {
		if s != in[i] {
			t.Fatalf("sample %d = %d, want %d", i, s, in[i])
		}
	}
}
