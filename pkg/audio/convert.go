package audio

// ToASRFormat converts a frame to 16 kHz mono, the format whisper-class
// recognisers expect. Frames already in ASR format pass through unchanged
// with zero allocation. Frames with a corrupt (odd) byte count return an
// empty frame; callers drop those.
func ToASRFormat(f Frame) Frame {
	if len(f.Data)%2 != 0 {
		return Frame{SampleRate: ASRSampleRate, Channels: ASRChannels, Timestamp: f.Timestamp}
	}
	if f.SampleRate == ASRSampleRate && f.Channels == ASRChannels {
		return f
	}

	pcm := f.Data
	if f.Channels == 2 {
		pcm = downmixToMono(pcm)
	}
	if f.SampleRate != ASRSampleRate {
		pcm = resampleMono(pcm, f.SampleRate, ASRSampleRate)
	}
	return Frame{
		Data:       pcm,
		SampleRate: ASRSampleRate,
		Channels:   ASRChannels,
		Timestamp:  f.Timestamp,
	}
}

// SegmentToASRFormat converts a whole voice segment to 16 kHz mono.
// Segments already in ASR format pass through unchanged.
func SegmentToASRFormat(s Segment) Segment {
	if s.SampleRate == ASRSampleRate && s.Channels == ASRChannels {
		return s
	}
	f := ToASRFormat(Frame{Data: s.PCM, SampleRate: s.SampleRate, Channels: s.Channels})
	return Segment{
		PCM:        f.Data,
		SampleRate: ASRSampleRate,
		Channels:   ASRChannels,
		Start:      s.Start,
		Duration:   s.Duration,
		Truncated:  s.Truncated,
	}
}

// downmixToMono averages interleaved stereo int16 pairs. int32 arithmetic
// avoids overflow; results are clamped to the int16 range.
func downmixToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// resampleMono resamples 16-bit mono PCM between rates using linear
// interpolation. Equal rates or sub-sample input return the input unchanged.
func resampleMono(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := int16(pcm[idx*2]) | int16(pcm[idx*2+1])<<8
		s1 := s0
		if idx+1 < srcSamples {
			s1 = int16(pcm[(idx+1)*2]) | int16(pcm[(idx+1)*2+1])<<8
		}
		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
