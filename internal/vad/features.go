package vad

import "math"

// Features holds the per-frame acoustic features the detector votes on.
type Features struct {
	// Energy is the RMS energy normalised to [0, 1] relative to int16 full
	// scale.
	Energy float64

	// ZCR is the zero-crossing rate: the fraction of adjacent sample pairs
	// whose signs differ. Voiced speech typically sits in [0.02, 0.5];
	// broadband noise and fricatives push higher.
	ZCR float64
}

// extractFeatures computes RMS energy and zero-crossing rate from
// little-endian int16 mono PCM. Returns false for malformed data (odd byte
// count or empty).
func extractFeatures(pcm []byte) (Features, bool) {
	if len(pcm) < 2 || len(pcm)%2 != 0 {
		return Features{}, false
	}
	n := len(pcm) / 2

	var sumSq float64
	crossings := 0
	var prev int16
	for i := 0; i < n; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		v := float64(s) / 32768.0
		sumSq += v * v
		if i > 0 && (s < 0) != (prev < 0) {
			crossings++
		}
		prev = s
	}

	f := Features{Energy: math.Sqrt(sumSq / float64(n))}
	if n > 1 {
		f.ZCR = float64(crossings) / float64(n-1)
	}
	return f, true
}
