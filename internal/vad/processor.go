// Package vad converts a continuous stream of fixed-duration audio frames
// into variable-length voice segments suitable for downstream ASR.
//
// Detection runs a four-state machine over {silence, onset, active, ended}
// with hysteresis: onset requires a run of consecutive voiced frames, offset
// a run of consecutive silent ones. An optional adaptive threshold tracks the
// noise floor during silence, and an optional five-frame majority vote
// smooths per-frame flicker. The processor is infallible against bad input:
// malformed frames are counted and skipped, and a segment that exceeds the
// duration cap is force-closed with a truncation flag.
package vad

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/droman42/irene/internal/observe"
	"github.com/droman42/irene/pkg/audio"
)

// State is the detector's position in the onset/offset state machine.
type State int

const (
	StateSilence State = iota
	StateVoiceOnset
	StateVoiceActive
	StateVoiceEnded
)

// String returns the lowercase state name for logs.
func (s State) String() string {
	switch s {
	case StateSilence:
		return "silence"
	case StateVoiceOnset:
		return "voice_onset"
	case StateVoiceActive:
		return "voice_active"
	case StateVoiceEnded:
		return "voice_ended"
	}
	return "unknown"
}

// Config holds the detector's tuning parameters. Zero values fall back to
// the defaults documented per field.
type Config struct {
	// EnergyThreshold is the base RMS energy floor for voice. Default 0.01.
	EnergyThreshold float64

	// Sensitivity multiplies the tracked noise floor when AdaptiveThreshold
	// is on; the effective threshold is
	// max(EnergyThreshold, noiseFloor x Sensitivity). Default 0.5.
	Sensitivity float64

	// VoiceFramesRequired is the consecutive voiced-frame run confirming
	// onset. Default 2.
	VoiceFramesRequired int

	// SilenceFramesRequired is the consecutive silent-frame run confirming
	// offset. Default 5.
	SilenceFramesRequired int

	// UseZCR additionally gates the voice predicate on the zero-crossing
	// rate lying within [ZCRMin, ZCRMax].
	UseZCR bool

	// ZCRMin and ZCRMax bound the acceptable zero-crossing rate when UseZCR
	// is set. Defaults 0.02 and 0.5.
	ZCRMin float64
	ZCRMax float64

	// AdaptiveThreshold enables exponential smoothing of the noise floor
	// over silent frames.
	AdaptiveThreshold bool

	// Smoothing enables the five-frame sliding majority vote (>= 60%
	// agreement) over raw per-frame decisions.
	Smoothing bool

	// MaxSegmentDuration force-closes a segment even without silence.
	// Default 10s.
	MaxSegmentDuration time.Duration

	// BufferSizeFrames caps the in-flight frame buffer; the oldest frames
	// are dropped (and counted) beyond it. Default 100.
	BufferSizeFrames int
}

func (c *Config) applyDefaults() {
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = 0.01
	}
	if c.Sensitivity <= 0 {
		c.Sensitivity = 0.5
	}
	if c.VoiceFramesRequired <= 0 {
		c.VoiceFramesRequired = 2
	}
	if c.SilenceFramesRequired <= 0 {
		c.SilenceFramesRequired = 5
	}
	if c.ZCRMin <= 0 {
		c.ZCRMin = 0.02
	}
	if c.ZCRMax <= 0 {
		c.ZCRMax = 0.5
	}
	if c.MaxSegmentDuration <= 0 {
		c.MaxSegmentDuration = 10 * time.Second
	}
	if c.BufferSizeFrames <= 0 {
		c.BufferSizeFrames = 100
	}
}

// noiseFloorAlpha is the exponential smoothing factor for the adaptive
// noise-floor estimate.
const noiseFloorAlpha = 0.05

// smoothingWindow and smoothingQuorum implement the five-frame majority vote.
const (
	smoothingWindow = 5
	smoothingQuorum = 3 // >= 60% of 5
)

// Processor is the per-stream VAD state machine. Feed it frames one at a time
// via [Processor.ProcessFrame] or wrap a channel with
// [Processor.ProcessStream]. Not safe for concurrent use; create one per
// stream.
type Processor struct {
	cfg     Config
	metrics *observe.Metrics

	state        State
	voiceRun     int
	silenceRun   int
	noiseFloor   float64
	votes        []bool
	onsetPending []audio.Frame
	segFrames    []audio.Frame
	segDuration  time.Duration

	// MalformedCount tallies frames skipped for bad PCM layout.
	MalformedCount int

	// DroppedCount tallies frames discarded by the buffer cap.
	DroppedCount int
}

// Option configures a Processor during construction.
type Option func(*Processor)

// WithMetrics overrides the metrics instance (tests pass an isolated one).
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// New creates a Processor with the given configuration.
func New(cfg Config, opts ...Option) *Processor {
	cfg.applyDefaults()
	p := &Processor{
		cfg:        cfg,
		state:      StateSilence,
		noiseFloor: cfg.EnergyThreshold,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// State returns the detector's current state.
func (p *Processor) State() State {
	return p.state
}

// ProcessFrame feeds one frame into the state machine. A completed segment is
// returned on voice offset (or on hitting the duration cap); ok is false
// otherwise.
func (p *Processor) ProcessFrame(f audio.Frame) (seg audio.Segment, ok bool) {
	feats, valid := extractFeatures(f.Data)
	if !valid {
		p.MalformedCount++
		p.metrics.MalformedFrames.Add(context.Background(), 1)
		return audio.Segment{}, false
	}

	voiced := p.decide(feats)

	switch p.state {
	case StateSilence, StateVoiceEnded:
		if voiced {
			p.state = StateVoiceOnset
			p.voiceRun = 1
			p.onsetPending = append(p.onsetPending[:0], f)
			if p.voiceRun >= p.cfg.VoiceFramesRequired {
				p.beginSegment()
			}
			return audio.Segment{}, false
		}
		p.state = StateSilence

	case StateVoiceOnset:
		if voiced {
			p.voiceRun++
			p.onsetPending = append(p.onsetPending, f)
			if p.voiceRun >= p.cfg.VoiceFramesRequired {
				p.beginSegment()
			}
		} else {
			// Flicker before confirmed onset: back to silence.
			p.state = StateSilence
			p.voiceRun = 0
			p.onsetPending = p.onsetPending[:0]
		}

	case StateVoiceActive:
		if voiced {
			p.silenceRun = 0
			p.appendSegmentFrame(f)
		} else {
			p.silenceRun++
			// The first trailing silent frame stays in the segment as its
			// tail; further silent frames only advance the offset counter.
			if p.silenceRun == 1 {
				p.appendSegmentFrame(f)
			}
			if p.silenceRun >= p.cfg.SilenceFramesRequired {
				return p.endSegment(false), true
			}
		}
		if p.segDuration >= p.cfg.MaxSegmentDuration {
			return p.endSegment(true), true
		}
	}

	return audio.Segment{}, false
}

// ProcessStream lazily transforms a frame channel into a segment channel. The
// returned channel closes when frames closes or ctx is cancelled; a segment
// still in progress at stream end is flushed first. The stream is not
// restartable; consumers must drain it to completion.
func (p *Processor) ProcessStream(ctx context.Context, frames <-chan audio.Frame) <-chan audio.Segment {
	out := make(chan audio.Segment, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case f, more := <-frames:
				if !more {
					if seg, ok := p.Flush(); ok {
						out <- seg
					}
					return
				}
				if seg, ok := p.ProcessFrame(f); ok {
					select {
					case out <- seg:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out
}

// Flush force-closes any in-progress segment, returning it if one existed.
// Used when the input stream ends mid-voice.
func (p *Processor) Flush() (audio.Segment, bool) {
	if p.state != StateVoiceActive || len(p.segFrames) == 0 {
		p.reset()
		return audio.Segment{}, false
	}
	return p.endSegment(false), true
}

// decide applies the voice predicate, the adaptive threshold, and optional
// majority-vote smoothing to one frame's features.
func (p *Processor) decide(feats Features) bool {
	threshold := p.cfg.EnergyThreshold
	if p.cfg.AdaptiveThreshold {
		if adaptive := p.noiseFloor * p.cfg.Sensitivity; adaptive > threshold {
			threshold = adaptive
		}
	}

	raw := feats.Energy >= threshold
	if raw && p.cfg.UseZCR {
		raw = feats.ZCR >= p.cfg.ZCRMin && feats.ZCR <= p.cfg.ZCRMax
	}

	// Track the noise floor only over frames judged silent, so speech does
	// not inflate it.
	if p.cfg.AdaptiveThreshold && !raw {
		p.noiseFloor = (1-noiseFloorAlpha)*p.noiseFloor + noiseFloorAlpha*feats.Energy
	}

	if !p.cfg.Smoothing {
		return raw
	}
	p.votes = append(p.votes, raw)
	if len(p.votes) > smoothingWindow {
		p.votes = p.votes[1:]
	}
	if len(p.votes) < smoothingWindow {
		return raw
	}
	voiced := 0
	for _, v := range p.votes {
		if v {
			voiced++
		}
	}
	return voiced >= smoothingQuorum
}

// beginSegment transitions onset -> active, seeding the segment with the
// onset-triggering frames.
func (p *Processor) beginSegment() {
	p.state = StateVoiceActive
	p.silenceRun = 0
	p.segFrames = p.segFrames[:0]
	p.segDuration = 0
	for _, f := range p.onsetPending {
		p.appendSegmentFrame(f)
	}
	p.onsetPending = p.onsetPending[:0]
}

func (p *Processor) appendSegmentFrame(f audio.Frame) {
	if len(p.segFrames) >= p.cfg.BufferSizeFrames {
		p.segFrames = p.segFrames[1:]
		p.DroppedCount++
		p.metrics.DroppedFrames.Add(context.Background(), 1)
	}
	p.segFrames = append(p.segFrames, f)
	p.segDuration += f.Duration()
}

// endSegment assembles the completed segment and resets for the next one.
func (p *Processor) endSegment(truncated bool) audio.Segment {
	seg := audio.Segment{Truncated: truncated}
	if len(p.segFrames) > 0 {
		first := p.segFrames[0]
		seg.SampleRate = first.SampleRate
		seg.Channels = first.Channels
		seg.Start = first.Timestamp
		total := 0
		for _, f := range p.segFrames {
			total += len(f.Data)
		}
		seg.PCM = make([]byte, 0, total)
		for _, f := range p.segFrames {
			seg.PCM = append(seg.PCM, f.Data...)
			seg.Duration += f.Duration()
		}
	}
	p.metrics.VoiceSegments.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("truncated", truncated)))
	p.reset()
	p.state = StateVoiceEnded
	return seg
}

func (p *Processor) reset() {
	p.state = StateSilence
	p.voiceRun = 0
	p.silenceRun = 0
	p.votes = p.votes[:0]
	p.onsetPending = p.onsetPending[:0]
	p.segFrames = p.segFrames[:0]
	p.segDuration = 0
}
