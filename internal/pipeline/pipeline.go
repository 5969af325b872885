// Package pipeline threads requests through the processing chain: audio
// frames through VAD, wake-word gating, and ASR into text; text through
// normalisation, the NLU cascade, and intent dispatch; responses through TTS
// and audio output. Exactly one session context per request flows unchanged
// from entry to dispatch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/droman42/irene/internal/intent"
	"github.com/droman42/irene/internal/nlu"
	"github.com/droman42/irene/internal/observe"
	"github.com/droman42/irene/internal/resilience"
	"github.com/droman42/irene/internal/session"
	"github.com/droman42/irene/internal/textnorm"
	"github.com/droman42/irene/internal/vad"
	"github.com/droman42/irene/pkg/audio"
	"github.com/droman42/irene/pkg/provider/asr"
	"github.com/droman42/irene/pkg/provider/tts"
	"github.com/droman42/irene/pkg/provider/wake"
)

// Config holds the pipeline's own settings; component tuning lives with the
// components.
type Config struct {
	// TempAudioDir receives synthesized speech files.
	TempAudioDir string

	// VAD configures the per-request voice activity processor.
	VAD vad.Config
}

// Deps are the components a Pipeline threads requests through. ASR, Wake,
// and TTS groups may be nil when the matching component is disabled.
type Deps struct {
	Sessions *session.Manager
	NLU      *nlu.Cascade
	Intents  *intent.Orchestrator

	ASR  *resilience.Group[asr.Provider]
	Wake wake.Provider
	TTS  *resilience.Group[tts.Provider]
	Out  audio.Output

	Metrics *observe.Metrics
}

// Pipeline is the request orchestrator. Safe for concurrent use; per-stream
// state (the VAD processor) is created per request.
type Pipeline struct {
	cfg  Config
	deps Deps
}

// New creates a pipeline. The temp audio directory is created eagerly so a
// bad path fails at boot, not mid-request.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if deps.TTS != nil {
		if cfg.TempAudioDir == "" {
			return nil, errors.New("pipeline: temp audio dir is required when tts is enabled")
		}
		if err := os.MkdirAll(cfg.TempAudioDir, 0o755); err != nil {
			return nil, fmt.Errorf("pipeline: create temp audio dir: %w", err)
		}
	}
	return &Pipeline{cfg: cfg, deps: deps}, nil
}

// ProcessText runs the text entry mode: normalise, recognise, dispatch,
// optionally speak, record history.
func (p *Pipeline) ProcessText(ctx context.Context, req session.RequestContext, text string) (intent.Result, error) {
	sess := p.deps.Sessions.GetWithRequestInfo(req)
	return p.processUtterance(ctx, req, sess, text, nil)
}

// ProcessTextTrace is ProcessText plus a stage-by-stage trace of the run.
func (p *Pipeline) ProcessTextTrace(ctx context.Context, req session.RequestContext, text string) (intent.Result, *Trace, error) {
	sess := p.deps.Sessions.GetWithRequestInfo(req)
	tr := &Trace{}
	res, err := p.processUtterance(ctx, req, sess, text, tr)
	return res, tr, err
}

// ProcessAudio runs the audio entry mode over a frame stream: VAD segments
// the stream, the wake gate filters segments unless req.SkipWakeWord, each
// command segment is transcribed and executed. A failure in one segment
// logs and continues with the next; the returned slice holds the result of
// every executed command.
func (p *Pipeline) ProcessAudio(ctx context.Context, req session.RequestContext, frames <-chan audio.Frame) ([]intent.Result, error) {
	return p.processAudio(ctx, req, frames, nil)
}

// ProcessAudioTrace is ProcessAudio plus a stage-by-stage trace covering
// every segment of the stream.
func (p *Pipeline) ProcessAudioTrace(ctx context.Context, req session.RequestContext, frames <-chan audio.Frame) ([]intent.Result, *Trace, error) {
	tr := &Trace{}
	results, err := p.processAudio(ctx, req, frames, tr)
	return results, tr, err
}

func (p *Pipeline) processAudio(ctx context.Context, req session.RequestContext, frames <-chan audio.Frame, tr *Trace) ([]intent.Result, error) {
	if p.deps.ASR == nil {
		return nil, errors.New("pipeline: audio mode requires asr")
	}
	sess := p.deps.Sessions.GetWithRequestInfo(req)

	proc := vad.New(p.cfg.VAD, vad.WithMetrics(p.deps.Metrics))
	segments := proc.ProcessStream(ctx, frames)

	var (
		results      []intent.Result
		wakeDetected = req.SkipWakeWord || p.deps.Wake == nil
	)
	for seg := range segments {
		if !wakeDetected {
			wakeStart := time.Now()
			det, err := p.deps.Wake.Detect(ctx, seg, sess.Language())
			tr.add("wake", det.Phrase, wakeStart, err)
			if err != nil {
				slog.Warn("wake detection failed; skipping segment", "err", err)
				continue
			}
			if !det.Detected {
				continue
			}
			// The next segment carries the command.
			wakeDetected = true
			continue
		}

		res, err := p.processSegment(ctx, req, sess, seg, tr)
		if err != nil {
			if ctx.Err() != nil {
				results = append(results, deadlineResult())
				return results, nil
			}
			slog.Error("segment processing failed; continuing stream", "err", err)
		} else if res != nil {
			results = append(results, *res)
		}
		if !req.SkipWakeWord && p.deps.Wake != nil {
			wakeDetected = false
		}
	}
	return results, nil
}

// processSegment transcribes one command segment and runs the text path.
// A nil result with nil error means the segment had no recognisable speech.
func (p *Pipeline) processSegment(ctx context.Context, req session.RequestContext, sess *session.Context, seg audio.Segment, tr *Trace) (*intent.Result, error) {
	start := time.Now()
	text, err := resilience.DoWithResult(ctx, p.deps.ASR, func(ctx context.Context, a asr.Provider) (string, error) {
		return a.Transcribe(ctx, audio.SegmentToASRFormat(seg), sess.Language())
	})
	observe.RecordStage(ctx, p.deps.Metrics.ASRDuration, start)
	tr.add("asr", text, start, err)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	if text == "" {
		return nil, nil
	}

	res, err := p.processUtterance(ctx, req, sess, text, tr)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// processUtterance is the shared tail of both entry modes.
func (p *Pipeline) processUtterance(ctx context.Context, req session.RequestContext, sess *session.Context, text string, tr *Trace) (intent.Result, error) {
	if ctx.Err() != nil {
		return deadlineResult(), nil
	}

	normStart := time.Now()
	norm := textnorm.Normalize(text, sess.Language(), textnorm.StageASROutput)
	tr.add("normalize", norm, normStart, nil)
	if norm == "" {
		return intent.Result{Success: true}, nil
	}

	nluStart := time.Now()
	in, extractErr := p.deps.NLU.Recognize(ctx, norm, sess)
	tr.add("nlu", in.Name, nluStart, extractErr)

	handlerStart := time.Now()
	var res intent.Result
	var perr *intent.ParameterExtractionError
	switch {
	case errors.As(extractErr, &perr):
		res = p.deps.Intents.Clarify(in, sess, perr)
	case ctx.Err() != nil:
		return deadlineResult(), nil
	default:
		res = p.deps.Intents.Execute(ctx, in, sess)
	}
	tr.add("handler", res.Text, handlerStart, nil)

	if res.ShouldSpeak && res.Text != "" && req.WantsAudioResponse {
		ttsStart := time.Now()
		err := p.speak(ctx, res.Text, sess.Language())
		tr.add("tts", "", ttsStart, err)
		if err != nil {
			slog.Error("speech output failed", "err", err)
		}
	}

	sess.AppendHistory(norm, res.Text, in.Name)
	return res, nil
}

// speak synthesizes text to a temp file, plays it, and removes the file.
func (p *Pipeline) speak(ctx context.Context, text, language string) error {
	if p.deps.TTS == nil || p.deps.Out == nil {
		return nil
	}

	normed := textnorm.Normalize(text, language, textnorm.StageTTSInput)

	start := time.Now()
	data, err := resilience.DoWithResult(ctx, p.deps.TTS, func(ctx context.Context, t tts.Provider) ([]byte, error) {
		return t.Synthesize(ctx, normed, language)
	})
	observe.RecordStage(ctx, p.deps.Metrics.TTSDuration, start)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	path := filepath.Join(p.cfg.TempAudioDir, uuid.NewString()+".wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write speech file: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.Warn("leaking temp speech file", "path", path, "err", rmErr)
		}
	}()

	if err := p.deps.Out.Play(ctx, path); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

func deadlineResult() intent.Result {
	return intent.Result{Success: false, Error: "deadline"}
}
