package nlu

import (
	"context"
	"log/slog"
	"time"

	"github.com/droman42/irene/internal/donation"
	"github.com/droman42/irene/internal/intent"
	"github.com/droman42/irene/internal/observe"
	"github.com/droman42/irene/internal/session"
)

const (
	// DefaultThreshold gates whether a stage's candidate stops the cascade.
	DefaultThreshold = 0.8

	// DefaultMinAccept is the floor under which a best-effort candidate is
	// discarded in favour of the conversation fallback. Candidates between
	// MinAccept and the stage threshold are accepted only after every stage
	// has run and none met its threshold.
	DefaultMinAccept = 0.5

	// FallbackConfidence is the fixed confidence of the terminal fallback.
	FallbackConfidence = 0.3
)

// CascadeConfig configures a [Cascade].
type CascadeConfig struct {
	// DefaultThreshold applies to stages without a per-plugin override.
	DefaultThreshold float64

	// Thresholds overrides the default per stage name.
	Thresholds map[string]float64

	// MinAccept is the floor for accepting the best below-threshold
	// candidate instead of falling back.
	MinAccept float64
}

func (c *CascadeConfig) applyDefaults() {
	if c.DefaultThreshold == 0 {
		c.DefaultThreshold = DefaultThreshold
	}
	if c.MinAccept == 0 {
		c.MinAccept = DefaultMinAccept
	}
}

// Cascade runs the recognition stages in fixed order and guarantees a
// non-nil intent: the first stage whose candidate meets its threshold wins;
// failing that, the best candidate above the acceptance floor; failing that,
// the conversation fallback.
//
// Safe for concurrent use.
type Cascade struct {
	providers []Provider
	donations *donation.Registry
	cfg       CascadeConfig
	metrics   *observe.Metrics
}

// NewCascade assembles the cascade. Providers run in the given order; the
// donation registry supplies parameter specs for post-stage extraction.
func NewCascade(providers []Provider, donations *donation.Registry, cfg CascadeConfig, metrics *observe.Metrics) *Cascade {
	cfg.applyDefaults()
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Cascade{providers: providers, donations: donations, cfg: cfg, metrics: metrics}
}

// Recognize maps normalised text to an intent. The returned intent is never
// zero. The only non-nil error is a [*intent.ParameterExtractionError] from
// post-stage parameter extraction; callers convert it into a clarification.
func (c *Cascade) Recognize(ctx context.Context, text string, sess *session.Context) (intent.Intent, error) {
	start := time.Now()
	defer func() {
		observe.RecordStage(ctx, c.metrics.NLUDuration, start)
	}()

	var (
		best      *intent.Intent
		bestBy    string
		attempted []string
	)
	for _, p := range c.providers {
		attempted = append(attempted, p.Name())
		cand, err := p.Recognize(ctx, text, sess)
		if err != nil {
			slog.Warn("cascade stage dropped out", "stage", p.Name(), "err", err)
			continue
		}
		if cand == nil {
			continue
		}
		if cand.Confidence >= c.threshold(p.Name()) {
			c.metrics.RecordRecognition(ctx, p.Name(), cand.Name)
			return c.finish(*cand)
		}
		if best == nil || cand.Confidence > best.Confidence {
			best = cand
			bestBy = p.Name()
		}
	}

	if best != nil && best.Confidence >= c.cfg.MinAccept {
		slog.Debug("accepting below-threshold candidate",
			"intent", best.Name, "confidence", best.Confidence, "stage", bestBy)
		c.metrics.RecordRecognition(ctx, bestBy, best.Name)
		return c.finish(*best)
	}

	fb := c.fallback(text, sess.SessionID(), best, attempted)
	c.metrics.RecordRecognition(ctx, "fallback", fb.Name)
	return fb, nil
}

// finish runs parameter extraction for the chosen method. Recognition
// bookkeeping entities (underscore-prefixed) are never parameters.
func (c *Cascade) finish(in intent.Intent) (intent.Intent, error) {
	snap := c.donations.Snapshot()
	if snap == nil {
		return in, nil
	}
	m, ok := snap.Method(in.Name)
	if !ok {
		return in, nil
	}
	doc, _ := snap.Document(m.Domain())
	var globals []donation.ParameterSpec
	if doc != nil {
		globals = doc.GlobalParameters
	}
	if err := ExtractParams(&in, m, globals); err != nil {
		return in, err
	}
	return in, nil
}

// fallback builds the terminal conversation.general intent with the context
// downstream consumers need to explain the miss.
func (c *Cascade) fallback(text, sessionID string, rejected *intent.Intent, attempted []string) intent.Intent {
	fb := intent.New(intent.FallbackIntentName, text, sessionID, FallbackConfidence)
	fb.Entities["_recognition_provider"] = "fallback"
	fc := map[string]any{
		"original_text":       text,
		"attempted_providers": attempted,
	}
	if rejected != nil {
		fc["rejected_intent"] = rejected.Name
		fc["rejected_score"] = rejected.Confidence
		ambiguous := make(map[string]any)
		for k, v := range rejected.Entities {
			if len(k) > 0 && k[0] != '_' {
				ambiguous[k] = v
			}
		}
		if len(ambiguous) > 0 {
			fc["ambiguous_entities"] = ambiguous
		}
	}
	fb.Entities["_fallback_context"] = fc
	return fb
}

func (c *Cascade) threshold(stage string) float64 {
	if t, ok := c.cfg.Thresholds[stage]; ok && t > 0 {
		return t
	}
	return c.cfg.DefaultThreshold
}
