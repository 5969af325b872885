package nlu

import (
	"context"
	"errors"
	"testing"

	"github.com/droman42/irene/internal/donation"
	"github.com/droman42/irene/internal/intent"
	"github.com/droman42/irene/internal/session"
)

// stubStage returns a canned candidate (or error) and counts invocations.
type stubStage struct {
	name  string
	conf  float64
	hit   string
	err   error
	calls int
}

func (s *stubStage) Name() string { return s.name }

func (s *stubStage) Recognize(_ context.Context, text string, sess *session.Context) (*intent.Intent, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.hit == "" {
		return nil, nil
	}
	in := intent.New(s.hit, text, sess.SessionID(), s.conf)
	in.Entities["_recognition_provider"] = s.name
	return &in, nil
}

// emptyRegistry has no snapshot, so the cascade skips parameter extraction.
func emptyRegistry(t *testing.T) *donation.Registry {
	t.Helper()
	return donation.NewRegistry(donation.RegistryConfig{Dir: t.TempDir()})
}

func TestCascade_FirstStageMeetingThresholdWins(t *testing.T) {
	first := &stubStage{name: "keyword_matcher", hit: "timer.set", conf: 0.95}
	second := &stubStage{name: "rule_matcher", hit: "audio.play", conf: 0.99}
	c := NewCascade([]Provider{first, second}, emptyRegistry(t), CascadeConfig{}, nil)

	got, err := c.Recognize(context.Background(), "поставь таймер", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "timer.set" || got.Confidence != 0.95 {
		t.Errorf("intent = %s (%v)", got.Name, got.Confidence)
	}
	if second.calls != 0 {
		t.Error("later stage ran after an accepted candidate")
	}
}

func TestCascade_PerStageThresholdOverride(t *testing.T) {
	sem := &stubStage{name: "semantic_matcher", hit: "timer.set", conf: 0.6}
	c := NewCascade([]Provider{sem}, emptyRegistry(t), CascadeConfig{
		Thresholds: map[string]float64{"semantic_matcher": 0.55},
	}, nil)

	got, err := c.Recognize(context.Background(), "заведи отсчет", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "timer.set" {
		t.Errorf("intent = %q, want the stage accepted at its own threshold", got.Name)
	}
}

func TestCascade_BestBelowThresholdAcceptedAboveFloor(t *testing.T) {
	first := &stubStage{name: "keyword_matcher", hit: "timer.set", conf: 0.6}
	second := &stubStage{name: "semantic_matcher", hit: "audio.play", conf: 0.7}
	c := NewCascade([]Provider{first, second}, emptyRegistry(t), CascadeConfig{}, nil)

	got, err := c.Recognize(context.Background(), "включи", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "audio.play" || got.Confidence != 0.7 {
		t.Errorf("intent = %s (%v), want the best below-threshold candidate", got.Name, got.Confidence)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Error("not every stage ran before the floor acceptance")
	}
}

func TestCascade_FallbackCarriesContext(t *testing.T) {
	erroring := &stubStage{name: "semantic_matcher", err: ErrDependencyUnavailable}
	weak := &stubStage{name: "keyword_matcher", hit: "timer.set", conf: 0.4}
	miss := &stubStage{name: "rule_matcher"}
	c := NewCascade([]Provider{weak, miss, erroring}, emptyRegistry(t), CascadeConfig{}, nil)

	got, err := c.Recognize(context.Background(), "бормотание", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != intent.FallbackIntentName {
		t.Fatalf("intent = %q, want the conversation fallback", got.Name)
	}
	if got.Confidence != FallbackConfidence {
		t.Errorf("confidence = %v, want %v", got.Confidence, FallbackConfidence)
	}

	fc, ok := got.Entities["_fallback_context"].(map[string]any)
	if !ok {
		t.Fatal("fallback intent missing its context entity")
	}
	if fc["original_text"] != "бормотание" {
		t.Errorf("original_text = %v", fc["original_text"])
	}
	if fc["rejected_intent"] != "timer.set" {
		t.Errorf("rejected_intent = %v, want the best discarded candidate", fc["rejected_intent"])
	}
	attempted, _ := fc["attempted_providers"].([]string)
	if len(attempted) != 3 {
		t.Errorf("attempted_providers = %v, want all three stages", attempted)
	}
}

func TestCascade_ErroringStageSkipped(t *testing.T) {
	down := &stubStage{name: "semantic_matcher", err: errors.New("backend down")}
	good := &stubStage{name: "llm_recognizer", hit: "timer.cancel", conf: 0.9}
	c := NewCascade([]Provider{down, good}, emptyRegistry(t), CascadeConfig{}, nil)

	got, err := c.Recognize(context.Background(), "отмени таймер", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "timer.cancel" {
		t.Errorf("intent = %q, want the stage after the failed one", got.Name)
	}
}

func TestCascade_ExtractsDonatedParameters(t *testing.T) {
	stage := &stubStage{name: "keyword_matcher", hit: "timer.set", conf: 0.95}
	c := NewCascade([]Provider{stage}, testRegistry(t), CascadeConfig{}, nil)

	got, err := c.Recognize(context.Background(), "поставь таймер на 5 минут", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if got.Entities["duration"] != 300.0 {
		t.Errorf("duration = %v, want 300 seconds", got.Entities["duration"])
	}
}

func TestCascade_MissingRequiredParameter(t *testing.T) {
	stage := &stubStage{name: "keyword_matcher", hit: "timer.set", conf: 0.95}
	c := NewCascade([]Provider{stage}, testRegistry(t), CascadeConfig{}, nil)

	_, err := c.Recognize(context.Background(), "поставь таймер", testSession())
	var perr *intent.ParameterExtractionError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *intent.ParameterExtractionError", err)
	}
	if perr.Parameter != "duration" {
		t.Errorf("parameter = %q, want duration", perr.Parameter)
	}
}
