package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/droman42/irene/internal/donation"
	"github.com/droman42/irene/internal/intent"
	"github.com/droman42/irene/internal/session"
	"github.com/droman42/irene/pkg/provider/llm"
)

// llmDefaultConfidence is assigned when the model omits a confidence value.
const llmDefaultConfidence = 0.85

// LLMRecognizer is the LLM-as-NLU cascade stage. The model receives the
// normalised text plus the full set of known intent names and must answer
// with one of them; any name outside the set is rejected and the stage
// yields nothing.
type LLMRecognizer struct {
	provider llm.Provider
	known    map[string]bool
	prompt   string
}

// NewLLMRecognizer builds the stage with the intent set frozen from snap.
func NewLLMRecognizer(snap *donation.Snapshot, provider llm.Provider) *LLMRecognizer {
	names := snap.IntentNames()
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	return &LLMRecognizer{
		provider: provider,
		known:    known,
		prompt: "You are an intent classifier for a voice assistant. " +
			"Given a user utterance, answer with a single JSON object " +
			`{"intent": "<name>", "entities": {...}, "confidence": <0..1>}. ` +
			"The intent MUST be one of: " + strings.Join(names, ", ") + ". " +
			`If none applies, answer {"intent": "none"}.`,
	}
}

func (lr *LLMRecognizer) Name() string { return "llm_recognizer" }

// llmAnswer is the shape the classifier prompt demands.
type llmAnswer struct {
	Intent     string         `json:"intent"`
	Entities   map[string]any `json:"entities"`
	Confidence float64        `json:"confidence"`
}

// Recognize classifies text with the LLM, rejecting answers outside the
// known intent set.
func (lr *LLMRecognizer) Recognize(ctx context.Context, text string, sess *session.Context) (*intent.Intent, error) {
	resp, err := lr.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: lr.prompt},
			{Role: "user", Content: text},
		},
		Temperature:  0,
		MaxTokens:    256,
		ResponseJSON: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	var ans llmAnswer
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &ans); err != nil {
		return nil, nil
	}
	if !lr.known[ans.Intent] {
		return nil, nil
	}

	conf := ans.Confidence
	if conf <= 0 || conf > 1 {
		conf = llmDefaultConfidence
	}
	in := intent.New(ans.Intent, text, sess.SessionID(), conf)
	for k, v := range ans.Entities {
		in.Entities[k] = v
	}
	in.Entities["_recognition_provider"] = lr.Name()
	return &in, nil
}

// extractJSON trims any prose the model wraps around the JSON object.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
