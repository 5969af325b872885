// Package intent defines the intent model, the handler contract, and the
// orchestrator that routes recognised intents to handlers, including the
// contextual-command resolution that binds "stop"-style commands to whatever
// is active in the current room.
package intent

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Intent is the structured result of NLU recognition.
type Intent struct {
	// Name is the full "{domain}.{action}" intent name.
	Name string `json:"name"`

	// Domain and Action are derived from Name when not set explicitly.
	Domain string `json:"domain"`
	Action string `json:"action"`

	// Entities holds extracted parameters plus recognition bookkeeping
	// (keys starting with "_").
	Entities map[string]any `json:"entities,omitempty"`

	// Confidence is the recogniser's score in [0, 1].
	Confidence float64 `json:"confidence"`

	// RawText is the normalised utterance the intent was recognised from.
	RawText string `json:"raw_text"`

	// SessionID ties the intent to its room-scoped context.
	SessionID string `json:"session_id"`

	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// New constructs an Intent from a full name, deriving Domain and Action.
func New(name, rawText, sessionID string, confidence float64) Intent {
	domain, action := SplitName(name)
	return Intent{
		Name:       name,
		Domain:     domain,
		Action:     action,
		Entities:   make(map[string]any),
		Confidence: confidence,
		RawText:    rawText,
		SessionID:  sessionID,
		Timestamp:  time.Now(),
	}
}

// SplitName splits "{domain}.{action}" at the first dot. A name without a
// dot is all domain.
func SplitName(name string) (domain, action string) {
	domain, action, found := strings.Cut(name, ".")
	if !found {
		return name, ""
	}
	return domain, action
}

// Result is what a handler execution produces.
type Result struct {
	// Text is the user-facing response, if any.
	Text string `json:"text,omitempty"`

	// Success reports whether the handler completed its work (or started it,
	// for fire-and-forget actions).
	Success bool `json:"success"`

	// ShouldSpeak requests TTS synthesis of Text.
	ShouldSpeak bool `json:"should_speak"`

	// ActionMetadata carries handler-produced metadata; a handler that
	// started a fire-and-forget task places the active_actions submap here.
	ActionMetadata map[string]any `json:"action_metadata,omitempty"`

	// Error is the user-safe failure description when Success is false.
	Error string `json:"error,omitempty"`

	Confidence float64 `json:"confidence,omitempty"`
	IntentName string  `json:"intent_name,omitempty"`
}

// ─── Error kinds ──────────────────────────────────────────────────────────────

// ErrHandlerNotFound is returned when no registered pattern matches an
// intent. The orchestrator surfaces it as a conversation fallback rather
// than an error response.
var ErrHandlerNotFound = errors.New("no handler registered for intent")

// ErrDeadlineExceeded is returned when a request's pipeline deadline fires
// mid-dispatch.
var ErrDeadlineExceeded = errors.New("pipeline deadline exceeded")

// ParameterExtractionError reports a required donation parameter that could
// not be extracted from the utterance and has no default. The orchestrator
// converts it into a clarification prompt.
type ParameterExtractionError struct {
	IntentName string
	Parameter  string
	Reason     string
}

func (e *ParameterExtractionError) Error() string {
	return fmt.Sprintf("intent %s: parameter %q: %s", e.IntentName, e.Parameter, e.Reason)
}
