// Package nlu implements the intent-recognition cascade: an ordered chain of
// providers (keyword/fuzzy, morphological rules, semantic vectors, LLM) that
// stops at the first result meeting its confidence threshold and never fails
// outright, falling through to a conversation fallback intent.
package nlu

import (
	"context"
	"errors"

	"github.com/droman42/irene/internal/intent"
	"github.com/droman42/irene/internal/session"
)

// Provider is one stage of the recognition cascade.
//
// Recognize returns nil when the stage has no candidate for the text. A
// returned error removes the stage from the current cascade run without
// failing it; [ErrDependencyUnavailable] is the conventional error for a
// stage whose external backend is down.
type Provider interface {
	// Name returns the stage's stable identifier, used for per-plugin
	// threshold configuration and metrics.
	Name() string

	// Recognize maps normalised text plus session context to an intent
	// candidate, or nil when the stage does not match.
	Recognize(ctx context.Context, text string, sess *session.Context) (*intent.Intent, error)
}

// ErrDependencyUnavailable marks a stage whose external dependency (embedding
// service, LLM backend) is unreachable. The cascade logs it and moves on.
var ErrDependencyUnavailable = errors.New("nlu: stage dependency unavailable")
