package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrDependencyUnavailable is returned when every entry of a group fails or
// sits behind an open breaker. For a group with no fallbacks configured this
// is simply the primary's failure, surfaced immediately.
var ErrDependencyUnavailable = errors.New("dependency unavailable")

// GroupConfig configures the per-entry breakers of a [Group].
type GroupConfig struct {
	Breaker BreakerConfig
}

type groupEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group is an ordered failover chain over instances of one provider kind.
// The primary is tried first; each configured fallback follows in order.
// Entries behind an open breaker are skipped without a call.
//
// Safe for concurrent use after construction.
type Group[T any] struct {
	kind    string
	entries []groupEntry[T]
	cfg     GroupConfig
}

// NewGroup creates a group with primary as its only entry. kind names the
// provider capability ("asr", "tts", "llm", "embeddings") for logs.
func NewGroup[T any](kind, primaryName string, primary T, cfg GroupConfig) *Group[T] {
	g := &Group[T]{kind: kind, cfg: cfg}
	g.add(primaryName, primary)
	return g
}

// AddFallback appends a fallback tried after all earlier entries.
func (g *Group[T]) AddFallback(name string, value T) {
	g.add(name, value)
}

func (g *Group[T]) add(name string, value T) {
	bc := g.cfg.Breaker
	bc.Name = g.kind + "/" + name
	g.entries = append(g.entries, groupEntry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(bc),
	})
}

// Names returns the entry names in failover order.
func (g *Group[T]) Names() []string {
	out := make([]string, len(g.entries))
	for i, e := range g.entries {
		out[i] = e.name
	}
	return out
}

// Do tries fn against each healthy entry in order until one succeeds.
func (g *Group[T]) Do(ctx context.Context, fn func(ctx context.Context, v T) error) error {
	var lastErr error
	for i := range g.entries {
		e := &g.entries[i]
		err := e.breaker.Do(ctx, func(ctx context.Context) error {
			return fn(ctx, e.value)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider, circuit open", "kind", g.kind, "provider", e.name)
			continue
		}
		if ctx.Err() != nil {
			// The request itself died; trying further providers would only
			// burn their failure budgets.
			return err
		}
		slog.Warn("provider failed, trying next", "kind", g.kind, "provider", e.name, "err", err)
	}
	return fmt.Errorf("%s: %w: %v", g.kind, ErrDependencyUnavailable, lastErr)
}

// DoWithResult is [Group.Do] for calls that produce a value. Package-level
// because Go methods cannot add type parameters.
func DoWithResult[T, R any](ctx context.Context, g *Group[T], fn func(ctx context.Context, v T) (R, error)) (R, error) {
	var (
		out  R
		zero R
	)
	err := g.Do(ctx, func(ctx context.Context, v T) error {
		r, err := fn(ctx, v)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return zero, err
	}
	return out, nil
}
