package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// transcriber is a stand-in provider interface for group tests.
type transcriber struct {
	name  string
	err   error
	calls int
}

func (p *transcriber) recognise(_ context.Context) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return "привет от " + p.name, nil
}

func TestGroup_PrimaryServes(t *testing.T) {
	primary := &transcriber{name: "whisper"}
	fallback := &transcriber{name: "vosk"}
	g := NewGroup("asr", "whisper", primary, GroupConfig{})
	g.AddFallback("vosk", fallback)

	got, err := DoWithResult(context.Background(), g, func(ctx context.Context, p *transcriber) (string, error) {
		return p.recognise(ctx)
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "привет от whisper" {
		t.Errorf("result = %q", got)
	}
	if fallback.calls != 0 {
		t.Error("fallback called while the primary is healthy")
	}
}

func TestGroup_FailoverToFallback(t *testing.T) {
	primary := &transcriber{name: "whisper", err: errors.New("model not loaded")}
	fallback := &transcriber{name: "vosk"}
	g := NewGroup("asr", "whisper", primary, GroupConfig{})
	g.AddFallback("vosk", fallback)

	got, err := DoWithResult(context.Background(), g, func(ctx context.Context, p *transcriber) (string, error) {
		return p.recognise(ctx)
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "привет от vosk" {
		t.Errorf("result = %q, want the fallback's answer", got)
	}
	if primary.calls != 1 {
		t.Errorf("primary calls = %d", primary.calls)
	}
}

func TestGroup_AllFailedYieldsDependencyUnavailable(t *testing.T) {
	primary := &transcriber{name: "whisper", err: errors.New("down")}
	fallback := &transcriber{name: "vosk", err: errors.New("also down")}
	g := NewGroup("asr", "whisper", primary, GroupConfig{})
	g.AddFallback("vosk", fallback)

	_, err := DoWithResult(context.Background(), g, func(ctx context.Context, p *transcriber) (string, error) {
		return p.recognise(ctx)
	})
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Errorf("err = %v, want ErrDependencyUnavailable", err)
	}
}

func TestGroup_OpenBreakerSkipsEntry(t *testing.T) {
	primary := &transcriber{name: "whisper", err: errors.New("down")}
	fallback := &transcriber{name: "vosk"}
	g := NewGroup("asr", "whisper", primary, GroupConfig{
		Breaker: BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	g.AddFallback("vosk", fallback)

	call := func() {
		t.Helper()
		if err := g.Do(context.Background(), func(ctx context.Context, p *transcriber) error {
			_, err := p.recognise(ctx)
			return err
		}); err != nil {
			t.Fatal(err)
		}
	}

	call()
	call()
	if primary.calls != 2 {
		t.Fatalf("primary calls = %d, want 2 before the breaker opens", primary.calls)
	}

	// The breaker is open now; the primary must not be touched again.
	call()
	if primary.calls != 2 {
		t.Errorf("primary calls = %d after its breaker opened", primary.calls)
	}
	if fallback.calls != 3 {
		t.Errorf("fallback calls = %d, want every request served", fallback.calls)
	}
}

func TestGroup_ContextCancelStopsFailover(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &transcriber{name: "whisper"}
	fallback := &transcriber{name: "vosk"}
	g := NewGroup("asr", "whisper", primary, GroupConfig{})
	g.AddFallback("vosk", fallback)

	err := g.Do(ctx, func(ctx context.Context, p *transcriber) error {
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if fallback.calls != 0 {
		t.Error("failover continued after the request context died")
	}
}

func TestGroup_Names(t *testing.T) {
	g := NewGroup("llm", "openai", &transcriber{}, GroupConfig{})
	g.AddFallback("anyllm", &transcriber{})

	names := g.Names()
	if len(names) != 2 || names[0] != "openai" || names[1] != "anyllm" {
		t.Errorf("Names() = %v", names)
	}
}
