package app

import (
	"fmt"

	"github.com/droman42/irene/internal/config"
	"github.com/droman42/irene/internal/resilience"
	"github.com/droman42/irene/pkg/provider/asr"
	asrmock "github.com/droman42/irene/pkg/provider/asr/mock"
	"github.com/droman42/irene/pkg/provider/asr/whisper"
	"github.com/droman42/irene/pkg/provider/embeddings"
	embedmock "github.com/droman42/irene/pkg/provider/embeddings/mock"
	embedopenai "github.com/droman42/irene/pkg/provider/embeddings/openai"
	"github.com/droman42/irene/pkg/provider/llm"
	"github.com/droman42/irene/pkg/provider/llm/anyllm"
	llmmock "github.com/droman42/irene/pkg/provider/llm/mock"
	llmopenai "github.com/droman42/irene/pkg/provider/llm/openai"
	"github.com/droman42/irene/pkg/provider/tts"
	"github.com/droman42/irene/pkg/provider/tts/execsynth"
	ttsmock "github.com/droman42/irene/pkg/provider/tts/mock"
	"github.com/droman42/irene/pkg/provider/wake"
	wakemock "github.com/droman42/irene/pkg/provider/wake/mock"
	"github.com/droman42/irene/pkg/provider/wake/phrase"
)

// providers holds the instantiated provider failover groups. Nil group means
// the matching component is disabled.
type providers struct {
	asr        *resilience.Group[asr.Provider]
	asrPrimary asr.Provider
	tts        *resilience.Group[tts.Provider]
	llm        *resilience.Group[llm.Provider]
	llmPrimary llm.Provider
	embeddings embeddings.Provider
	wake       wake.Provider
}

// buildGroup instantiates a capability's failover chain: the default
// provider first, then each fallback, each behind its own circuit breaker.
func buildGroup[T any](kind string, g config.ProviderGroupConfig, build func(name string, e config.ProviderEntry) (T, error)) (*resilience.Group[T], T, error) {
	var zero T
	if g.Default == "" {
		return nil, zero, fmt.Errorf("%s: no default provider configured", kind)
	}
	primary, err := build(g.Default, g.Entries[g.Default])
	if err != nil {
		return nil, zero, fmt.Errorf("%s provider %q: %w", kind, g.Default, err)
	}
	group := resilience.NewGroup(kind, g.Default, primary, resilience.GroupConfig{})
	for _, name := range g.FallbackProviders {
		fb, err := build(name, g.Entries[name])
		if err != nil {
			return nil, zero, fmt.Errorf("%s fallback provider %q: %w", kind, name, err)
		}
		group.AddFallback(name, fb)
	}
	return group, primary, nil
}

func buildASR(name string, e config.ProviderEntry) (asr.Provider, error) {
	switch name {
	case "whisper":
		var opts []whisper.Option
		if lang := stringOption(e.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(e.Model, opts...)
	case "mock":
		return asrmock.New(stringsOption(e.Options, "transcripts")...), nil
	}
	return nil, fmt.Errorf("unknown asr provider %q", name)
}

func buildTTS(name string, e config.ProviderEntry) (tts.Provider, error) {
	switch name {
	case "exec":
		cmd := stringOption(e.Options, "command")
		var opts []execsynth.Option
		if args := stringsOption(e.Options, "args"); len(args) > 0 {
			opts = append(opts, execsynth.WithArgs(args...))
		}
		return execsynth.New(cmd, opts...)
	case "mock":
		return ttsmock.New(), nil
	}
	return nil, fmt.Errorf("unknown tts provider %q", name)
}

func buildLLM(name string, e config.ProviderEntry) (llm.Provider, error) {
	switch name {
	case "openai":
		var opts []llmopenai.Option
		if e.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(e.BaseURL))
		}
		return llmopenai.New(e.APIKey, e.Model, opts...)
	case "anyllm":
		return anyllm.New(stringOption(e.Options, "backend"), e.Model)
	case "mock":
		return llmmock.New(stringsOption(e.Options, "completions")...), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", name)
}

func buildEmbeddings(name string, e config.ProviderEntry) (embeddings.Provider, error) {
	switch name {
	case "openai":
		var opts []embedopenai.Option
		if e.BaseURL != "" {
			opts = append(opts, embedopenai.WithBaseURL(e.BaseURL))
		}
		return embedopenai.New(e.APIKey, e.Model, opts...)
	case "mock":
		return embedmock.New(), nil
	}
	return nil, fmt.Errorf("unknown embeddings provider %q", name)
}

// buildWake needs the ASR primary: the phrase detector transcribes candidate
// segments and matches the transcript against the wake phrases.
func buildWake(name string, e config.ProviderEntry, recognizer asr.Provider) (wake.Provider, error) {
	switch name {
	case "phrase":
		phrases := stringsOption(e.Options, "phrases")
		var opts []phrase.Option
		if t := floatOption(e.Options, "threshold"); t > 0 {
			opts = append(opts, phrase.WithThreshold(t))
		}
		return phrase.New(recognizer, phrases, opts...)
	case "mock":
		return wakemock.New(wakemock.Hit()), nil
	}
	return nil, fmt.Errorf("unknown wake provider %q", name)
}

func stringOption(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

func floatOption(opts map[string]any, key string) float64 {
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func stringsOption(opts map[string]any, key string) []string {
	raw, ok := opts[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
