// Package execsynth implements tts.Provider by shelling out to a local
// synthesizer binary (RHVoice, espeak-ng, piper). The command receives the
// text on stdin and must write complete WAV audio to stdout.
package execsynth

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/droman42/irene/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// Provider runs one synthesizer process per call.
type Provider struct {
	command string
	args    []string

	// langArgs maps a base language code to extra arguments selecting the
	// voice, e.g. {"ru": ["-v", "anna"]}.
	langArgs map[string][]string
}

// Option configures a [Provider].
type Option func(*Provider)

// WithArgs sets arguments passed on every invocation.
func WithArgs(args ...string) Option {
	return func(p *Provider) { p.args = args }
}

// WithLanguageArgs adds per-language voice arguments.
func WithLanguageArgs(lang string, args ...string) Option {
	return func(p *Provider) { p.langArgs[lang] = args }
}

// New creates a provider around the given synthesizer command.
func New(command string, opts ...Option) (*Provider, error) {
	if command == "" {
		return nil, fmt.Errorf("execsynth: command must not be empty")
	}
	p := &Provider{command: command, langArgs: make(map[string][]string)}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func (p *Provider) Name() string { return "exec" }

func (p *Provider) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	args := append([]string{}, p.args...)
	if extra, ok := p.langArgs[baseLang(language)]; ok {
		args = append(args, extra...)
	}

	cmd := exec.CommandContext(ctx, p.command, args...)
	cmd.Stdin = strings.NewReader(text)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("execsynth: %s: %w (stderr: %s)",
			p.command, err, strings.TrimSpace(errBuf.String()))
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("execsynth: %s produced no audio", p.command)
	}
	return out.Bytes(), nil
}

func (p *Provider) Close() error { return nil }

func baseLang(lang string) string {
	if i := strings.IndexByte(lang, '-'); i > 0 {
		return lang[:i]
	}
	return lang
}
