package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/droman42/irene/internal/fireforget"
	"github.com/droman42/irene/internal/intent"
	"github.com/droman42/irene/internal/session"
	"github.com/droman42/irene/pkg/audio"
)

const playbackDomain = "audio"

// Playback plays media files from a library directory as fire-and-forget
// actions, so "стоп" can interrupt a long track through the contextual
// command path.
type Playback struct {
	engine *fireforget.Engine
	out    audio.Output
	dir    string
}

// NewPlayback creates the handler. dir is the media library root.
func NewPlayback(engine *fireforget.Engine, out audio.Output, dir string) *Playback {
	return &Playback{engine: engine, out: out, dir: dir}
}

func (h *Playback) Domain() string { return playbackDomain }

func (h *Playback) HasMethod(name string) bool {
	switch name {
	case "play", "stop":
		return true
	}
	return false
}

func (h *Playback) Execute(ctx context.Context, in intent.Intent, sess *session.Context) (intent.Result, error) {
	switch in.Action {
	case "play":
		return h.play(in, sess)
	case "stop", "cancel":
		return h.stop(ctx, sess)
	}
	return intent.Result{}, fmt.Errorf("audio: unknown action %q", in.Action)
}

func (h *Playback) play(in intent.Intent, sess *session.Context) (intent.Result, error) {
	track, _ := in.Entities["track"].(string)
	path, err := h.resolve(track)
	if err != nil {
		text := fmt.Sprintf("I could not find %q in the media library.", track)
		if russian(sess.Language()) {
			text = fmt.Sprintf("Не нашла %q в медиатеке.", track)
		}
		return intent.Result{Text: text, Success: false, ShouldSpeak: true, Error: "track_not_found"}, nil
	}

	task := func(ctx context.Context) error {
		return h.out.Play(ctx, path)
	}
	meta, err := h.engine.Start(sess, playbackDomain, "play", task, fireforget.Options{})
	if err != nil {
		var busy *session.ErrDomainBusy
		if !errors.As(err, &busy) {
			return intent.Result{}, fmt.Errorf("audio: start: %w", err)
		}
		text := "Something is already playing. Stop it first."
		if russian(sess.Language()) {
			text = "Что-то уже играет. Сначала остановите."
		}
		return intent.Result{Text: text, Success: false, ShouldSpeak: true, Error: "domain_busy"}, nil
	}

	text := fmt.Sprintf("Playing %s.", track)
	if russian(sess.Language()) {
		text = fmt.Sprintf("Включаю %s.", track)
	}
	return intent.Result{Text: text, Success: true, ShouldSpeak: true, ActionMetadata: meta}, nil
}

func (h *Playback) stop(ctx context.Context, sess *session.Context) (intent.Result, error) {
	stopped, err := h.engine.Cancel(ctx, sess, playbackDomain, "user request")
	if err != nil {
		return intent.Result{}, fmt.Errorf("audio: stop: %w", err)
	}
	var text string
	switch {
	case stopped && russian(sess.Language()):
		text = "Останавливаю."
	case stopped:
		text = "Stopped."
	case russian(sess.Language()):
		text = "Сейчас ничего не играет."
	default:
		text = "Nothing is playing."
	}
	return intent.Result{Text: text, Success: true, ShouldSpeak: true}, nil
}

// resolve maps a spoken track name onto a library file: exact name, then
// name with a known extension, then case-insensitive prefix match.
func (h *Playback) resolve(track string) (string, error) {
	if track == "" {
		return "", errors.New("empty track name")
	}
	direct := filepath.Join(h.dir, track)
	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	}
	for _, ext := range []string{".wav", ".mp3", ".ogg"} {
		p := direct + ext
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	entries, err := os.ReadDir(h.dir)
	if err != nil {
		return "", err
	}
	want := strings.ToLower(track)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if strings.HasPrefix(name, want) {
			return filepath.Join(h.dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("track %q not found", track)
}
