package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/droman42/irene/internal/fireforget"
	"github.com/droman42/irene/internal/intent"
	"github.com/droman42/irene/internal/session"
)

const timerDomain = "timer"

// Timer runs countdown timers as fire-and-forget actions: set returns
// immediately, the countdown completes (or is cancelled) in the background,
// and the engine's notification hook announces expiry.
type Timer struct {
	engine *fireforget.Engine
}

// NewTimer creates the handler.
func NewTimer(engine *fireforget.Engine) *Timer {
	return &Timer{engine: engine}
}

func (h *Timer) Domain() string { return timerDomain }

func (h *Timer) HasMethod(name string) bool {
	switch name {
	case "set", "cancel", "status":
		return true
	}
	return false
}

func (h *Timer) Execute(ctx context.Context, in intent.Intent, sess *session.Context) (intent.Result, error) {
	switch in.Action {
	case "set":
		return h.set(in, sess)
	case "cancel", "stop":
		return h.cancel(ctx, sess)
	case "status":
		return h.status(sess), nil
	}
	return intent.Result{}, fmt.Errorf("timer: unknown action %q", in.Action)
}

func (h *Timer) set(in intent.Intent, sess *session.Context) (intent.Result, error) {
	secs, ok := in.Entities["duration"].(float64)
	if !ok || secs <= 0 {
		return intent.Result{}, fmt.Errorf("timer: missing duration entity")
	}
	d := time.Duration(secs * float64(time.Second))

	task := func(ctx context.Context) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	// Countdown must outlive the default task timeout, and a countdown is
	// never re-run, whatever the engine-wide retry default says.
	meta, err := h.engine.Start(sess, timerDomain, "set", task, fireforget.Options{
		Timeout: d + 5*time.Second,
		Retries: -1,
	})
	if err != nil {
		return h.busyResult(sess, err)
	}

	text := fmt.Sprintf("Timer set for %s.", formatDuration(d, sess.Language()))
	if russian(sess.Language()) {
		text = fmt.Sprintf("Таймер на %s запущен.", formatDuration(d, sess.Language()))
	}
	return intent.Result{
		Text:           text,
		Success:        true,
		ShouldSpeak:    true,
		ActionMetadata: meta,
	}, nil
}

func (h *Timer) cancel(ctx context.Context, sess *session.Context) (intent.Result, error) {
	cancelled, err := h.engine.Cancel(ctx, sess, timerDomain, "user request")
	if err != nil {
		return intent.Result{}, fmt.Errorf("timer: cancel: %w", err)
	}
	var text string
	switch {
	case cancelled && russian(sess.Language()):
		text = "Таймер отменён."
	case cancelled:
		text = "Timer cancelled."
	case russian(sess.Language()):
		text = "Активного таймера нет."
	default:
		text = "No timer is running."
	}
	return intent.Result{Text: text, Success: true, ShouldSpeak: true}, nil
}

func (h *Timer) status(sess *session.Context) intent.Result {
	rec, ok := sess.ActiveAction(timerDomain)
	if !ok {
		text := "No timer is running."
		if russian(sess.Language()) {
			text = "Активного таймера нет."
		}
		return intent.Result{Text: text, Success: true, ShouldSpeak: true}
	}
	elapsed := time.Since(rec.StartedAt).Round(time.Second)
	text := fmt.Sprintf("Timer running for %s.", formatDuration(elapsed, sess.Language()))
	if russian(sess.Language()) {
		text = fmt.Sprintf("Таймер идёт уже %s.", formatDuration(elapsed, sess.Language()))
	}
	return intent.Result{Text: text, Success: true, ShouldSpeak: true}
}

func (h *Timer) busyResult(sess *session.Context, err error) (intent.Result, error) {
	var busy *session.ErrDomainBusy
	if !errors.As(err, &busy) {
		return intent.Result{}, fmt.Errorf("timer: start: %w", err)
	}
	text := "A timer is already running. Cancel it first."
	if russian(sess.Language()) {
		text = "Таймер уже запущен. Сначала отмените его."
	}
	return intent.Result{Text: text, Success: false, ShouldSpeak: true, Error: "domain_busy"}, nil
}

// formatDuration renders a duration in speech-friendly units.
func formatDuration(d time.Duration, lang string) string {
	d = d.Round(time.Second)
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	ru := russian(lang)
	switch {
	case mins > 0 && secs > 0 && ru:
		return fmt.Sprintf("%d мин %d сек", mins, secs)
	case mins > 0 && secs > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	case mins > 0 && ru:
		return fmt.Sprintf("%d мин", mins)
	case mins > 0:
		return fmt.Sprintf("%dm", mins)
	case ru:
		return fmt.Sprintf("%d сек", secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
