// Package fireforget runs handler-selected operations as tracked background
// tasks: a handler returns immediately while the work continues under the
// engine's timeout, retry, and cancellation supervision, visible to the rest
// of the system through the room context's action registries.
package fireforget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/droman42/irene/internal/observe"
	"github.com/droman42/irene/internal/session"
)

// Task is the body of a background action. It must honour ctx cancellation
// at its suspension points.
type Task func(ctx context.Context) error

// Options tune one Start call. Zero values inherit the engine defaults.
type Options struct {
	// Timeout bounds one attempt; the watcher classifies overruns as
	// "timeout" failures.
	Timeout time.Duration

	// Retries is the number of re-attempts after the first failure. Zero
	// inherits the engine default; a negative value means no retries even
	// when the engine default is non-zero.
	Retries int

	// RetryDelay is the base of the exponential backoff between attempts.
	RetryDelay time.Duration

	// Retryable overrides [DefaultRetryable].
	Retryable func(Class) bool
}

// Notification describes a finished (or failed) action for external
// delivery. Status is "completed", "failed", or "cancelled".
type Notification struct {
	SessionID string
	RoomID    string
	Domain    string
	Action    string
	Status    string
	Error     string
}

// Config holds the engine-wide defaults.
type Config struct {
	// DefaultTimeout applies when Options.Timeout is zero. Default 5m.
	DefaultTimeout time.Duration

	// DefaultRetries applies when Options.Retries is zero. Default 0.
	DefaultRetries int

	// RetryDelay is the default backoff base. Default 1s.
	RetryDelay time.Duration

	// CriticalErrorThreshold is the per-domain failure count at which a
	// critical log event fires. Default 3.
	CriticalErrorThreshold int
}

func (c *Config) applyDefaults() {
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = 5 * time.Minute
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
	if c.CriticalErrorThreshold == 0 {
		c.CriticalErrorThreshold = 3
	}
}

// runKey identifies one in-flight action.
type runKey struct {
	sessionID string
	domain    string
}

// run is the engine-side state of one in-flight action.
type run struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	reason string
}

func (r *run) setReason(reason string) {
	r.mu.Lock()
	if r.reason == "" {
		r.reason = reason
	}
	r.mu.Unlock()
}

func (r *run) cancelReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

// Engine supervises fire-and-forget actions. One engine serves all rooms;
// per-room state lives in the session contexts.
type Engine struct {
	cfg     Config
	metrics *observe.Metrics

	// Notify, when set, receives completion and failure events. Called from
	// the action's own goroutine; implementations must not block.
	Notify func(Notification)

	mu   sync.Mutex
	runs map[runKey]*run
	wg   sync.WaitGroup
}

// NewEngine creates an engine with the given defaults.
func NewEngine(cfg Config, metrics *observe.Metrics) *Engine {
	cfg.applyDefaults()
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Engine{cfg: cfg, metrics: metrics, runs: make(map[runKey]*run)}
}

// Start claims the domain's action slot in sess and launches task in the
// background. It returns the action metadata a handler places in its result:
// {"active_actions": {domain: record}}.
//
// The slot insertion happens before the task runs; a domain with an
// unfinished action yields [*session.ErrDomainBusy] and nothing is spawned.
func (e *Engine) Start(sess *session.Context, domain, action string, task Task, opts Options) (map[string]any, error) {
	if opts.Timeout == 0 {
		opts.Timeout = e.cfg.DefaultTimeout
	}
	switch {
	case opts.Retries < 0:
		opts.Retries = 0
	case opts.Retries == 0:
		opts.Retries = e.cfg.DefaultRetries
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = e.cfg.RetryDelay
	}
	if opts.Retryable == nil {
		opts.Retryable = DefaultRetryable
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel, done: make(chan struct{})}
	hook := func(reason string) {
		r.setReason(reason)
		r.cancel()
	}

	rec, err := sess.BeginAction(domain, action, uuid.NewString(), hook)
	if err != nil {
		cancel()
		return nil, err
	}

	key := runKey{sessionID: sess.SessionID(), domain: domain}
	e.mu.Lock()
	e.runs[key] = r
	e.mu.Unlock()

	e.metrics.ActionsStarted.Add(runCtx, 1, metric.WithAttributes(observe.Attr("domain", domain)))
	e.metrics.ActiveActions.Add(runCtx, 1)

	e.wg.Add(1)
	go e.supervise(runCtx, r, key, sess, domain, action, task, opts)

	return map[string]any{
		"active_actions": map[string]session.ActionRecord{domain: rec},
	}, nil
}

// Cancel requests cancellation of the domain's active action and waits for
// the task to end. Returns false immediately when the domain has nothing
// active.
func (e *Engine) Cancel(ctx context.Context, sess *session.Context, domain, reason string) (bool, error) {
	key := runKey{sessionID: sess.SessionID(), domain: domain}
	e.mu.Lock()
	r, ok := e.runs[key]
	e.mu.Unlock()
	if !ok {
		return false, nil
	}

	if !sess.CancelAction(domain, reason) {
		return false, nil
	}
	select {
	case <-r.done:
		return true, nil
	case <-ctx.Done():
		return true, fmt.Errorf("fireforget: cancel %s/%s: %w", sess.SessionID(), domain, ctx.Err())
	}
}

// Shutdown waits for all in-flight actions to finish, up to ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("fireforget: shutdown: %w", ctx.Err())
	}
}

// supervise runs the attempt loop for one action.
func (e *Engine) supervise(runCtx context.Context, r *run, key runKey, sess *session.Context, domain, action string, task Task, opts Options) {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		delete(e.runs, key)
		e.mu.Unlock()
		close(r.done)
		e.metrics.ActiveActions.Add(context.Background(), -1)
	}()
	defer func() {
		if p := recover(); p != nil {
			slog.Error("action panicked", "domain", domain, "action", action, "panic", p)
			e.fail(sess, domain, action, ClassInternal, fmt.Sprintf("panic: %v", p))
		}
	}()

	for attempt := 0; ; attempt++ {
		err := e.attempt(runCtx, task, opts.Timeout)
		if err == nil {
			sess.CompleteAction(domain)
			e.metrics.RecordActionFinished(context.Background(), domain, "completed")
			e.emit(sess, domain, action, "completed", "")
			return
		}

		if reason := r.cancelReason(); reason != "" {
			e.fail(sess, domain, action, ClassCancelled, fmt.Sprintf("cancelled:%s", reason))
			return
		}

		class := Classify(err)
		if opts.Retryable(class) && attempt < opts.Retries {
			e.metrics.ActionRetries.Add(context.Background(), 1, metric.WithAttributes(observe.Attr("domain", domain)))
			delay := opts.RetryDelay * time.Duration(1<<attempt)
			slog.Warn("action attempt failed; retrying",
				"domain", domain, "action", action,
				"class", string(class), "attempt", attempt+1, "delay", delay, "err", err)
			select {
			case <-time.After(delay):
				continue
			case <-runCtx.Done():
				if reason := r.cancelReason(); reason != "" {
					e.fail(sess, domain, action, ClassCancelled, fmt.Sprintf("cancelled:%s", reason))
					return
				}
				e.fail(sess, domain, action, class, err.Error())
				return
			}
		}

		slog.Error("action failed",
			"domain", domain, "action", action,
			"class", string(class), "attempts", attempt+1, "err", err)
		e.fail(sess, domain, action, class, err.Error())
		return
	}
}

// attempt runs one timeout-bounded invocation of the task.
func (e *Engine) attempt(runCtx context.Context, task Task, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(runCtx, timeout)
	defer cancel()
	err := task(ctx)
	if err == nil && ctx.Err() == context.DeadlineExceeded {
		// The task returned cleanly but only because its deadline fired.
		err = context.DeadlineExceeded
	}
	return err
}

// fail records a classified failure in the session and fires the critical
// check.
func (e *Engine) fail(sess *session.Context, domain, action string, class Class, detail string) {
	errText := string(class)
	if class == ClassCancelled {
		// Keep the cancellation reason in the session's failed ring, not
		// just in the outbound notification.
		errText = detail
	}
	count := sess.FailAction(domain, errText)
	status := "failed"
	if class == ClassCancelled {
		status = "cancelled"
	}
	e.metrics.RecordActionFinished(context.Background(), domain, status)
	e.emit(sess, domain, action, status, detail)

	if criticalClass(class) && count >= e.cfg.CriticalErrorThreshold {
		slog.Error("critical failure threshold reached",
			"critical", true,
			"domain", domain,
			"session_id", sess.SessionID(),
			"class", string(class),
			"error_count", count,
		)
	}
}

func (e *Engine) emit(sess *session.Context, domain, action, status, detail string) {
	if e.Notify == nil {
		return
	}
	e.Notify(Notification{
		SessionID: sess.SessionID(),
		RoomID:    sess.ClientID(),
		Domain:    domain,
		Action:    action,
		Status:    status,
		Error:     detail,
	})
}
