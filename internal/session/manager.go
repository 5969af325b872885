package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Default lifecycle timings for the [Manager].
const (
	DefaultSessionTimeout  = 30 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute

	// evictionGrace is how long an evicted session's actions get to observe
	// cancellation before the context is removed anyway.
	evictionGrace = 2 * time.Second
)

// CleanupFunc is invoked once per evicted session, after its active actions
// have been cancelled. Used to emit cleanup events to the monitoring surface.
type CleanupFunc func(sessionID string, ctx *Context)

// ManagerConfig configures a [Manager]. Zero values fall back to the package
// defaults.
type ManagerConfig struct {
	// SessionTimeout is the idle duration after which a session is evicted.
	SessionTimeout time.Duration

	// CleanupInterval is the eviction tick period.
	CleanupInterval time.Duration

	// MaxHistory bounds each context's conversation history.
	MaxHistory int

	// OnCleanup, when non-nil, is called for every evicted session.
	OnCleanup CleanupFunc
}

// Manager owns all live [Context] instances, keyed by session ID. It creates
// them lazily, enriches them from transport metadata, and evicts idle ones on
// a periodic tick.
//
// The session table is guarded by one mutex; per-context state is guarded by
// each context's own critical section, so cross-context operations never hold
// a global lock while mutating conversation state.
type Manager struct {
	timeout    time.Duration
	interval   time.Duration
	maxHistory int
	onCleanup  CleanupFunc

	mu       sync.Mutex
	sessions map[string]*Context

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a Manager with the given configuration.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	return &Manager{
		timeout:    cfg.SessionTimeout,
		interval:   cfg.CleanupInterval,
		maxHistory: cfg.MaxHistory,
		onCleanup:  cfg.OnCleanup,
		sessions:   make(map[string]*Context),
	}
}

// GetOrCreate returns the context for sessionID, creating it lazily. Repeated
// calls return the same context until the session is evicted.
func (m *Manager) GetOrCreate(sessionID string) *Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[sessionID]
	if !ok {
		c = NewContext(sessionID)
		c.maxHistory = m.maxHistory
		m.sessions[sessionID] = c
		slog.Debug("session created", "session_id", sessionID)
	}
	return c
}

// Get returns the context for sessionID if it exists.
func (m *Manager) Get(sessionID string) (*Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[sessionID]
	return c, ok
}

// GetWithRequestInfo returns the (possibly new) context for req.SessionID,
// enriched from the request's transport metadata. See [Enrich] for the
// room-extraction precedence rules.
func (m *Manager) GetWithRequestInfo(req RequestContext) *Context {
	c := m.GetOrCreate(req.SessionID)
	Enrich(c, req)
	return c
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// SessionIDs returns a snapshot of the live session IDs.
func (m *Manager) SessionIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Start launches the periodic eviction task. Calling Start on an already
// started manager is a no-op.
func (m *Manager) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.evictLoop(ctx)
}

// Stop cancels the eviction task and waits for it to exit.
func (m *Manager) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Manager) evictLoop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.EvictIdle(time.Now())
		}
	}
}

// EvictIdle removes every session whose last activity is older than the
// session timeout relative to now. Each evicted session has its active
// actions cancelled and gets a cleanup callback; a cleanup failure for one
// session never aborts the sweep. Returns the evicted session IDs.
func (m *Manager) EvictIdle(now time.Time) []string {
	// Enumerate under the table lock, evict outside it so writers on other
	// sessions are never blocked by cleanup work.
	m.mu.Lock()
	expired := make([]*Context, 0)
	for id, c := range m.sessions {
		if now.Sub(c.LastActivity()) > m.timeout {
			expired = append(expired, c)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, c := range expired {
		ids = append(ids, c.SessionID())
		m.cleanup(c)
	}
	return ids
}

// cleanup cancels an evicted session's actions and emits the cleanup event.
// Panics from the cleanup callback are contained so the sweep continues.
func (m *Manager) cleanup(c *Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("session cleanup failed", "session_id", c.SessionID(), "panic", r)
		}
	}()

	c.CancelAllActions("session evicted")

	// Give the cancelled tasks a moment to unwind; detach them regardless.
	deadline := time.Now().Add(evictionGrace)
	for len(c.ActiveActions()) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if remaining := c.ActiveActions(); len(remaining) > 0 {
		slog.Warn("session evicted with actions still unwinding; detaching",
			"session_id", c.SessionID(), "actions", len(remaining))
	}

	if m.onCleanup != nil {
		m.onCleanup(c.SessionID(), c)
	}
	slog.Info("session evicted",
		"session_id", c.SessionID(),
		"idle", time.Since(c.LastActivity()).Round(time.Second),
	)
}
