package session

import (
	"testing"
	"time"
)

func TestManager_GetOrCreateIsStable(t *testing.T) {
	m := NewManager(ManagerConfig{})

	a := m.GetOrCreate("кухня_session")
	b := m.GetOrCreate("кухня_session")
	if a != b {
		t.Error("same session ID produced two contexts")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}

	c := m.GetOrCreate("спальня_session")
	if c == a {
		t.Error("different session IDs share a context")
	}
}

func TestManager_GetWithRequestInfoEnriches(t *testing.T) {
	m := NewManager(ManagerConfig{})

	sess := m.GetWithRequestInfo(RequestContext{
		Source:    "api",
		SessionID: "кухня_session",
		Language:  "en",
	})

	if got := sess.ClientID(); got != "кухня" {
		t.Errorf("ClientID() = %q, want room derived from session ID", got)
	}
	if got := sess.Language(); got != "en" {
		t.Errorf("Language() = %q, want en", got)
	}
}

func TestManager_EvictIdleCancelsActions(t *testing.T) {
	var cleaned []string
	m := NewManager(ManagerConfig{
		SessionTimeout: time.Minute,
		OnCleanup: func(sessionID string, _ *Context) {
			cleaned = append(cleaned, sessionID)
		},
	})

	idle := m.GetOrCreate("кухня_session")
	var cancelReason string
	if _, err := idle.BeginAction("timer", "set", "t1", func(reason string) {
		cancelReason = reason
		idle.FailAction("timer", "cancelled:"+reason)
	}); err != nil {
		t.Fatal(err)
	}

	fresh := m.GetOrCreate("спальня_session")

	evicted := m.EvictIdle(time.Now().Add(2 * time.Minute))

	if len(evicted) != 2 {
		t.Fatalf("evicted = %v, want both idle sessions", evicted)
	}
	if cancelReason == "" {
		t.Error("active action was not cancelled on eviction")
	}
	if len(cleaned) != 2 {
		t.Errorf("OnCleanup calls = %d, want 2", len(cleaned))
	}
	if m.Len() != 0 {
		t.Errorf("Len() after eviction = %d, want 0", m.Len())
	}
	_ = fresh
}

func TestManager_EvictIdleKeepsActiveSessions(t *testing.T) {
	m := NewManager(ManagerConfig{SessionTimeout: time.Minute})

	sess := m.GetOrCreate("кухня_session")
	sess.Touch()

	evicted := m.EvictIdle(time.Now().Add(30 * time.Second))
	if len(evicted) != 0 {
		t.Fatalf("evicted = %v, want none before the timeout", evicted)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestSessionIDFor(t *testing.T) {
	if got := SessionIDFor("api", "кухня"); got != "кухня_session" {
		t.Errorf("SessionIDFor with room = %q", got)
	}

	anon := SessionIDFor("ws", "")
	if len(anon) == 0 || anon == "_session" {
		t.Fatalf("anonymous session ID = %q", anon)
	}
	if _, ok := RoomFromSessionID(anon); ok {
		t.Errorf("anonymous session ID %q maps back to a room", anon)
	}
}
