package intent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/droman42/irene/internal/session"
)

// Handler executes intents for one domain. Handlers receive the unified
// context by reference; all mutations must go through the context's own
// methods.
//
// HasMethod is the capability the donation registry uses to verify that
// every donated method name is actually implemented.
type Handler interface {
	// Domain returns the handler's domain name ("timers", "audio", ...).
	Domain() string

	// HasMethod reports whether the handler implements the named donation
	// method.
	HasMethod(name string) bool

	// Execute runs the intent. A returned error means the handler itself
	// failed; user-facing refusals are a successful Result with the
	// refusal text.
	Execute(ctx context.Context, in Intent, sess *session.Context) (Result, error)
}

// registration pairs a dispatch pattern with its handler. Patterns are
// either an exact intent name or "{domain}.*".
type registration struct {
	pattern string
	handler Handler
}

// Registry holds (pattern, handler) entries. Dispatch picks the first match
// in registration order, so register specific patterns before wildcards.
//
// Registration happens at boot; lookups afterwards are read-mostly and safe
// for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []registration
	domains map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{domains: make(map[string]Handler)}
}

// Register adds a dispatch entry. Pattern must be an exact "{domain}.{action}"
// name or a "{domain}.*" wildcard.
func (r *Registry) Register(pattern string, h Handler) error {
	if pattern == "" {
		return fmt.Errorf("intent: empty dispatch pattern")
	}
	if !strings.Contains(pattern, ".") {
		return fmt.Errorf("intent: pattern %q must be \"domain.action\" or \"domain.*\"", pattern)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, registration{pattern: pattern, handler: h})
	r.domains[h.Domain()] = h
	return nil
}

// RegisterDomain adds the conventional "{domain}.*" wildcard entry for h.
func (r *Registry) RegisterDomain(h Handler) error {
	return r.Register(h.Domain()+".*", h)
}

// Resolve returns the first handler whose pattern matches the intent name.
func (r *Registry) Resolve(intentName string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, reg := range r.entries {
		if patternMatches(reg.pattern, intentName) {
			return reg.handler, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, intentName)
}

// ByDomain returns the handler registered for a domain.
func (r *Registry) ByDomain(domain string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.domains[domain]
	return h, ok
}

// Handlers returns the registered handlers keyed by domain.
func (r *Registry) Handlers() map[string]Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Handler, len(r.domains))
	for d, h := range r.domains {
		out[d] = h
	}
	return out
}

func patternMatches(pattern, name string) bool {
	if pattern == name {
		return true
	}
	if domain, ok := strings.CutSuffix(pattern, ".*"); ok {
		nd, _ := SplitName(name)
		return nd == domain
	}
	return false
}
