package donation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
)

// SchemaError wraps every validation failure raised while loading donations.
// In strict mode any SchemaError is fatal at startup.
type SchemaError struct {
	Handler string
	Err     error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("donation %q: %v", e.Handler, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// MethodChecker is the capability a handler exposes so the registry can
// verify that every donated method_name actually exists on it.
type MethodChecker interface {
	HasMethod(name string) bool
}

// Snapshot is an immutable, validated bundle of donation documents. Shared
// by reference across NLU stages; never mutated after construction.
type Snapshot struct {
	byIntent  map[string]*MethodDonation
	byDomain  map[string][]*MethodDonation
	documents map[string]*HandlerDonation
}

// Method returns the donation for a full "{domain}.{suffix}" intent name.
func (s *Snapshot) Method(intentName string) (*MethodDonation, bool) {
	m, ok := s.byIntent[intentName]
	return m, ok
}

// DomainMethods returns the donations of one handler domain.
func (s *Snapshot) DomainMethods(domain string) []*MethodDonation {
	return s.byDomain[domain]
}

// Methods returns every donation across all domains, ordered by intent name
// for deterministic iteration.
func (s *Snapshot) Methods() []*MethodDonation {
	names := make([]string, 0, len(s.byIntent))
	for n := range s.byIntent {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*MethodDonation, len(names))
	for i, n := range names {
		out[i] = s.byIntent[n]
	}
	return out
}

// Document returns a domain's full donation document.
func (s *Snapshot) Document(domain string) (*HandlerDonation, bool) {
	d, ok := s.documents[domain]
	return d, ok
}

// Domains returns the loaded handler domains, sorted.
func (s *Snapshot) Domains() []string {
	out := make([]string, 0, len(s.documents))
	for d := range s.documents {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// IntentNames returns all known full intent names, sorted.
func (s *Snapshot) IntentNames() []string {
	out := make([]string, 0, len(s.byIntent))
	for n := range s.byIntent {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Registry owns the current donation snapshot. Load and Reload build a new
// snapshot and swap it atomically, so readers always see a consistent bundle.
type Registry struct {
	dir     string
	strict  bool
	current atomic.Pointer[Snapshot]
}

// RegistryConfig configures a [Registry].
type RegistryConfig struct {
	// Dir is the directory holding "<handler>.json" donation documents.
	Dir string

	// Strict makes every validation failure fatal. In lenient mode a bad
	// donation is logged and skipped.
	Strict bool
}

// NewRegistry creates an empty registry. Call [Registry.Load] before serving.
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{dir: cfg.Dir, strict: cfg.Strict}
}

// Snapshot returns the current snapshot, or nil before the first Load.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Load discovers, parses, and validates the donation document of every
// handler in handlers, then atomically installs the resulting snapshot.
//
// Discovery: a handler named H must have a sibling document "<dir>/H.json".
// A missing document is fatal in strict mode; orphan documents with no
// matching handler are logged and ignored.
func (r *Registry) Load(handlers map[string]MethodChecker) (*Snapshot, error) {
	snap := &Snapshot{
		byIntent:  make(map[string]*MethodDonation),
		byDomain:  make(map[string][]*MethodDonation),
		documents: make(map[string]*HandlerDonation),
	}
	var errs []error

	// Deterministic load order.
	domains := make([]string, 0, len(handlers))
	for d := range handlers {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	for _, domain := range domains {
		path := filepath.Join(r.dir, domain+".json")
		doc, err := r.loadOne(path, domain, handlers[domain])
		if err != nil {
			serr := &SchemaError{Handler: domain, Err: err}
			if r.strict {
				errs = append(errs, serr)
				continue
			}
			slog.Warn("skipping invalid donation", "handler", domain, "err", err)
			continue
		}
		snap.documents[domain] = doc
		for i := range doc.MethodDonations {
			m := &doc.MethodDonations[i]
			m.domain = domain
			snap.byIntent[m.IntentName()] = m
			snap.byDomain[domain] = append(snap.byDomain[domain], m)
		}
	}

	r.logOrphans(domains)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	r.current.Store(snap)
	slog.Info("donation snapshot installed",
		"handlers", len(snap.documents),
		"intents", len(snap.byIntent),
	)
	return snap, nil
}

// loadOne reads and fully validates a single donation document.
func (r *Registry) loadOne(path, domain string, checker MethodChecker) (*HandlerDonation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read donation: %w", err)
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var doc HandlerDonation
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode donation: %w", err)
	}

	if doc.SchemaVersion != SupportedSchemaVersion {
		return nil, fmt.Errorf("unsupported schema_version %q (supported: %s)",
			doc.SchemaVersion, SupportedSchemaVersion)
	}
	if doc.HandlerDomain != domain {
		return nil, fmt.Errorf("handler_domain %q does not match file name %q",
			doc.HandlerDomain, domain)
	}

	var errs []error
	seenMethods := make(map[string]bool)
	seenSuffixes := make(map[string]bool)
	for i := range doc.MethodDonations {
		m := &doc.MethodDonations[i]
		prefix := fmt.Sprintf("method_donations[%d] (%s)", i, m.MethodName)

		if seenMethods[m.MethodName] {
			errs = append(errs, fmt.Errorf("%s: duplicate method_name", prefix))
		}
		seenMethods[m.MethodName] = true
		if seenSuffixes[m.IntentSuffix] {
			errs = append(errs, fmt.Errorf("%s: duplicate intent_suffix %q", prefix, m.IntentSuffix))
		}
		seenSuffixes[m.IntentSuffix] = true

		if checker != nil && !checker.HasMethod(m.MethodName) {
			errs = append(errs, fmt.Errorf("%s: handler has no method %q", prefix, m.MethodName))
		}

		for _, p := range m.AllParameters(doc.GlobalParameters) {
			if err := validateParameter(p); err != nil {
				errs = append(errs, fmt.Errorf("%s: parameter %q: %w", prefix, p.Name, err))
			}
		}
		for j, tp := range m.TokenPatterns {
			if _, err := Compile(tp); err != nil {
				errs = append(errs, fmt.Errorf("%s: token_patterns[%d]: %w", prefix, j, err))
			}
		}
		for slot, patterns := range m.SlotPatterns {
			for j, tp := range patterns {
				if _, err := Compile(tp); err != nil {
					errs = append(errs, fmt.Errorf("%s: slot_patterns[%s][%d]: %w", prefix, slot, j, err))
				}
			}
		}
	}
	for i, tp := range doc.NegativePatterns {
		if _, err := Compile(tp); err != nil {
			errs = append(errs, fmt.Errorf("negative_patterns[%d]: %w", i, err))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &doc, nil
}

// validateParameter enforces the per-type constraint rules that JSON Schema
// cannot express cross-field.
func validateParameter(p ParameterSpec) error {
	if !p.Type.IsValid() {
		return fmt.Errorf("unknown type %q", p.Type)
	}
	if p.Type == TypeChoice && len(p.Choices) == 0 {
		return fmt.Errorf("type choice requires a non-empty choices list")
	}
	if p.Type != TypeChoice && len(p.Choices) > 0 {
		return fmt.Errorf("choices is only valid for type choice")
	}
	if !p.Type.Numeric() && (p.MinValue != nil || p.MaxValue != nil) {
		return fmt.Errorf("min_value/max_value are only valid for numeric types")
	}
	if p.Pattern != "" {
		if p.Type != TypeString {
			return fmt.Errorf("pattern is only valid for type string")
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return fmt.Errorf("pattern: %w", err)
		}
	}
	for i, ep := range p.ExtractionPatterns {
		if _, err := regexp.Compile(ep); err != nil {
			return fmt.Errorf("extraction_patterns[%d]: %w", i, err)
		}
	}
	return nil
}

// logOrphans reports donation documents without a matching handler.
func (r *Registry) logOrphans(domains []string) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return
	}
	known := make(map[string]bool, len(domains))
	for _, d := range domains {
		known[d] = true
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if domain := strings.TrimSuffix(name, ".json"); !known[domain] {
			slog.Warn("orphan donation without a matching handler; ignoring", "file", name)
		}
	}
}
