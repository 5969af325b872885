package intent

import (
	"errors"
	"testing"
)

func TestRegistry_PatternValidation(t *testing.T) {
	r := NewRegistry()
	h := &fakeHandler{domain: "timer"}

	if err := r.Register("", h); err == nil {
		t.Error("empty pattern accepted")
	}
	if err := r.Register("timer", h); err == nil {
		t.Error("pattern without a dot accepted")
	}
	if err := r.Register("timer.*", h); err != nil {
		t.Errorf("wildcard pattern rejected: %v", err)
	}
}

func TestRegistry_ExactPatternBeforeWildcard(t *testing.T) {
	r := NewRegistry()
	special := &fakeHandler{domain: "timer"}
	general := &fakeHandler{domain: "timer"}

	if err := r.Register("timer.set", special); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterDomain(general); err != nil {
		t.Fatal(err)
	}

	h, err := r.Resolve("timer.set")
	if err != nil {
		t.Fatal(err)
	}
	if h != Handler(special) {
		t.Error("wildcard shadowed the earlier exact registration")
	}

	h, err = r.Resolve("timer.cancel")
	if err != nil {
		t.Fatal(err)
	}
	if h != Handler(general) {
		t.Error("wildcard did not catch the unlisted action")
	}
}

func TestRegistry_ResolveUnknownIntent(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve("weather.today"); !errors.Is(err, ErrHandlerNotFound) {
		t.Errorf("err = %v, want ErrHandlerNotFound", err)
	}
}

func TestRegistry_ByDomainAndHandlers(t *testing.T) {
	r := NewRegistry()
	timer := &fakeHandler{domain: "timer"}
	audio := &fakeHandler{domain: "audio"}
	if err := r.RegisterDomain(timer); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterDomain(audio); err != nil {
		t.Fatal(err)
	}

	if h, ok := r.ByDomain("audio"); !ok || h != Handler(audio) {
		t.Error("ByDomain lookup failed")
	}
	if _, ok := r.ByDomain("weather"); ok {
		t.Error("unknown domain reported present")
	}
	if got := r.Handlers(); len(got) != 2 {
		t.Errorf("Handlers() = %d entries, want 2", len(got))
	}
}
