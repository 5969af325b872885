package donation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// methodSet is a stub handler exposing a fixed method list.
type methodSet map[string]bool

func (m methodSet) HasMethod(name string) bool { return m[name] }

const validTimerDoc = `{
  "schema_version": "1.0",
  "handler_domain": "timer",
  "method_donations": [
    {
      "method_name": "set_timer",
      "intent_suffix": "set",
      "phrases": ["поставь таймер", "set a timer"],
      "parameters": [
        {
          "name": "duration",
          "type": "duration",
          "required": true,
          "extraction_patterns": ["на (\\d+ (?:минут|секунд))"]
        }
      ],
      "token_patterns": [
        [{"LEMMA": {"IN": ["поставить", "постав"]}}, {"LEMMA": "таймер"}]
      ],
      "slot_patterns": {
        "duration": [[{"LIKE_NUM": true}, {"LEMMA": {"IN": ["минут", "секунд"]}}]]
      },
      "boost": 1.2
    },
    {
      "method_name": "cancel_timer",
      "intent_suffix": "cancel",
      "phrases": ["отмени таймер"]
    }
  ]
}`

func writeDoc(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRegistry_LoadInstallsSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "timer.json", validTimerDoc)

	r := NewRegistry(RegistryConfig{Dir: dir, Strict: true})
	if r.Snapshot() != nil {
		t.Fatal("snapshot present before Load")
	}

	snap, err := r.Load(map[string]MethodChecker{
		"timer": methodSet{"set_timer": true, "cancel_timer": true},
	})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if r.Snapshot() != snap {
		t.Error("Load did not install the returned snapshot")
	}

	m, ok := snap.Method("timer.set")
	if !ok {
		t.Fatal("timer.set not indexed")
	}
	if m.MethodName != "set_timer" || m.Domain() != "timer" {
		t.Errorf("method = %+v", m)
	}
	if m.EffectiveBoost() != 1.2 {
		t.Errorf("EffectiveBoost() = %v, want 1.2", m.EffectiveBoost())
	}

	cancel, _ := snap.Method("timer.cancel")
	if cancel.EffectiveBoost() != 1.0 {
		t.Errorf("default boost = %v, want 1.0", cancel.EffectiveBoost())
	}

	if got := snap.IntentNames(); len(got) != 2 || got[0] != "timer.cancel" || got[1] != "timer.set" {
		t.Errorf("IntentNames() = %v", got)
	}
	if got := snap.DomainMethods("timer"); len(got) != 2 {
		t.Errorf("DomainMethods() = %d entries, want 2", len(got))
	}
	if _, ok := snap.Document("timer"); !ok {
		t.Error("document not retained")
	}
}

func TestRegistry_StrictFailures(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "missing document",
			doc:     "", // nothing written
			wantErr: "read donation",
		},
		{
			name: "domain file mismatch",
			doc: `{"schema_version": "1.0", "handler_domain": "alarm",
			       "method_donations": [{"method_name": "set_timer", "intent_suffix": "set", "phrases": ["x"]}]}`,
			wantErr: "does not match file name",
		},
		{
			name: "unsupported schema version",
			doc: `{"schema_version": "2.0", "handler_domain": "timer",
			       "method_donations": [{"method_name": "set_timer", "intent_suffix": "set", "phrases": ["x"]}]}`,
			wantErr: "unsupported schema_version",
		},
		{
			name: "unknown top-level field",
			doc: `{"schema_version": "1.0", "handler_domain": "timer", "surprise": true,
			       "method_donations": [{"method_name": "set_timer", "intent_suffix": "set", "phrases": ["x"]}]}`,
			wantErr: "schema violation",
		},
		{
			name: "method not on handler",
			doc: `{"schema_version": "1.0", "handler_domain": "timer",
			       "method_donations": [{"method_name": "explode", "intent_suffix": "set", "phrases": ["x"]}]}`,
			wantErr: "has no method",
		},
		{
			name: "duplicate method name",
			doc: `{"schema_version": "1.0", "handler_domain": "timer", "method_donations": [
			       {"method_name": "set_timer", "intent_suffix": "set", "phrases": ["x"]},
			       {"method_name": "set_timer", "intent_suffix": "start", "phrases": ["y"]}]}`,
			wantErr: "duplicate method_name",
		},
		{
			name: "invalid token pattern",
			doc: `{"schema_version": "1.0", "handler_domain": "timer", "method_donations": [
			       {"method_name": "set_timer", "intent_suffix": "set", "phrases": ["x"],
			        "token_patterns": [[{"SHAPE": "Xxx"}]]}]}`,
			wantErr: "unrecognised attribute",
		},
		{
			name: "choice without choices",
			doc: `{"schema_version": "1.0", "handler_domain": "timer", "method_donations": [
			       {"method_name": "set_timer", "intent_suffix": "set", "phrases": ["x"],
			        "parameters": [{"name": "mode", "type": "choice"}]}]}`,
			wantErr: "choices",
		},
		{
			name: "range on non-numeric type",
			doc: `{"schema_version": "1.0", "handler_domain": "timer", "method_donations": [
			       {"method_name": "set_timer", "intent_suffix": "set", "phrases": ["x"],
			        "parameters": [{"name": "label", "type": "string", "min_value": 1}]}]}`,
			wantErr: "numeric",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.doc != "" {
				writeDoc(t, dir, "timer.json", tt.doc)
			}

			r := NewRegistry(RegistryConfig{Dir: dir, Strict: true})
			_, err := r.Load(map[string]MethodChecker{"timer": methodSet{"set_timer": true}})
			if err == nil {
				t.Fatal("Load() succeeded, want validation failure")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
			if r.Snapshot() != nil {
				t.Error("failed strict Load still installed a snapshot")
			}
		})
	}
}

func TestRegistry_LenientSkipsBadDocuments(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "timer.json", validTimerDoc)
	writeDoc(t, dir, "audio.json", `{"schema_version": "9.9", "handler_domain": "audio",
	  "method_donations": [{"method_name": "play", "intent_suffix": "play", "phrases": ["x"]}]}`)

	r := NewRegistry(RegistryConfig{Dir: dir, Strict: false})
	snap, err := r.Load(map[string]MethodChecker{
		"timer": methodSet{"set_timer": true, "cancel_timer": true},
		"audio": methodSet{"play": true},
	})
	if err != nil {
		t.Fatalf("lenient Load() error: %v", err)
	}

	if got := snap.Domains(); len(got) != 1 || got[0] != "timer" {
		t.Errorf("Domains() = %v, want the valid document only", got)
	}
	if _, ok := snap.Method("audio.play"); ok {
		t.Error("invalid document contributed an intent")
	}
}

func TestRegistry_ReloadSwapsAtomically(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "timer.json", validTimerDoc)

	r := NewRegistry(RegistryConfig{Dir: dir, Strict: true})
	handlers := map[string]MethodChecker{
		"timer": methodSet{"set_timer": true, "cancel_timer": true},
	}
	first, err := r.Load(handlers)
	if err != nil {
		t.Fatal(err)
	}

	// A broken rewrite must leave the previous snapshot untouched.
	writeDoc(t, dir, "timer.json", `{"schema_version": "1.0"}`)
	if _, err := r.Load(handlers); err == nil {
		t.Fatal("Load of broken rewrite succeeded")
	}
	if r.Snapshot() != first {
		t.Error("failed reload replaced the live snapshot")
	}

	// A valid rewrite swaps in the new bundle.
	writeDoc(t, dir, "timer.json", strings.Replace(validTimerDoc, `"boost": 1.2`, `"boost": 2.0`, 1))
	second, err := r.Load(handlers)
	if err != nil {
		t.Fatal(err)
	}
	if r.Snapshot() != second || second == first {
		t.Error("valid reload did not swap the snapshot")
	}
	m, _ := second.Method("timer.set")
	if m.EffectiveBoost() != 2.0 {
		t.Errorf("reloaded boost = %v, want 2.0", m.EffectiveBoost())
	}
}

func TestMethodDonation_AllParametersShadowsGlobals(t *testing.T) {
	global := []ParameterSpec{
		{Name: "room", Type: TypeString},
		{Name: "duration", Type: TypeDuration},
	}
	m := &MethodDonation{Parameters: []ParameterSpec{
		{Name: "duration", Type: TypeDuration, Required: true},
	}}

	all := m.AllParameters(global)
	if len(all) != 2 {
		t.Fatalf("AllParameters() = %d specs, want 2", len(all))
	}
	if !all[0].Required {
		t.Error("method-level spec did not shadow the global of the same name")
	}
}
