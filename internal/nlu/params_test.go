package nlu

import (
	"errors"
	"testing"

	"github.com/droman42/irene/internal/donation"
	"github.com/droman42/irene/internal/intent"
)

func f64(v float64) *float64 { return &v }

func extractOne(t *testing.T, spec donation.ParameterSpec, entities map[string]any, raw string) (any, error) {
	t.Helper()
	in := intent.New("timer.set", raw, "s_session", 0.9)
	for k, v := range entities {
		in.Entities[k] = v
	}
	m := &donation.MethodDonation{Parameters: []donation.ParameterSpec{spec}}
	err := ExtractParams(&in, m, nil)
	return in.Entities[spec.Name], err
}

func TestExtractParams_DurationForms(t *testing.T) {
	spec := donation.ParameterSpec{Name: "duration", Type: donation.TypeDuration, Required: true}

	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"go syntax", "5m30s", 330},
		{"bare seconds", "90", 90},
		{"spoken russian", "5 минут", 300},
		{"spoken english", "2 hours", 7200},
		{"compound spoken", "1 час 30 минут", 5400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractOne(t, spec, map[string]any{"duration": tt.raw}, "")
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("duration = %v, want %v seconds", got, tt.want)
			}
		})
	}
}

func TestExtractParams_ExtractionPatternOverRawText(t *testing.T) {
	spec := donation.ParameterSpec{
		Name:               "duration",
		Type:               donation.TypeDuration,
		Required:           true,
		ExtractionPatterns: []string{`на (\d+ (?:секунд\S*|минут\S*|час\S*))`},
	}

	got, err := extractOne(t, spec, nil, "поставь таймер на 15 минут")
	if err != nil {
		t.Fatal(err)
	}
	if got != 900.0 {
		t.Errorf("duration = %v, want 900", got)
	}
}

func TestExtractParams_AliasLookup(t *testing.T) {
	spec := donation.ParameterSpec{
		Name:    "duration",
		Type:    donation.TypeDuration,
		Aliases: []string{"time", "minutes"},
	}

	got, err := extractOne(t, spec, map[string]any{"time": "30 секунд"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if got != 30.0 {
		t.Errorf("duration via alias = %v, want 30", got)
	}
}

func TestExtractParams_RequiredMissing(t *testing.T) {
	spec := donation.ParameterSpec{Name: "duration", Type: donation.TypeDuration, Required: true}

	_, err := extractOne(t, spec, nil, "поставь таймер")
	var perr *intent.ParameterExtractionError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *intent.ParameterExtractionError", err)
	}
	if perr.Parameter != "duration" || perr.IntentName != "timer.set" {
		t.Errorf("error detail = %+v", perr)
	}
}

func TestExtractParams_DefaultApplied(t *testing.T) {
	spec := donation.ParameterSpec{
		Name:         "volume",
		Type:         donation.TypeInteger,
		Required:     true,
		DefaultValue: 50,
	}

	got, err := extractOne(t, spec, nil, "включи музыку")
	if err != nil {
		t.Fatal(err)
	}
	if got != 50 {
		t.Errorf("volume = %v, want the declared default", got)
	}
}

func TestExtractParams_RangeEnforced(t *testing.T) {
	spec := donation.ParameterSpec{
		Name:     "volume",
		Type:     donation.TypeInteger,
		MinValue: f64(0),
		MaxValue: f64(100),
	}

	if _, err := extractOne(t, spec, map[string]any{"volume": "150"}, ""); err == nil {
		t.Error("out-of-range integer accepted")
	}
	got, err := extractOne(t, spec, map[string]any{"volume": "70"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if got != 70 {
		t.Errorf("volume = %v, want 70", got)
	}
}

func TestExtractParams_ChoiceCanonicalises(t *testing.T) {
	spec := donation.ParameterSpec{
		Name:    "mode",
		Type:    donation.TypeChoice,
		Choices: []string{"утро", "вечер"},
	}

	got, err := extractOne(t, spec, map[string]any{"mode": "ВЕЧЕР"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "вечер" {
		t.Errorf("mode = %v, want the canonical choice", got)
	}

	if _, err := extractOne(t, spec, map[string]any{"mode": "ночь"}, ""); err == nil {
		t.Error("unknown choice accepted")
	}
}

func TestExtractParams_Boolean(t *testing.T) {
	spec := donation.ParameterSpec{Name: "repeat", Type: donation.TypeBoolean}

	for raw, want := range map[string]bool{"да": true, "выкл": false, "yes": true} {
		got, err := extractOne(t, spec, map[string]any{"repeat": raw}, "")
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("repeat(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestExtractParams_StringPattern(t *testing.T) {
	spec := donation.ParameterSpec{
		Name:    "track",
		Type:    donation.TypeString,
		Pattern: `^[\p{L}\d _-]+$`,
	}

	got, err := extractOne(t, spec, map[string]any{"track": "дождь"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "дождь" {
		t.Errorf("track = %v", got)
	}

	if _, err := extractOne(t, spec, map[string]any{"track": "../etc/passwd"}, ""); err == nil {
		t.Error("pattern-violating value accepted")
	}
}

func TestExtractParams_FloatWithComma(t *testing.T) {
	spec := donation.ParameterSpec{Name: "temp", Type: donation.TypeFloat}

	got, err := extractOne(t, spec, map[string]any{"temp": "21,5"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if got != 21.5 {
		t.Errorf("temp = %v, want comma decimal parsed", got)
	}
}
