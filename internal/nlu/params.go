package nlu

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/droman42/irene/internal/donation"
	"github.com/droman42/irene/internal/intent"
)

// ExtractParams populates in.Entities from the chosen method's parameter
// specs, after a cascade stage has selected the method.
//
// Per parameter the sources are, in order: an entity already present (slot
// patterns or LLM output), the parameter's extraction regexes over the raw
// text, then the declared default. A required parameter with no value from
// any source yields a [*intent.ParameterExtractionError].
func ExtractParams(in *intent.Intent, m *donation.MethodDonation, globals []donation.ParameterSpec) error {
	for _, p := range m.AllParameters(globals) {
		raw, found := rawValue(in, p)
		if !found {
			if p.DefaultValue != nil {
				in.Entities[p.Name] = p.DefaultValue
				continue
			}
			if p.Required {
				return &intent.ParameterExtractionError{
					IntentName: in.Name,
					Parameter:  p.Name,
					Reason:     "no value found and no default declared",
				}
			}
			continue
		}

		val, err := convertValue(raw, p)
		if err != nil {
			return &intent.ParameterExtractionError{
				IntentName: in.Name,
				Parameter:  p.Name,
				Reason:     err.Error(),
			}
		}
		in.Entities[p.Name] = val
	}
	return nil
}

// rawValue finds the textual value for p, from existing entities first and
// the extraction regexes second.
func rawValue(in *intent.Intent, p donation.ParameterSpec) (string, bool) {
	if v, ok := in.Entities[p.Name]; ok {
		return fmt.Sprint(v), true
	}
	for _, alias := range p.Aliases {
		if v, ok := in.Entities[alias]; ok {
			return fmt.Sprint(v), true
		}
	}
	for _, ep := range p.ExtractionPatterns {
		re, err := regexp.Compile(ep)
		if err != nil {
			// Load-time validation already compiled these; a failure here
			// means a stale snapshot and is skipped rather than fatal.
			continue
		}
		m := re.FindStringSubmatch(in.RawText)
		if m == nil {
			continue
		}
		if len(m) > 1 && m[1] != "" {
			return m[1], true
		}
		return m[0], true
	}
	return "", false
}

// convertValue parses raw per the declared type and applies the declared
// range, choice, and pattern constraints.
func convertValue(raw string, p donation.ParameterSpec) (any, error) {
	raw = strings.TrimSpace(raw)
	switch p.Type {
	case donation.TypeString, donation.TypeEntity:
		if p.Pattern != "" {
			re, err := regexp.Compile(p.Pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern: %v", err)
			}
			if !re.MatchString(raw) {
				return nil, fmt.Errorf("value %q does not match pattern %s", raw, p.Pattern)
			}
		}
		return raw, nil

	case donation.TypeInteger:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", raw)
		}
		if err := checkRange(float64(n), p); err != nil {
			return nil, err
		}
		return n, nil

	case donation.TypeFloat:
		f, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", raw)
		}
		if err := checkRange(f, p); err != nil {
			return nil, err
		}
		return f, nil

	case donation.TypeDuration:
		secs, err := parseDurationSeconds(raw)
		if err != nil {
			return nil, err
		}
		if err := checkRange(secs, p); err != nil {
			return nil, err
		}
		return secs, nil

	case donation.TypeDatetime:
		t, err := parseDatetime(raw)
		if err != nil {
			return nil, err
		}
		return t, nil

	case donation.TypeBoolean:
		return parseBoolean(raw)

	case donation.TypeChoice:
		lower := strings.ToLower(raw)
		for _, c := range p.Choices {
			if strings.ToLower(c) == lower {
				return c, nil
			}
		}
		return nil, fmt.Errorf("value %q is not one of %v", raw, p.Choices)
	}
	return nil, fmt.Errorf("unsupported parameter type %q", p.Type)
}

func checkRange(v float64, p donation.ParameterSpec) error {
	if p.MinValue != nil && v < *p.MinValue {
		return fmt.Errorf("value %v below minimum %v", v, *p.MinValue)
	}
	if p.MaxValue != nil && v > *p.MaxValue {
		return fmt.Errorf("value %v above maximum %v", v, *p.MaxValue)
	}
	return nil
}

// parseDurationSeconds accepts Go duration syntax ("5m30s"), a spoken
// "<number> <unit>" form in Russian or English ("5 минут", "2 hours"), or a
// bare number treated as seconds, and returns seconds.
func parseDurationSeconds(raw string) (float64, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		return d.Seconds(), nil
	}
	if f, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64); err == nil {
		return f, nil
	}
	if secs, ok := parseSpokenDuration(raw); ok {
		return secs, nil
	}
	return 0, fmt.Errorf("not a duration: %q", raw)
}

// parseSpokenDuration parses "<number> <unit>" pairs, summing multiple
// pairs ("1 час 30 минут").
func parseSpokenDuration(raw string) (float64, bool) {
	fields := strings.Fields(strings.ToLower(raw))
	var total float64
	var parsed bool
	for i := 0; i+1 < len(fields); i++ {
		n, err := strconv.ParseFloat(strings.ReplaceAll(fields[i], ",", "."), 64)
		if err != nil {
			continue
		}
		unit, ok := durationUnitSeconds(fields[i+1])
		if !ok {
			continue
		}
		total += n * unit
		parsed = true
		i++
	}
	return total, parsed
}

func durationUnitSeconds(word string) (float64, bool) {
	switch {
	case strings.HasPrefix(word, "сек"), strings.HasPrefix(word, "sec"):
		return 1, true
	case strings.HasPrefix(word, "мин"), strings.HasPrefix(word, "min"):
		return 60, true
	case strings.HasPrefix(word, "час"), strings.HasPrefix(word, "hour"), word == "h":
		return 3600, true
	}
	return 0, false
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"15:04:05",
	"15:04",
}

func parseDatetime(raw string) (time.Time, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not a datetime: %q", raw)
}

func parseBoolean(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "true", "yes", "on", "1", "да", "включи", "вкл":
		return true, nil
	case "false", "no", "off", "0", "нет", "выключи", "выкл":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", raw)
}
