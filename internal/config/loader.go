package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per capability. Unknown
// names produce a warning, not an error, so new providers can be configured
// before this list learns about them.
var ValidProviderNames = map[string][]string{
	"asr":        {"whisper", "mock"},
	"tts":        {"exec", "mock"},
	"llm":        {"openai", "anyllm", "mock"},
	"embeddings": {"openai", "mock"},
	"wake_word":  {"phrase", "mock"},
}

// Load reads and validates the YAML configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r with strict field checking and
// validates the result. Useful in tests with string-literal configs.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8686"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if len(cfg.Workflows.Enabled) == 0 {
		cfg.Workflows.Enabled = []string{"text", "audio"}
	}
	if cfg.Workflows.Default == "" {
		cfg.Workflows.Default = cfg.Workflows.Enabled[0]
	}
	if cfg.Intents.DonationDir == "" {
		cfg.Intents.DonationDir = "donations"
	}
	if cfg.Storage.TempAudioDir == "" {
		cfg.Storage.TempAudioDir = filepath.Join(os.TempDir(), "irene-audio")
	}
}

// Validate checks cfg for coherence and returns a joined error listing every
// fatal problem found. Suspicious but survivable settings only warn.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	for _, name := range append(append([]string{}, cfg.Components.Enabled...), cfg.Components.Disabled...) {
		if !slices.Contains(KnownComponents, name) {
			errs = append(errs, fmt.Errorf("components: unknown component %q", name))
		}
	}

	// TTS without an audio sink has nowhere to play its output.
	if cfg.Components.IsEnabled(ComponentTTS) && !cfg.Components.IsEnabled(ComponentAudio) {
		errs = append(errs, errors.New("components: tts is enabled but audio is disabled; speech synthesis has no output"))
	}

	if !slices.Contains(cfg.Workflows.Enabled, cfg.Workflows.Default) {
		errs = append(errs, fmt.Errorf("workflows.default %q is not in workflows.enabled %v", cfg.Workflows.Default, cfg.Workflows.Enabled))
	}

	validateNLU(cfg, &errs)

	validateProviderGroup("asr", cfg.Providers.ASR)
	validateProviderGroup("tts", cfg.Providers.TTS)
	validateProviderGroup("llm", cfg.Providers.LLM)
	validateProviderGroup("embeddings", cfg.Providers.Embeddings)
	validateProviderGroup("wake_word", cfg.Providers.WakeWord)

	validateRooms(cfg)

	return errors.Join(errs...)
}

func validateNLU(cfg *Config, errs *[]error) {
	if !cfg.Components.IsEnabled(ComponentNLU) {
		return
	}
	plugins := cfg.NLU.Plugins()
	for _, p := range plugins {
		if !slices.Contains(KnownNLUPlugins, p) {
			*errs = append(*errs, fmt.Errorf("nlu.enabled_plugins: unknown plugin %q", p))
		}
	}
	if len(cfg.NLU.EnabledPlugins) == 0 {
		slog.Warn("nlu.enabled_plugins is empty; only the keyword matcher and the conversation fallback will run")
	}
	for name, t := range cfg.NLU.Thresholds {
		if t < 0 || t > 1 {
			*errs = append(*errs, fmt.Errorf("nlu.thresholds[%s] %v is out of range [0, 1]", name, t))
		}
	}
}

// validateProviderGroup warns about unknown provider names and fallbacks
// without settings. A missing default only matters when the component using
// the capability is enabled, which boot wiring checks.
func validateProviderGroup(kind string, g ProviderGroupConfig) {
	check := func(name string) {
		if name == "" {
			return
		}
		if known := ValidProviderNames[kind]; !slices.Contains(known, name) {
			slog.Warn("unknown provider name; make sure a matching implementation is registered",
				"kind", kind, "provider", name)
		}
	}
	check(g.Default)
	for _, fb := range g.FallbackProviders {
		check(fb)
	}
	if g.Default != "" && len(g.FallbackProviders) == 0 {
		slog.Debug("provider has no fallbacks; requests fail when it is unavailable",
			"kind", kind, "provider", g.Default)
	}
}

// validateRooms warns about aliases that would defeat room extraction from
// session ids.
func validateRooms(cfg *Config) {
	for lang, aliases := range cfg.Rooms.Aliases {
		for _, a := range aliases {
			if aliasTailHasDigit(a) {
				slog.Warn("room alias has a digit near its end; session ids built from it will not round-trip to a room",
					"language", lang, "alias", a)
			}
			if strings.Contains(a, "_session") {
				slog.Warn("room alias contains the session suffix", "language", lang, "alias", a)
			}
		}
	}
}

// aliasTailHasDigit reports a digit within the last 8 runes, mirroring the
// extraction rule for "{room}_session" ids.
func aliasTailHasDigit(alias string) bool {
	runes := []rune(alias)
	start := len(runes) - 8
	if start < 0 {
		start = 0
	}
	for _, r := range runes[start:] {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
