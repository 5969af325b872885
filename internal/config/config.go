// Package config provides the configuration schema and loader for the Irene
// voice assistant runtime.
package config

import (
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Component names accepted in components.enabled / components.disabled.
const (
	ComponentAudio         = "audio"
	ComponentTTS           = "tts"
	ComponentASR           = "asr"
	ComponentLLM           = "llm"
	ComponentNLU           = "nlu"
	ComponentTextProcessor = "text_processor"
	ComponentVoiceTrigger  = "voice_trigger"
)

// KnownComponents lists every component name the runtime can instantiate.
var KnownComponents = []string{
	ComponentAudio, ComponentTTS, ComponentASR, ComponentLLM,
	ComponentNLU, ComponentTextProcessor, ComponentVoiceTrigger,
}

// KeywordPlugin is the mandatory first NLU stage; it is auto-prepended to
// nlu.enabled_plugins when absent.
const KeywordPlugin = "keyword_matcher"

// KnownNLUPlugins lists the recognised cascade stage names, in canonical
// cascade order.
var KnownNLUPlugins = []string{
	KeywordPlugin, "rule_matcher", "semantic_matcher", "llm_recognizer",
}

// Config is the root configuration document, loaded from YAML with strict
// field checking.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Components ComponentsConfig `yaml:"components"`
	Workflows  WorkflowsConfig  `yaml:"workflows"`
	Providers  ProvidersConfig  `yaml:"providers"`
	NLU        NLUConfig        `yaml:"nlu"`
	Intents    IntentsConfig    `yaml:"intents"`
	Storage    StorageConfig    `yaml:"storage"`
	Context    ContextConfig    `yaml:"context"`
	FireForget FireForgetConfig `yaml:"fire_forget"`
	VAD        VADConfig        `yaml:"vad"`
	Rooms      RoomsConfig      `yaml:"rooms"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server binds (e.g. ":8686").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ComponentsConfig selects which runtime components to instantiate. An empty
// Enabled list means "all", minus Disabled.
type ComponentsConfig struct {
	Enabled  []string `yaml:"enabled"`
	Disabled []string `yaml:"disabled"`
}

// IsEnabled resolves one component's effective state.
func (c ComponentsConfig) IsEnabled(name string) bool {
	for _, d := range c.Disabled {
		if d == name {
			return false
		}
	}
	if len(c.Enabled) == 0 {
		return true
	}
	for _, e := range c.Enabled {
		if e == name {
			return true
		}
	}
	return false
}

// WorkflowsConfig selects which request workflows to start.
type WorkflowsConfig struct {
	// Enabled lists the workflows to expose ("text", "audio").
	Enabled []string `yaml:"enabled"`

	// Default is the workflow used when a request does not name one. Must be
	// a member of Enabled.
	Default string `yaml:"default"`
}

// ProvidersConfig selects provider implementations per capability.
type ProvidersConfig struct {
	ASR        ProviderGroupConfig `yaml:"asr"`
	TTS        ProviderGroupConfig `yaml:"tts"`
	LLM        ProviderGroupConfig `yaml:"llm"`
	Embeddings ProviderGroupConfig `yaml:"embeddings"`
	WakeWord   ProviderGroupConfig `yaml:"wake_word"`
}

// ProviderGroupConfig is one capability's failover chain. An empty
// FallbackProviders list means "fail if the default is unavailable".
type ProviderGroupConfig struct {
	// Default names the primary provider.
	Default string `yaml:"default"`

	// FallbackProviders are tried in order after the default.
	FallbackProviders []string `yaml:"fallback_providers"`

	// Entries holds per-provider settings keyed by provider name.
	Entries map[string]ProviderEntry `yaml:"entries"`
}

// ProviderEntry is the settings block shared by all provider kinds.
type ProviderEntry struct {
	// APIKey authenticates against the provider's API, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g. "gpt-4o-mini",
	// "ggml-base.bin").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// NLUConfig tunes the recognition cascade.
type NLUConfig struct {
	// EnabledPlugins is the cascade order. keyword_matcher is mandatory and
	// auto-prepended when absent.
	EnabledPlugins []string `yaml:"enabled_plugins"`

	// DefaultThreshold gates stage results; 0 means 0.8.
	DefaultThreshold float64 `yaml:"default_threshold"`

	// Thresholds overrides the default per plugin name.
	Thresholds map[string]float64 `yaml:"thresholds"`

	// MaxTextLengthForFuzzy skips the fuzzy keyword pass on longer inputs.
	MaxTextLengthForFuzzy int `yaml:"max_text_length_for_fuzzy"`

	// FuzzyCacheSize bounds the fuzzy LRU cache; 0 means 1000.
	FuzzyCacheSize int `yaml:"fuzzy_cache_size"`

	// SemanticThreshold is the cosine floor of the semantic stage; 0 means
	// 0.55.
	SemanticThreshold float64 `yaml:"semantic_threshold"`
}

// Plugins returns the effective cascade order with the keyword matcher
// guaranteed first.
func (n NLUConfig) Plugins() []string {
	for _, p := range n.EnabledPlugins {
		if p == KeywordPlugin {
			return n.EnabledPlugins
		}
	}
	return append([]string{KeywordPlugin}, n.EnabledPlugins...)
}

// IntentsConfig selects the handler domains and donation layout.
type IntentsConfig struct {
	// Handlers selects which handler domains to load.
	Handlers ComponentsConfig `yaml:"handlers"`

	// DonationDir holds the per-handler "<domain>.json" donation documents.
	DonationDir string `yaml:"donation_dir"`

	// StrictDonations makes donation validation failures fatal at boot.
	StrictDonations bool `yaml:"strict_donations"`

	// DomainPriority disambiguates contextual commands; higher wins.
	DomainPriority map[string]int `yaml:"domain_priority"`
}

// StorageConfig holds filesystem and database locations.
type StorageConfig struct {
	// TempAudioDir receives synthesized speech files. Mandatory when TTS and
	// audio are both enabled; defaults under the system temp directory.
	TempAudioDir string `yaml:"temp_audio_dir"`

	// PhraseIndexDSN is the PostgreSQL DSN of the phrase-embedding cache.
	// Empty keeps phrase vectors in process memory.
	PhraseIndexDSN string `yaml:"phrase_index_dsn"`

	// MediaDir is the media library root served by the audio handler.
	MediaDir string `yaml:"media_dir"`
}

// ContextConfig tunes session lifecycle.
type ContextConfig struct {
	// SessionTimeoutS evicts sessions idle longer than this. Default 1800.
	SessionTimeoutS int `yaml:"session_timeout_s"`

	// CleanupIntervalS is the eviction sweep period. Default 300.
	CleanupIntervalS int `yaml:"cleanup_interval_s"`

	// MaxHistory bounds per-session conversation history. Default 10.
	MaxHistory int `yaml:"max_history"`
}

// SessionTimeout returns the timeout as a duration, defaulted.
func (c ContextConfig) SessionTimeout() time.Duration {
	if c.SessionTimeoutS <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.SessionTimeoutS) * time.Second
}

// CleanupInterval returns the sweep period as a duration, defaulted.
func (c ContextConfig) CleanupInterval() time.Duration {
	if c.CleanupIntervalS <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.CleanupIntervalS) * time.Second
}

// FireForgetConfig tunes the background action engine.
type FireForgetConfig struct {
	// DefaultTimeoutS bounds one action attempt. Default 300.
	DefaultTimeoutS int `yaml:"default_timeout_s"`

	// DefaultRetries is the stock retry count. Default 0.
	DefaultRetries int `yaml:"default_retries"`

	// RetryDelayS is the backoff base in seconds. Default 1.
	RetryDelayS float64 `yaml:"retry_delay_s"`

	// CriticalErrorThreshold is the per-domain failure count that raises a
	// critical log event. Default 3.
	CriticalErrorThreshold int `yaml:"critical_error_threshold"`
}

// DefaultTimeout returns the attempt bound as a duration, defaulted.
func (f FireForgetConfig) DefaultTimeout() time.Duration {
	if f.DefaultTimeoutS <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(f.DefaultTimeoutS) * time.Second
}

// RetryDelay returns the backoff base as a duration, defaulted.
func (f FireForgetConfig) RetryDelay() time.Duration {
	if f.RetryDelayS <= 0 {
		return time.Second
	}
	return time.Duration(f.RetryDelayS * float64(time.Second))
}

// VADConfig tunes voice activity detection.
type VADConfig struct {
	// EnergyThreshold is the base RMS energy floor. Default 0.01.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// Sensitivity scales the adaptive threshold. Default 0.5.
	Sensitivity float64 `yaml:"sensitivity"`

	// VoiceDurationMS is the onset confirmation window. Default 100.
	VoiceDurationMS int `yaml:"voice_duration_ms"`

	// SilenceDurationMS is the offset confirmation window. Default 200.
	SilenceDurationMS int `yaml:"silence_duration_ms"`

	// MaxSegmentDurationS caps one voice segment. Default 10.
	MaxSegmentDurationS int `yaml:"max_segment_duration_s"`

	// UseZeroCrossingRate gates energy hits by ZCR plausibility. Unset
	// means enabled.
	UseZeroCrossingRate *bool `yaml:"use_zero_crossing_rate"`

	// AdaptiveThreshold tracks the noise floor during silence.
	AdaptiveThreshold bool `yaml:"adaptive_threshold"`
}

// ZCREnabled resolves the use_zero_crossing_rate key with its
// enabled-by-default semantics.
func (v VADConfig) ZCREnabled() bool {
	return v.UseZeroCrossingRate == nil || *v.UseZeroCrossingRate
}

// RoomsConfig enumerates the valid room identifiers per language.
type RoomsConfig struct {
	// Aliases maps a language code to its list of valid room_id values.
	Aliases map[string][]string `yaml:"aliases"`

	// FallbackLanguage serves alias lookups for unknown languages. Default
	// "en".
	FallbackLanguage string `yaml:"fallback_language"`
}

// AliasesFor returns the alias list for lang, falling back to the configured
// fallback language. The second return is the language actually served.
func (r RoomsConfig) AliasesFor(lang string) ([]string, string) {
	if aliases, ok := r.Aliases[lang]; ok {
		return aliases, lang
	}
	fb := r.FallbackLanguage
	if fb == "" {
		fb = "en"
	}
	return r.Aliases[fb], fb
}

// IsValidAlias reports whether alias appears in any language's list.
func (r RoomsConfig) IsValidAlias(alias string) bool {
	for _, list := range r.Aliases {
		for _, a := range list {
			if a == alias {
				return true
			}
		}
	}
	return false
}
