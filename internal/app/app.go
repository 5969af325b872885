// Package app wires the runtime's subsystems into a running voice assistant.
//
// New creates and connects everything: telemetry, session manager, provider
// failover groups, donation registry, NLU cascade, intent handlers, the
// fire-and-forget engine, the pipeline, and the HTTP server. Run serves
// until the context dies; Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithOutput,
// WithASRGroup, ...). When an option is not given, New builds the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/droman42/irene/internal/api"
	"github.com/droman42/irene/internal/config"
	"github.com/droman42/irene/internal/donation"
	"github.com/droman42/irene/internal/fireforget"
	"github.com/droman42/irene/internal/handlers"
	"github.com/droman42/irene/internal/health"
	"github.com/droman42/irene/internal/intent"
	"github.com/droman42/irene/internal/nlu"
	"github.com/droman42/irene/internal/observe"
	"github.com/droman42/irene/internal/pipeline"
	"github.com/droman42/irene/internal/resilience"
	"github.com/droman42/irene/internal/semindex"
	"github.com/droman42/irene/internal/session"
	"github.com/droman42/irene/internal/vad"
	"github.com/droman42/irene/pkg/audio"
	"github.com/droman42/irene/pkg/provider/asr"
	"github.com/droman42/irene/pkg/provider/llm"
	"github.com/droman42/irene/pkg/provider/tts"
	"github.com/droman42/irene/pkg/provider/wake"
)

// vadFrameDuration is the assumed input frame length when converting the
// config's millisecond windows into frame counts.
const vadFrameDuration = 20 * time.Millisecond

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	sessions  *session.Manager
	donations *donation.Registry
	registry  *intent.Registry
	cascade   *nlu.Cascade
	engine    *fireforget.Engine
	pipeline  *pipeline.Pipeline
	server    *api.Server

	providers providers
	out       audio.Output
	cache     nlu.VectorCache

	// closers run in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithOutput injects a playback backend instead of the exec player.
func WithOutput(out audio.Output) Option {
	return func(a *App) { a.out = out }
}

// WithASRGroup injects an ASR failover group built elsewhere.
func WithASRGroup(g *resilience.Group[asr.Provider], primary asr.Provider) Option {
	return func(a *App) { a.providers.asr = g; a.providers.asrPrimary = primary }
}

// WithLLMGroup injects an LLM failover group built elsewhere.
func WithLLMGroup(g *resilience.Group[llm.Provider], primary llm.Provider) Option {
	return func(a *App) { a.providers.llm = g; a.providers.llmPrimary = primary }
}

// WithTTSGroup injects a TTS failover group built elsewhere.
func WithTTSGroup(g *resilience.Group[tts.Provider]) Option {
	return func(a *App) { a.providers.tts = g }
}

// WithWake injects a wake-word detector.
func WithWake(w wake.Provider) Option {
	return func(a *App) { a.providers.wake = w }
}

// WithVectorCache injects a phrase-embedding cache instead of opening the
// configured index.
func WithVectorCache(c nlu.VectorCache) Option {
	return func(a *App) { a.cache = c }
}

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if err := a.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 2. Sessions ──────────────────────────────────────────────────────
	a.initSessions()

	// ── 3. Fire-and-forget engine ────────────────────────────────────────
	a.initEngine()

	// ── 4. Providers ─────────────────────────────────────────────────────
	if err := a.initProviders(); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}

	// ── 5. Handlers + donations ──────────────────────────────────────────
	snap, err := a.initHandlers()
	if err != nil {
		return nil, fmt.Errorf("app: init handlers: %w", err)
	}

	// ── 6. NLU cascade ───────────────────────────────────────────────────
	if err := a.initNLU(ctx, snap); err != nil {
		return nil, fmt.Errorf("app: init nlu: %w", err)
	}

	// ── 7. Pipeline ──────────────────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 8. HTTP server ───────────────────────────────────────────────────
	a.initServer()

	return a, nil
}

func (a *App) initTelemetry(ctx context.Context) error {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "irene"})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(sctx)
	})

	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

func (a *App) initSessions() {
	a.sessions = session.NewManager(session.ManagerConfig{
		SessionTimeout:  a.cfg.Context.SessionTimeout(),
		CleanupInterval: a.cfg.Context.CleanupInterval(),
		MaxHistory:      a.cfg.Context.MaxHistory,
		OnCleanup: func(sessionID string, _ *session.Context) {
			slog.Info("session evicted", "session_id", sessionID)
		},
	})
}

func (a *App) initEngine() {
	a.engine = fireforget.NewEngine(fireforget.Config{
		DefaultTimeout:         a.cfg.FireForget.DefaultTimeout(),
		DefaultRetries:         a.cfg.FireForget.DefaultRetries,
		RetryDelay:             a.cfg.FireForget.RetryDelay(),
		CriticalErrorThreshold: a.cfg.FireForget.CriticalErrorThreshold,
	}, a.metrics)
	a.engine.Notify = func(n fireforget.Notification) {
		slog.Info("action finished",
			"session_id", n.SessionID,
			"domain", n.Domain,
			"action", n.Action,
			"status", n.Status,
			"error", n.Error,
		)
	}
}

func (a *App) initProviders() error {
	comps := a.cfg.Components

	if a.out == nil && comps.IsEnabled(config.ComponentAudio) {
		a.out = &audio.ExecOutput{}
	}

	if a.providers.asr == nil && comps.IsEnabled(config.ComponentASR) {
		g, primary, err := buildGroup("asr", a.cfg.Providers.ASR, buildASR)
		if err != nil {
			return err
		}
		a.providers.asr = g
		a.providers.asrPrimary = primary
	}

	if a.providers.tts == nil && comps.IsEnabled(config.ComponentTTS) {
		g, _, err := buildGroup("tts", a.cfg.Providers.TTS, buildTTS)
		if err != nil {
			return err
		}
		a.providers.tts = g
	}

	if a.providers.llm == nil && comps.IsEnabled(config.ComponentLLM) {
		g, primary, err := buildGroup("llm", a.cfg.Providers.LLM, buildLLM)
		if err != nil {
			return err
		}
		a.providers.llm = g
		a.providers.llmPrimary = primary
	}

	if a.providers.embeddings == nil && a.cfg.Providers.Embeddings.Default != "" {
		_, primary, err := buildGroup("embeddings", a.cfg.Providers.Embeddings, buildEmbeddings)
		if err != nil {
			return err
		}
		a.providers.embeddings = primary
	}

	if a.providers.wake == nil && comps.IsEnabled(config.ComponentVoiceTrigger) {
		if a.providers.asrPrimary == nil {
			return errors.New("voice_trigger requires the asr component")
		}
		w, err := buildWake(a.cfg.Providers.WakeWord.Default, a.cfg.Providers.WakeWord.Entries[a.cfg.Providers.WakeWord.Default], a.providers.asrPrimary)
		if err != nil {
			return err
		}
		a.providers.wake = w
	}

	return nil
}

// initHandlers registers the enabled intent handlers and loads their
// donation documents.
func (a *App) initHandlers() (*donation.Snapshot, error) {
	a.registry = intent.NewRegistry()
	enabled := a.cfg.Intents.Handlers

	if enabled.IsEnabled("conversation") && a.providers.llm != nil {
		if err := a.registry.RegisterDomain(handlers.NewConversation(a.providers.llm)); err != nil {
			return nil, err
		}
	}
	if enabled.IsEnabled("timer") {
		if err := a.registry.RegisterDomain(handlers.NewTimer(a.engine)); err != nil {
			return nil, err
		}
	}
	if enabled.IsEnabled("audio") && a.out != nil {
		if err := a.registry.RegisterDomain(handlers.NewPlayback(a.engine, a.out, a.cfg.Storage.MediaDir)); err != nil {
			return nil, err
		}
	}

	a.donations = donation.NewRegistry(donation.RegistryConfig{
		Dir:    a.cfg.Intents.DonationDir,
		Strict: a.cfg.Intents.StrictDonations,
	})
	checkers := make(map[string]donation.MethodChecker)
	for d, h := range a.registry.Handlers() {
		checkers[d] = h
	}
	// Contextual commands ("стоп", "отмена") are resolved by the
	// orchestrator rather than a handler, but the recogniser only learns
	// them from a donation document, so the contextual domain loads too.
	checkers[intent.ContextualDomain] = intent.ContextualMethods{}
	return a.donations.Load(checkers)
}

func (a *App) initNLU(ctx context.Context, snap *donation.Snapshot) error {
	if a.cache == nil {
		if dsn := a.cfg.Storage.PhraseIndexDSN; dsn != "" {
			idx, err := semindex.Open(ctx, dsn)
			if err != nil {
				return fmt.Errorf("open phrase index: %w", err)
			}
			a.closers = append(a.closers, func() error { idx.Close(); return nil })
			a.cache = idx
		} else {
			a.cache = semindex.NewMemoryIndex()
		}
	}

	var stages []nlu.Provider
	for _, name := range a.cfg.NLU.Plugins() {
		switch name {
		case "keyword_matcher":
			km, err := nlu.NewKeywordMatcher(snap, nlu.KeywordConfig{
				MaxTextLengthForFuzzy: a.cfg.NLU.MaxTextLengthForFuzzy,
				CacheSize:             a.cfg.NLU.FuzzyCacheSize,
			}, a.metrics)
			if err != nil {
				return err
			}
			stages = append(stages, km)
		case "rule_matcher":
			rm, err := nlu.NewRuleMatcher(snap)
			if err != nil {
				return err
			}
			stages = append(stages, rm)
		case "semantic_matcher":
			if a.providers.embeddings == nil {
				slog.Warn("semantic_matcher enabled but no embeddings provider configured; skipping")
				continue
			}
			stages = append(stages, nlu.NewSemanticMatcher(snap, a.providers.embeddings, a.cache, a.cfg.NLU.SemanticThreshold))
		case "llm_recognizer":
			if a.providers.llmPrimary == nil {
				slog.Warn("llm_recognizer enabled but llm component is disabled; skipping")
				continue
			}
			stages = append(stages, nlu.NewLLMRecognizer(snap, a.providers.llmPrimary))
		}
	}

	a.cascade = nlu.NewCascade(stages, a.donations, nlu.CascadeConfig{
		DefaultThreshold: a.cfg.NLU.DefaultThreshold,
		Thresholds:       a.cfg.NLU.Thresholds,
	}, a.metrics)
	return nil
}

func (a *App) initPipeline() error {
	orch := intent.NewOrchestrator(a.registry, intent.OrchestratorConfig{
		DomainPriority: a.cfg.Intents.DomainPriority,
		LLMEnabled:     a.providers.llm != nil,
	}, a.metrics)

	v := a.cfg.VAD
	p, err := pipeline.New(pipeline.Config{
		TempAudioDir: a.cfg.Storage.TempAudioDir,
		VAD: vad.Config{
			EnergyThreshold:       v.EnergyThreshold,
			Sensitivity:           v.Sensitivity,
			VoiceFramesRequired:   framesFromMS(v.VoiceDurationMS),
			SilenceFramesRequired: framesFromMS(v.SilenceDurationMS),
			UseZCR:                v.ZCREnabled(),
			AdaptiveThreshold:     v.AdaptiveThreshold,
			Smoothing:             true,
			MaxSegmentDuration:    time.Duration(v.MaxSegmentDurationS) * time.Second,
		},
	}, pipeline.Deps{
		Sessions: a.sessions,
		NLU:      a.cascade,
		Intents:  orch,
		ASR:      a.providers.asr,
		Wake:     a.providers.wake,
		TTS:      a.providers.tts,
		Out:      a.out,
		Metrics:  a.metrics,
	})
	if err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

func (a *App) initServer() {
	checkers := []health.Checker{
		{Name: "donations", Check: func(context.Context) error {
			if a.donations.Snapshot() == nil {
				return errors.New("no donation snapshot loaded")
			}
			return nil
		}},
	}
	if idx, ok := a.cache.(*semindex.Index); ok {
		checkers = append(checkers, health.PingChecker("phrase_index", idx))
	}

	a.server = api.New(
		api.Config{ListenAddr: a.cfg.Server.ListenAddr},
		a.pipeline,
		a.sessions,
		a.cfg.Rooms,
		health.New(checkers...),
		a.metrics,
	)
}

// Run starts the eviction loop and serves HTTP until ctx dies.
func (a *App) Run(ctx context.Context) error {
	a.sessions.Start()
	slog.Info("listening", "addr", a.cfg.Server.ListenAddr)
	return a.server.Run(ctx)
}

// Shutdown stops background work and releases resources: running actions
// are drained first so their session updates land before eviction stops.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if e := a.engine.Shutdown(ctx); e != nil {
			err = errors.Join(err, e)
		}
		a.sessions.Stop()
		for i := len(a.closers) - 1; i >= 0; i-- {
			if e := a.closers[i](); e != nil {
				err = errors.Join(err, e)
			}
		}
	})
	return err
}

// framesFromMS converts a millisecond window to input frame counts.
func framesFromMS(ms int) int {
	if ms <= 0 {
		return 0
	}
	frames := time.Duration(ms) * time.Millisecond / vadFrameDuration
	return max(int(frames), 1)
}
