package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/droman42/irene/internal/observe"
	"github.com/droman42/irene/internal/session"
)

// ContextualDomain is the domain of intents whose target is resolved from
// the current room's active actions rather than named by the user.
const ContextualDomain = "contextual"

// ContextualMethods is the method set the orchestrator can bind to an
// active domain. Contextual commands have no handler of their own, but
// their donation document still loads against a method check like any
// other domain's.
type ContextualMethods struct{}

// HasMethod reports whether the orchestrator resolves the given
// contextual command.
func (ContextualMethods) HasMethod(method string) bool {
	return method == "stop" || method == "cancel"
}

// ConversationDomain is the domain of the free-form conversation handler
// that absorbs fallbacks, clarifications, and apologies.
const ConversationDomain = "conversation"

// FallbackIntentName is the name the cascade's terminal stage emits.
const FallbackIntentName = "conversation.general"

// OrchestratorConfig configures an [Orchestrator].
type OrchestratorConfig struct {
	// DomainPriority disambiguates contextual commands when several domains
	// have active actions; higher wins. Ties break by most recent start.
	DomainPriority map[string]int

	// LLMEnabled routes fallback intents to the conversation handler. When
	// false, fallbacks produce a plain "did not understand" response.
	LLMEnabled bool
}

// Orchestrator selects a handler for an intent and executes it. It owns the
// contextual-command resolution and the conversion of handler failures into
// polite user-facing responses.
type Orchestrator struct {
	registry *Registry
	cfg      OrchestratorConfig
	metrics  *observe.Metrics
}

// NewOrchestrator creates an Orchestrator over the given handler registry.
func NewOrchestrator(registry *Registry, cfg OrchestratorConfig, metrics *observe.Metrics) *Orchestrator {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Orchestrator{registry: registry, cfg: cfg, metrics: metrics}
}

// Execute routes in to its handler and returns the handler's result. It
// never propagates handler panics or errors to the caller: failures come
// back as polite apology results, missing parameters as clarification
// prompts, and a fired deadline as a non-success result with error
// "deadline".
func (o *Orchestrator) Execute(ctx context.Context, in Intent, sess *session.Context) Result {
	if in.Domain == ContextualDomain {
		return o.executeContextual(ctx, in, sess)
	}
	if isFallback(in) {
		return o.executeFallback(ctx, in, sess)
	}
	return o.dispatch(ctx, in, sess)
}

// dispatch resolves the handler table and runs the handler with the standard
// error policy.
func (o *Orchestrator) dispatch(ctx context.Context, in Intent, sess *session.Context) Result {
	h, err := o.registry.Resolve(in.Name)
	if err != nil {
		// Unroutable intents degrade to conversation, not to an error.
		slog.Debug("no handler for intent; falling back", "intent", in.Name)
		fb := New(FallbackIntentName, in.RawText, in.SessionID, in.Confidence)
		fb.Entities["_recognition_provider"] = "fallback"
		fb.Entities["_fallback_context"] = map[string]any{
			"original_text": in.RawText,
			"failed_intent": in.Name,
		}
		return o.executeFallback(ctx, fb, sess)
	}
	return o.run(ctx, h, in, sess)
}

// run executes one handler invocation with metrics, deadline handling, and
// failure conversion.
func (o *Orchestrator) run(ctx context.Context, h Handler, in Intent, sess *session.Context) Result {
	start := time.Now()
	res, err := h.Execute(ctx, in, sess)
	observe.RecordStage(ctx, o.metrics.HandlerDuration, start, observe.Attr("domain", h.Domain()))

	switch {
	case err == nil:
		if res.IntentName == "" {
			res.IntentName = in.Name
		}
		return res

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrDeadlineExceeded):
		return Result{
			Success:    false,
			Error:      "deadline",
			IntentName: in.Name,
		}

	default:
		var perr *ParameterExtractionError
		if errors.As(err, &perr) {
			return o.Clarify(in, sess, perr)
		}
		slog.Error("handler failed",
			"intent", in.Name,
			"domain", h.Domain(),
			"session_id", sess.SessionID(),
			"err", err,
		)
		return o.apologise(in, sess)
	}
}

// ─── Contextual command resolution ────────────────────────────────────────────

// executeContextual binds a contextual command ("stop", "pause", "louder")
// to a concrete domain using the current room's active actions.
//
// The active set is always read from the request's own context, never from
// another room's; that is what keeps rooms isolated.
func (o *Orchestrator) executeContextual(ctx context.Context, in Intent, sess *session.Context) Result {
	active := sess.ActiveActions()
	if len(active) == 0 {
		return Result{
			Text:        nothingActiveText(sess.Language()),
			Success:     true,
			ShouldSpeak: true,
			IntentName:  in.Name,
		}
	}

	domain := o.pickDomain(active)
	bound := in
	bound.Domain = domain
	bound.Action = in.Action
	bound.Name = fmt.Sprintf("%s.%s", domain, in.Action)
	if bound.Entities == nil {
		bound.Entities = make(map[string]any)
	}
	bound.Entities["_contextual_source"] = in.Name

	sess.SetState(session.StateContextual)
	slog.Info("contextual command resolved",
		"command", in.Name,
		"target", bound.Name,
		"session_id", sess.SessionID(),
		"candidates", len(active),
	)
	return o.dispatch(ctx, bound, sess)
}

// pickDomain applies domain priority, breaking ties by most recent start.
func (o *Orchestrator) pickDomain(active map[string]session.ActionRecord) string {
	var (
		best      string
		bestPrio  int
		bestStart time.Time
		first     = true
	)
	for domain, rec := range active {
		prio := o.cfg.DomainPriority[domain]
		switch {
		case first,
			prio > bestPrio,
			prio == bestPrio && rec.StartedAt.After(bestStart):
			best = domain
			bestPrio = prio
			bestStart = rec.StartedAt
			first = false
		}
	}
	return best
}

// ─── Fallback and failure conversion ──────────────────────────────────────────

func isFallback(in Intent) bool {
	provider, _ := in.Entities["_recognition_provider"].(string)
	return in.Name == FallbackIntentName && provider == "fallback"
}

// executeFallback routes a fallback intent to the conversation handler. When
// the fallback carries recognition context, a system-level note is injected
// into the handler's scratch space so the LLM knows what almost matched.
func (o *Orchestrator) executeFallback(ctx context.Context, in Intent, sess *session.Context) Result {
	conv, ok := o.registry.ByDomain(ConversationDomain)
	if !ok || !o.cfg.LLMEnabled {
		return Result{
			Text:        didNotUnderstandText(sess.Language()),
			Success:     true,
			ShouldSpeak: true,
			IntentName:  in.Name,
			Confidence:  in.Confidence,
		}
	}

	if fc, ok := in.Entities["_fallback_context"]; ok {
		if note := fallbackNote(fc); note != "" {
			sess.AppendHandlerMessage(ConversationDomain, "system", note)
		}
	}
	return o.run(ctx, conv, in, sess)
}

// fallbackNote renders the fallback context as a compact system note.
func fallbackNote(fc any) string {
	data, err := json.Marshal(fc)
	if err != nil {
		return ""
	}
	return "The intent recogniser could not confidently match the user's request. Recognition context: " + string(data)
}

// Clarify converts a missing-parameter failure into a clarification prompt.
// The pipeline also calls it directly when parameter extraction fails during
// recognition, before any handler runs.
func (o *Orchestrator) Clarify(in Intent, sess *session.Context, perr *ParameterExtractionError) Result {
	sess.SetState(session.StateClarifying)
	slog.Info("clarification required",
		"intent", in.Name,
		"parameter", perr.Parameter,
		"session_id", sess.SessionID(),
	)
	return Result{
		Text:        clarificationText(sess.Language(), perr.Parameter),
		Success:     true,
		ShouldSpeak: true,
		IntentName:  in.Name,
	}
}

// apologise produces the polite user-facing response for a handler failure.
func (o *Orchestrator) apologise(in Intent, sess *session.Context) Result {
	return Result{
		Text:        apologyText(sess.Language()),
		Success:     false,
		ShouldSpeak: true,
		Error:       "handler_error",
		IntentName:  in.Name,
	}
}

// ─── Localised canned responses ───────────────────────────────────────────────

func nothingActiveText(lang string) string {
	if isRussian(lang) {
		return "Сейчас ничего не запущено."
	}
	return "Nothing is active right now."
}

func didNotUnderstandText(lang string) string {
	if isRussian(lang) {
		return "Извините, я не поняла команду."
	}
	return "Sorry, I did not understand that."
}

func clarificationText(lang, parameter string) string {
	if isRussian(lang) {
		return fmt.Sprintf("Уточните, пожалуйста: %s?", parameter)
	}
	return fmt.Sprintf("Could you clarify the %s?", parameter)
}

func apologyText(lang string) string {
	if isRussian(lang) {
		return "Извините, что-то пошло не так. Попробуйте ещё раз."
	}
	return "Sorry, something went wrong. Please try again."
}

func isRussian(lang string) bool {
	return lang == "ru" || len(lang) > 2 && lang[:3] == "ru-"
}
