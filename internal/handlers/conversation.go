package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/droman42/irene/internal/intent"
	"github.com/droman42/irene/internal/resilience"
	"github.com/droman42/irene/internal/session"
	"github.com/droman42/irene/pkg/provider/llm"
)

const conversationDomain = "conversation"

// conversationSystemPrompt pins the assistant persona at the top of every
// conversation context.
const conversationSystemPrompt = "Ты — Ирина, голосовой помощник умного дома. " +
	"Отвечай кратко и по делу, одним-двумя предложениями, на языке собеседника. " +
	"Если команда не удалась, объясни это простыми словами."

// historyWindow bounds how many prior messages are replayed to the model.
// The pinned system message is always included on top of the window.
const historyWindow = 20

// Conversation is the open-ended chat handler and the terminal fallback
// target: unmatched utterances arrive here as conversation.general.
type Conversation struct {
	llms        *resilience.Group[llm.Provider]
	temperature float64
	maxTokens   int
}

// NewConversation creates the handler. llms must not be nil.
func NewConversation(llms *resilience.Group[llm.Provider]) *Conversation {
	return &Conversation{llms: llms, temperature: 0.7, maxTokens: 512}
}

func (h *Conversation) Domain() string { return conversationDomain }

func (h *Conversation) HasMethod(name string) bool {
	return name == "general" || name == "clear"
}

// Execute routes conversation.clear to history reset and everything else to
// the model.
func (h *Conversation) Execute(ctx context.Context, in intent.Intent, sess *session.Context) (intent.Result, error) {
	if in.Action == "clear" {
		sess.ClearHandlerMessages(conversationDomain, true)
		text := "Conversation history cleared."
		if russian(sess.Language()) {
			text = "История разговора очищена."
		}
		return intent.Result{Text: text, Success: true, ShouldSpeak: true}, nil
	}
	return h.chat(ctx, in, sess)
}

func (h *Conversation) chat(ctx context.Context, in intent.Intent, sess *session.Context) (intent.Result, error) {
	if len(sess.HandlerMessages(conversationDomain)) == 0 {
		sess.AppendHandlerMessage(conversationDomain, "system", conversationSystemPrompt)
	}
	sess.AppendHandlerMessage(conversationDomain, "user", in.RawText)

	req := llm.CompletionRequest{
		Messages:    h.window(sess),
		Temperature: h.temperature,
		MaxTokens:   h.maxTokens,
	}
	completion, err := resilience.DoWithResult(ctx, h.llms, func(ctx context.Context, p llm.Provider) (llm.Completion, error) {
		return p.Complete(ctx, req)
	})
	if err != nil {
		return intent.Result{}, fmt.Errorf("conversation: %w", err)
	}

	text := strings.TrimSpace(completion.Text)
	if text == "" {
		return intent.Result{}, fmt.Errorf("conversation: model returned empty response")
	}
	sess.AppendHandlerMessage(conversationDomain, "assistant", text)

	return intent.Result{Text: text, Success: true, ShouldSpeak: true}, nil
}

// window converts the stored handler messages into a bounded model request:
// all system messages plus the last historyWindow others.
func (h *Conversation) window(sess *session.Context) []llm.Message {
	stored := sess.HandlerMessages(conversationDomain)

	var system, rest []llm.Message
	for _, m := range stored {
		msg := llm.Message{Role: m.Role, Content: m.Content}
		if m.Role == "system" {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}
	if len(rest) > historyWindow {
		rest = rest[len(rest)-historyWindow:]
	}
	return append(system, rest...)
}
