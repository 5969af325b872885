// Package session implements the room-scoped unified conversation context and
// the manager that owns its lifecycle.
//
// A [Context] carries everything a single room's conversation accumulates:
// client identification, device inventory, bounded conversation history,
// per-handler scratch space, and the fire-and-forget action registries. All
// mutation goes through methods; components never assign fields directly.
// Each Context serialises its own mutations with an internal mutex, so two
// requests for the same room are safe while distinct rooms proceed in
// parallel.
package session

import (
	"fmt"
	"sync"
	"time"
)

// Default capacity bounds for the per-context registries. Oldest entries are
// evicted first when a bound is exceeded.
const (
	DefaultMaxHistory       = 10
	DefaultMaxRecentActions = 20
	DefaultMaxFailedActions = 50
)

// DefaultLanguage is the IETF tag assumed when a request carries none.
const DefaultLanguage = "ru"

// ConversationState describes what the room's dialogue is currently doing.
type ConversationState string

const (
	StateIdle       ConversationState = "idle"
	StateConversing ConversationState = "conversing"
	StateClarifying ConversationState = "clarifying"
	StateContextual ConversationState = "contextual"
)

// ActionStatus is the lifecycle state of a fire-and-forget action entry.
type ActionStatus string

const (
	ActionRunning    ActionStatus = "running"
	ActionCancelling ActionStatus = "cancelling"
)

// Device describes one controllable device visible to a room.
type Device struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Room         string         `json:"room"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
}

// Interaction is a single completed user turn recorded in the history ring.
type Interaction struct {
	Timestamp  time.Time `json:"ts"`
	UserText   string    `json:"user_text"`
	Response   string    `json:"response"`
	IntentName string    `json:"intent_name"`
	ClientID   string    `json:"client_id"`
}

// ActionRecord tracks one fire-and-forget action. While the action runs it
// lives in the active set (one slot per domain); on completion it moves into
// either the recent or the failed ring.
type ActionRecord struct {
	Domain     string       `json:"domain"`
	Action     string       `json:"action"`
	TaskID     string       `json:"task_id"`
	RoomID     string       `json:"room_id"`
	SessionID  string       `json:"session_id"`
	StartedAt  time.Time    `json:"started_at"`
	Status     ActionStatus `json:"status"`
	FinishedAt time.Time    `json:"finished_at,omitzero"`

	// Error holds the classified failure description for records in the
	// failed ring ("timeout", "cancelled:room evicted", ...). Empty for
	// active and successful records.
	Error string `json:"error,omitempty"`

	// cancel stops the backing task. Set by the fire-and-forget engine when
	// the slot is claimed; invoked by [Context.CancelAllActions] on eviction.
	cancel func(reason string)
}

// HandlerMessage is one role turn inside a handler's persistent scratch space.
type HandlerMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Context is the unified, room-scoped conversation state. Create via
// [Manager.GetOrCreate]; do not construct directly outside tests.
type Context struct {
	mu sync.Mutex

	sessionID  string
	clientID   string
	clientPrio int // source priority that set clientID; see enrich.go
	roomName   string
	language   string
	state      ConversationState
	createdAt  time.Time
	lastActive time.Time

	clientMetadata map[string]any
	devices        []Device

	history       []Interaction
	maxHistory    int
	recentActions []ActionRecord
	maxRecent     int
	failedActions []ActionRecord
	maxFailed     int

	active           map[string]*ActionRecord
	actionErrorCount map[string]int

	handlerContexts map[string]*HandlerContext
}

// HandlerContext is the per-handler persistent scratch space. Messages keep
// insertion order; a system message, once present, stays at index 0 until an
// explicit clear without keep-system.
type HandlerContext struct {
	Messages []HandlerMessage
	Values   map[string]any
}

// NewContext creates an empty context for sessionID with default bounds.
func NewContext(sessionID string) *Context {
	now := time.Now()
	return &Context{
		sessionID:        sessionID,
		language:         DefaultLanguage,
		state:            StateIdle,
		createdAt:        now,
		lastActive:       now,
		maxHistory:       DefaultMaxHistory,
		maxRecent:        DefaultMaxRecentActions,
		maxFailed:        DefaultMaxFailedActions,
		clientMetadata:   make(map[string]any),
		active:           make(map[string]*ActionRecord),
		actionErrorCount: make(map[string]int),
		handlerContexts:  make(map[string]*HandlerContext),
	}
}

// SessionID returns the stable session key. Never empty.
func (c *Context) SessionID() string {
	return c.sessionID
}

// ClientID returns the room/device identifier, or "" if not yet known.
func (c *Context) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// RoomName returns the human-readable room label, or "".
func (c *Context) RoomName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomName
}

// Language returns the session's IETF language tag.
func (c *Context) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

// State returns the current conversation state.
func (c *Context) State() ConversationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState transitions the conversation state and bumps activity.
func (c *Context) SetState(s ConversationState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	c.touchLocked()
}

// LastActivity returns the timestamp of the most recent mutation.
func (c *Context) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// CreatedAt returns when this context was first created.
func (c *Context) CreatedAt() time.Time {
	return c.createdAt
}

// Devices returns a copy of the room's device inventory.
func (c *Context) Devices() []Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Device, len(c.devices))
	copy(out, c.devices)
	return out
}

// Metadata returns a shallow copy of the client metadata map.
func (c *Context) Metadata() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.clientMetadata))
	for k, v := range c.clientMetadata {
		out[k] = v
	}
	return out
}

// touchLocked advances lastActive monotonically. Callers hold c.mu.
func (c *Context) touchLocked() {
	if now := time.Now(); now.After(c.lastActive) {
		c.lastActive = now
	}
}

// Touch records activity without any other mutation.
func (c *Context) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()
}

// ─── Conversation history ─────────────────────────────────────────────────────

// AppendHistory records one completed interaction, evicting the oldest entry
// when the history bound is exceeded.
func (c *Context) AppendHistory(userText, response, intentName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, Interaction{
		Timestamp:  time.Now(),
		UserText:   userText,
		Response:   response,
		IntentName: intentName,
		ClientID:   c.clientID,
	})
	if len(c.history) > c.maxHistory {
		c.history = c.history[len(c.history)-c.maxHistory:]
	}
	c.touchLocked()
}

// History returns a copy of the conversation history, oldest first.
func (c *Context) History() []Interaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Interaction, len(c.history))
	copy(out, c.history)
	return out
}

// ─── Handler scratch space ────────────────────────────────────────────────────

// AppendHandlerMessage appends a role turn to handler's message list. A
// "system" role message is pinned: if one already exists at index 0 it is
// replaced in place, otherwise the new message is inserted at index 0.
func (c *Context) AppendHandlerMessage(handler, role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hc := c.handlerContextLocked(handler)
	msg := HandlerMessage{Role: role, Content: content}
	if role == "system" {
		if len(hc.Messages) > 0 && hc.Messages[0].Role == "system" {
			hc.Messages[0] = msg
		} else {
			hc.Messages = append([]HandlerMessage{msg}, hc.Messages...)
		}
	} else {
		hc.Messages = append(hc.Messages, msg)
	}
	c.touchLocked()
}

// HandlerMessages returns a copy of handler's message list in order.
func (c *Context) HandlerMessages(handler string) []HandlerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	hc, ok := c.handlerContexts[handler]
	if !ok {
		return nil
	}
	out := make([]HandlerMessage, len(hc.Messages))
	copy(out, hc.Messages)
	return out
}

// ClearHandlerMessages drops handler's message list. With keepSystem, a
// leading system message survives the clear.
func (c *Context) ClearHandlerMessages(handler string, keepSystem bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hc, ok := c.handlerContexts[handler]
	if !ok {
		return
	}
	if keepSystem && len(hc.Messages) > 0 && hc.Messages[0].Role == "system" {
		hc.Messages = hc.Messages[:1]
	} else {
		hc.Messages = nil
	}
	c.touchLocked()
}

// SetHandlerValue stores an arbitrary value in handler's scratch space.
func (c *Context) SetHandlerValue(handler, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hc := c.handlerContextLocked(handler)
	if hc.Values == nil {
		hc.Values = make(map[string]any)
	}
	hc.Values[key] = value
	c.touchLocked()
}

// HandlerValue retrieves a value previously stored via [Context.SetHandlerValue].
func (c *Context) HandlerValue(handler, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hc, ok := c.handlerContexts[handler]
	if !ok || hc.Values == nil {
		return nil, false
	}
	v, ok := hc.Values[key]
	return v, ok
}

func (c *Context) handlerContextLocked(handler string) *HandlerContext {
	hc, ok := c.handlerContexts[handler]
	if !ok {
		hc = &HandlerContext{}
		c.handlerContexts[handler] = hc
	}
	return hc
}

// ─── Fire-and-forget action registries ────────────────────────────────────────

// ErrDomainBusy is returned by [Context.BeginAction] when the domain's
// single slot is already occupied by an unfinished action.
type ErrDomainBusy struct {
	Domain  string
	Current ActionRecord
}

func (e *ErrDomainBusy) Error() string {
	return fmt.Sprintf("session %s: domain %q already has active action %q", e.Current.SessionID, e.Domain, e.Current.Action)
}

// BeginAction claims the domain's single action slot. The record's RoomID and
// SessionID are stamped from the context; cancel is invoked if the session is
// evicted while the action still runs. Returns [*ErrDomainBusy] if the slot
// is taken.
func (c *Context) BeginAction(domain, action, taskID string, cancel func(reason string)) (ActionRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.active[domain]; ok {
		return ActionRecord{}, &ErrDomainBusy{Domain: domain, Current: *cur}
	}
	rec := &ActionRecord{
		Domain:    domain,
		Action:    action,
		TaskID:    taskID,
		RoomID:    c.clientID,
		SessionID: c.sessionID,
		StartedAt: time.Now(),
		Status:    ActionRunning,
		cancel:    cancel,
	}
	c.active[domain] = rec
	c.touchLocked()
	return *rec, nil
}

// MarkActionCancelling flips the domain's slot to the cancelling state.
// Reports whether the domain had an active action.
func (c *Context) MarkActionCancelling(domain string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.active[domain]
	if !ok {
		return false
	}
	rec.Status = ActionCancelling
	c.touchLocked()
	return true
}

// CompleteAction releases the domain's slot and appends the finished record
// to the recent ring. No-op if the domain has no active action.
func (c *Context) CompleteAction(domain string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.active[domain]
	if !ok {
		return
	}
	delete(c.active, domain)
	done := *rec
	done.FinishedAt = time.Now()
	done.cancel = nil
	c.recentActions = append(c.recentActions, done)
	if len(c.recentActions) > c.maxRecent {
		c.recentActions = c.recentActions[len(c.recentActions)-c.maxRecent:]
	}
	c.touchLocked()
}

// FailAction releases the domain's slot, appends the record to the failed
// ring with the classified error, and bumps the domain's error counter.
// Returns the new error count for the domain.
func (c *Context) FailAction(domain, classifiedErr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.active[domain]
	if !ok {
		return c.actionErrorCount[domain]
	}
	delete(c.active, domain)
	failed := *rec
	failed.FinishedAt = time.Now()
	failed.Error = classifiedErr
	failed.cancel = nil
	c.failedActions = append(c.failedActions, failed)
	if len(c.failedActions) > c.maxFailed {
		c.failedActions = c.failedActions[len(c.failedActions)-c.maxFailed:]
	}
	c.actionErrorCount[domain]++
	c.touchLocked()
	return c.actionErrorCount[domain]
}

// ActiveActions returns a copy of the active set keyed by domain.
func (c *Context) ActiveActions() map[string]ActionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]ActionRecord, len(c.active))
	for d, rec := range c.active {
		out[d] = *rec
	}
	return out
}

// ActiveAction returns the domain's active record, if any.
func (c *Context) ActiveAction(domain string) (ActionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.active[domain]
	if !ok {
		return ActionRecord{}, false
	}
	return *rec, true
}

// RecentActions returns a copy of the successful-completion ring.
func (c *Context) RecentActions() []ActionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ActionRecord, len(c.recentActions))
	copy(out, c.recentActions)
	return out
}

// FailedActions returns a copy of the failure ring.
func (c *Context) FailedActions() []ActionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ActionRecord, len(c.failedActions))
	copy(out, c.failedActions)
	return out
}

// ActionErrorCount returns the accumulated failure count for domain.
func (c *Context) ActionErrorCount(domain string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actionErrorCount[domain]
}

// CancelAction flips one domain's slot to cancelling and invokes its cancel
// hook. Reports whether the domain had an active action. Like
// [Context.CancelAllActions] it does not wait for the task to finish.
func (c *Context) CancelAction(domain, reason string) bool {
	c.mu.Lock()
	rec, ok := c.active[domain]
	var cancel func(string)
	if ok {
		rec.Status = ActionCancelling
		cancel = rec.cancel
		c.touchLocked()
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	if cancel != nil {
		cancel(reason)
	}
	return true
}

// CancelAllActions invokes the cancel hook of every active action with the
// given reason. The actions remove themselves from the active set when their
// tasks observe cancellation; this method does not wait for that.
func (c *Context) CancelAllActions(reason string) {
	c.mu.Lock()
	cancels := make([]func(string), 0, len(c.active))
	for _, rec := range c.active {
		rec.Status = ActionCancelling
		if rec.cancel != nil {
			cancels = append(cancels, rec.cancel)
		}
	}
	c.mu.Unlock()

	// Run hooks outside the lock: they may call back into the context.
	for _, cancel := range cancels {
		cancel(reason)
	}
}
