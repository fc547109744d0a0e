// Package chat mediates client intents into conversation store mutations
// and simulated assistant replies. One Controller serves one client.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/schoolcare/server/assistant"
	"github.com/schoolcare/server/conversation"
	"github.com/schoolcare/server/suggest"
)

// ViewMode is what the client is currently showing.
type ViewMode string

const (
	ViewList ViewMode = "list"
	ViewChat ViewMode = "chat"
)

// maxTitleRunes bounds auto-inferred titles; longer first messages are
// truncated and marked with an ellipsis.
const maxTitleRunes = 25

// Options control the hardened behaviors that the legacy client left
// implicit.
type Options struct {
	// ProtectManualTitle prevents first-message title inference from
	// overwriting an earlier explicit rename.
	ProtectManualTitle bool
	// CancelPendingOnDelete aborts scheduled replies when their
	// conversation is deleted, instead of letting them fire into a
	// removed record.
	CancelPendingOnDelete bool
}

func DefaultOptions() Options {
	return Options{
		ProtectManualTitle:    true,
		CancelPendingOnDelete: true,
	}
}

// EventListener receives controller side effects for push notification.
type EventListener interface {
	OnTyping(conversationID string, typing bool)
	OnAssistantMessage(conversationID string, msg conversation.Message)
}

// Snapshot is the read-only view the presentation layer renders from.
type Snapshot struct {
	View                  ViewMode `json:"view"`
	ActiveConversationID  string   `json:"active_conversation_id,omitempty"`
	Typing                bool     `json:"typing"`
	QuickSuggestionsShown bool     `json:"quick_suggestions_shown"`
	// QuickSuggestions carries the onboarding prompt labels whenever
	// QuickSuggestionsShown is true, so clients render text the server
	// owns.
	QuickSuggestions []string `json:"quick_suggestions,omitempty"`
	PendingInput     string   `json:"pending_input,omitempty"`
	PendingDeleteID  string   `json:"pending_delete_id,omitempty"`
}

// Controller orchestrates the conversation store and the reply simulator
// for a single client. All mutations of client view state go through it.
type Controller struct {
	store conversation.Store
	sim   *assistant.Simulator
	opts  Options

	mu               sync.Mutex
	view             ViewMode
	activeID         string
	pendingInput     string
	quickSuggestions bool
	pendingDelete    string
	typing           map[string]bool
	pending          map[string][]*pendingReply
	closed           bool

	listenerMu sync.Mutex
	listeners  []EventListener
}

func NewController(store conversation.Store, sim *assistant.Simulator, opts Options) *Controller {
	return &Controller{
		store:   store,
		sim:     sim,
		opts:    opts,
		view:    ViewList,
		typing:  make(map[string]bool),
		pending: make(map[string][]*pendingReply),
	}
}

func (c *Controller) AddEventListener(l EventListener) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Controller) copyListeners() []EventListener {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	out := make([]EventListener, len(c.listeners))
	copy(out, c.listeners)
	return out
}

// NewConversation creates a fresh conversation, makes it active and
// switches to chat view with the onboarding quick suggestions shown.
func (c *Controller) NewConversation(ctx context.Context) (conversation.Meta, error) {
	meta, err := c.store.Create(ctx)
	if err != nil {
		return conversation.Meta{}, err
	}

	c.mu.Lock()
	c.activeID = meta.ID
	c.view = ViewChat
	c.quickSuggestions = true
	c.pendingInput = ""
	c.mu.Unlock()

	return meta, nil
}

// SelectConversation makes an existing conversation active and switches to
// chat view. Existing conversations skip the onboarding prompts. Selecting
// an unknown id is a no-op.
func (c *Controller) SelectConversation(id string) error {
	_, found, err := c.store.Get(id)
	if err != nil {
		return err
	}
	if !found {
		slog.Debug("select ignored, conversation not found", "conversationId", id)
		return nil
	}

	c.mu.Lock()
	c.activeID = id
	c.view = ViewChat
	c.quickSuggestions = false
	c.pendingInput = ""
	c.mu.Unlock()

	return nil
}

// BackToList switches to list view. The active conversation reference is
// kept so reopening the chat view restores the same thread.
func (c *Controller) BackToList() {
	c.mu.Lock()
	c.view = ViewList
	c.mu.Unlock()
}

// SendMessage appends a user message to the active conversation, infers
// the title on the conversation's first user message and schedules the
// simulated reply. Empty input or a missing active conversation degrades
// to a no-op.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	activeID := c.activeID
	c.mu.Unlock()
	if activeID == "" {
		slog.Debug("send ignored, no active conversation")
		return nil
	}

	meta, found, err := c.store.Get(activeID)
	if err != nil {
		return err
	}
	if !found {
		slog.Debug("send ignored, active conversation gone", "conversationId", activeID)
		return nil
	}

	if err := c.store.AppendMessage(ctx, activeID, conversation.NewUserMessage(text)); err != nil {
		return err
	}

	c.mu.Lock()
	c.pendingInput = ""
	c.quickSuggestions = false
	c.mu.Unlock()

	if c.shouldInferTitle(meta) {
		if err := c.store.InferTitle(ctx, activeID, InferTitle(text)); err != nil {
			slog.Error("failed to infer title", "conversationId", activeID, "error", err)
		}
	}

	c.scheduleReply(activeID, text)
	return nil
}

func (c *Controller) shouldInferTitle(meta conversation.Meta) bool {
	if meta.HasUserMessage {
		return false
	}
	if c.opts.ProtectManualTitle && meta.TitleCustomized {
		return false
	}
	return true
}

// InferTitle derives a conversation title from its first user message:
// the text itself up to 25 runes, longer input truncated with an ellipsis.
func InferTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= maxTitleRunes {
		return text
	}
	return string(runes[:maxTitleRunes]) + "..."
}

// PickSuggestion stages a suggestion label as the pending input. It never
// sends automatically; the client confirms with an explicit send.
func (c *Controller) PickSuggestion(suggestion string) {
	c.mu.Lock()
	c.pendingInput = suggestion
	c.mu.Unlock()
}

// Rename updates a conversation title from an explicit user action.
// Empty titles and unknown ids degrade to no-ops.
func (c *Controller) Rename(ctx context.Context, id, title string) error {
	if strings.TrimSpace(title) == "" {
		return nil
	}
	err := c.store.Rename(ctx, id, title)
	if errors.Is(err, conversation.ErrConversationNotFound) {
		slog.Debug("rename ignored, conversation not found", "conversationId", id)
		return nil
	}
	return err
}

// RequestDelete stages a conversation for deletion pending confirmation.
// Returns whether the conversation exists and was staged.
func (c *Controller) RequestDelete(id string) (bool, error) {
	_, found, err := c.store.Get(id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	c.mu.Lock()
	c.pendingDelete = id
	c.mu.Unlock()
	return true, nil
}

// ConfirmDelete resolves a staged deletion. accept=false leaves all state
// unchanged. Confirming with nothing staged is a no-op.
func (c *Controller) ConfirmDelete(ctx context.Context, accept bool) error {
	c.mu.Lock()
	id := c.pendingDelete
	c.pendingDelete = ""
	if id == "" || !accept {
		c.mu.Unlock()
		return nil
	}

	wasActive := c.activeID == id
	if wasActive {
		c.activeID = ""
		c.view = ViewList
	}
	delete(c.typing, id)

	var cancelled []*pendingReply
	if c.opts.CancelPendingOnDelete {
		cancelled = c.pending[id]
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, entry := range cancelled {
		entry.cancel()
	}

	return c.store.Delete(ctx, id)
}

// Snapshot returns the current client view state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		View:                  c.view,
		ActiveConversationID:  c.activeID,
		Typing:                c.typing[c.activeID],
		QuickSuggestionsShown: c.quickSuggestions,
		PendingInput:          c.pendingInput,
		PendingDeleteID:       c.pendingDelete,
	}
	if c.quickSuggestions {
		snap.QuickSuggestions = append([]string(nil), suggest.QuickSuggestions...)
	}
	return snap
}

// Close aborts all pending replies and makes further sends no-ops.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	var cancelled []*pendingReply
	for id, list := range c.pending {
		cancelled = append(cancelled, list...)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, entry := range cancelled {
		entry.cancel()
	}
}

// pendingReply identifies one scheduled reply so its cancel func can be
// removed individually once the reply lands.
type pendingReply struct {
	cancel context.CancelFunc
}

func (c *Controller) scheduleReply(conversationID, input string) {
	ctx, cancel := context.WithCancel(context.Background())
	entry := &pendingReply{cancel: cancel}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return
	}
	c.pending[conversationID] = append(c.pending[conversationID], entry)
	c.mu.Unlock()

	c.sim.Schedule(ctx, conversationID, input, &replySink{c: c, entry: entry})
}

func (c *Controller) removePending(conversationID string, entry *pendingReply) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.pending[conversationID]
	for i, e := range list {
		if e == entry {
			c.pending[conversationID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(c.pending[conversationID]) == 0 {
		delete(c.pending, conversationID)
	}
}

// replySink routes one scheduled reply's side effects back into the
// controller, keeping the assistant.Sink methods off the exported API.
type replySink struct {
	c     *Controller
	entry *pendingReply
}

func (s *replySink) SetTyping(conversationID string, typing bool) {
	c := s.c

	c.mu.Lock()
	if typing {
		c.typing[conversationID] = true
	} else {
		delete(c.typing, conversationID)
	}
	c.mu.Unlock()

	for _, l := range c.copyListeners() {
		l.OnTyping(conversationID, typing)
	}
}

func (s *replySink) DeliverReply(conversationID string, reply assistant.Reply) {
	c := s.c
	c.removePending(conversationID, s.entry)

	msg := conversation.NewAssistantMessage(reply.Text, reply.Suggestions)
	err := c.store.AppendMessage(context.Background(), conversationID, msg)
	if errors.Is(err, conversation.ErrConversationNotFound) {
		slog.Debug("reply dropped, conversation gone", "conversationId", conversationID)
		return
	}
	if err != nil {
		slog.Error("failed to append assistant reply", "conversationId", conversationID, "error", err)
		return
	}

	for _, l := range c.copyListeners() {
		l.OnAssistantMessage(conversationID, msg)
	}
}
