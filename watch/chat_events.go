package watch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/schoolcare/server/chat"
	"github.com/schoolcare/server/conversation"
)

// chatEvent is one typing transition or delivered assistant message.
type chatEvent struct {
	conversationID string
	typing         *bool
	message        *conversation.Message
}

// ChatEventsWatcher manages per-conversation subscriptions for typing
// indicator changes and assistant messages. Implements chat.EventListener
// to receive events from controllers.
type ChatEventsWatcher struct {
	*BaseWatcher
	store   conversation.Store
	eventCh chan chatEvent

	convMu    sync.RWMutex
	convToIDs map[string][]string // conversationID -> subscription IDs
	idToConv  map[string]string   // subscription ID -> conversationID
}

var _ chat.EventListener = (*ChatEventsWatcher)(nil)
var _ Watcher = (*ChatEventsWatcher)(nil)

func NewChatEventsWatcher(store conversation.Store) *ChatEventsWatcher {
	return &ChatEventsWatcher{
		BaseWatcher: NewBaseWatcher("ce"),
		store:       store,
		eventCh:     make(chan chatEvent, 256),
		convToIDs:   make(map[string][]string),
		idToConv:    make(map[string]string),
	}
}

func (w *ChatEventsWatcher) Start() error {
	go w.eventLoop()
	slog.Info("ChatEventsWatcher started")
	return nil
}

func (w *ChatEventsWatcher) Stop() {
	w.Cancel()
	slog.Info("ChatEventsWatcher stopped")
}

// OnTyping implements chat.EventListener. Called from simulator
// goroutines, must not block.
func (w *ChatEventsWatcher) OnTyping(conversationID string, typing bool) {
	w.enqueue(chatEvent{conversationID: conversationID, typing: &typing})
}

// OnAssistantMessage implements chat.EventListener.
func (w *ChatEventsWatcher) OnAssistantMessage(conversationID string, msg conversation.Message) {
	w.enqueue(chatEvent{conversationID: conversationID, message: &msg})
}

func (w *ChatEventsWatcher) enqueue(event chatEvent) {
	if w.Context().Err() != nil {
		return
	}

	select {
	case w.eventCh <- event:
	default:
		slog.Warn("chat event dropped (buffer full)",
			"conversationId", event.conversationID)
	}
}

func (w *ChatEventsWatcher) eventLoop() {
	for {
		select {
		case <-w.Context().Done():
			return
		case event := <-w.eventCh:
			w.notifyEvent(event)
		}
	}
}

func (w *ChatEventsWatcher) notifyEvent(event chatEvent) {
	// Get subscription IDs for this conversation
	w.convMu.RLock()
	ids := make([]string, len(w.convToIDs[event.conversationID]))
	copy(ids, w.convToIDs[event.conversationID])
	w.convMu.RUnlock()

	if len(ids) == 0 {
		return
	}

	method := "chat.message"
	var params any
	switch {
	case event.typing != nil:
		method = "chat.typing"
	case event.message == nil:
		return
	}

	for _, id := range ids {
		sub := w.GetSubscription(id)
		if sub == nil {
			continue
		}

		if event.typing != nil {
			params = chatTypingParams{
				ID:             sub.ID,
				ConversationID: event.conversationID,
				Typing:         *event.typing,
			}
		} else {
			params = chatMessageParams{
				ID:             sub.ID,
				ConversationID: event.conversationID,
				Message:        *event.message,
			}
		}

		n := Notification{Method: method, Params: params}
		if err := sub.Notifier.Notify(context.Background(), n); err != nil {
			slog.Debug("failed to notify subscriber",
				"id", sub.ID,
				"conversationId", event.conversationID,
				"error", err)
		}
	}
}

type chatTypingParams struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Typing         bool   `json:"typing"`
}

type chatMessageParams struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"conversation_id"`
	Message        conversation.Message `json:"message"`
}

// Subscribe registers a subscriber for a specific conversation.
// Returns the subscription ID and the current message history.
func (w *ChatEventsWatcher) Subscribe(notifier Notifier, conversationID string) (string, []conversation.Message, error) {
	id := w.GenerateID()
	sub := &Subscription{
		ID:       id,
		Notifier: notifier,
	}

	w.convMu.Lock()
	w.convToIDs[conversationID] = append(w.convToIDs[conversationID], id)
	w.idToConv[id] = conversationID
	w.convMu.Unlock()

	// Register subscription BEFORE getting history to avoid message loss.
	// Rare duplicates are acceptable; message loss is not.
	w.AddSubscription(sub)

	history, err := w.store.Messages(context.Background(), conversationID)
	if err != nil {
		w.Unsubscribe(id)
		return "", nil, err
	}

	return id, history, nil
}

// Unsubscribe removes a subscription.
func (w *ChatEventsWatcher) Unsubscribe(id string) {
	w.convMu.Lock()
	w.removeConvMapping(id)
	w.convMu.Unlock()

	w.RemoveSubscription(id)
}

// removeConvMapping removes the conversation mapping for a subscription.
// Caller must hold convMu.
func (w *ChatEventsWatcher) removeConvMapping(id string) {
	conversationID, ok := w.idToConv[id]
	if !ok {
		return
	}

	delete(w.idToConv, id)
	ids := w.convToIDs[conversationID]
	for i, v := range ids {
		if v == id {
			w.convToIDs[conversationID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(w.convToIDs[conversationID]) == 0 {
		delete(w.convToIDs, conversationID)
	}
}
