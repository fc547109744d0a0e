package watch

import (
	"log/slog"

	"github.com/schoolcare/server/conversation"
)

// ConversationListWatcher notifies subscribers when the conversation list
// changes. Uses a channel-based async notification pattern to avoid
// blocking the store's mutex during network I/O.
type ConversationListWatcher struct {
	*BaseWatcher
	store   conversation.Store
	eventCh chan conversation.ChangeEvent
}

var _ conversation.OnChangeListener = (*ConversationListWatcher)(nil)
var _ Watcher = (*ConversationListWatcher)(nil)

func NewConversationListWatcher(store conversation.Store) *ConversationListWatcher {
	w := &ConversationListWatcher{
		BaseWatcher: NewBaseWatcher("cl"),
		store:       store,
		eventCh:     make(chan conversation.ChangeEvent, 64), // Buffer to avoid blocking
	}
	store.AddOnChangeListener(w)
	return w
}

func (w *ConversationListWatcher) Start() error {
	go w.eventLoop()
	slog.Info("ConversationListWatcher started")
	return nil
}

func (w *ConversationListWatcher) Stop() {
	w.Cancel()
	slog.Info("ConversationListWatcher stopped")
}

// OnConversationChange implements conversation.OnChangeListener.
// Called from store mutation paths, must not block.
func (w *ConversationListWatcher) OnConversationChange(event conversation.ChangeEvent) {
	if w.Context().Err() != nil {
		return
	}

	select {
	case w.eventCh <- event:
	default:
		slog.Warn("conversation change dropped (buffer full)",
			"conversationId", event.Meta.ID,
			"op", event.Op)
	}
}

func (w *ConversationListWatcher) eventLoop() {
	for {
		select {
		case <-w.Context().Done():
			return
		case event := <-w.eventCh:
			w.notifyChange(event)
		}
	}
}

func (w *ConversationListWatcher) notifyChange(event conversation.ChangeEvent) {
	if !w.HasSubscriptions() {
		return
	}

	w.NotifyAll("conversation.list.changed", func(sub *Subscription) any {
		params := conversationListChangedParams{
			ID:        sub.ID,
			Operation: string(event.Op),
		}
		if event.Op == conversation.OperationDelete {
			params.ConversationID = event.Meta.ID
		} else {
			meta := event.Meta
			params.Conversation = &meta
		}
		return params
	})

	slog.Debug("notified conversation list change", "operation", event.Op)
}

// Subscribe registers a subscriber and returns the subscription ID along
// with the current conversation list.
func (w *ConversationListWatcher) Subscribe(notifier Notifier) (string, []conversation.Meta, error) {
	id := w.GenerateID()
	sub := &Subscription{
		ID:       id,
		Notifier: notifier,
	}
	// Add subscription BEFORE getting the list to avoid missing events
	// that occur between List() and AddSubscription().
	w.AddSubscription(sub)

	conversations, err := w.store.List()
	if err != nil {
		w.RemoveSubscription(id)
		return "", nil, err
	}

	return id, conversations, nil
}

type conversationListChangedParams struct {
	ID             string             `json:"id"`
	Operation      string             `json:"operation"`
	Conversation   *conversation.Meta `json:"conversation,omitempty"`
	ConversationID string             `json:"conversationId,omitempty"`
}
