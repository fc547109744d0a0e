package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/schoolcare/server/assistant"
	"github.com/schoolcare/server/conversation"
	"github.com/schoolcare/server/suggest"
)

type testRules struct{ engine *suggest.Engine }

func (r testRules) Engine() *suggest.Engine { return r.engine }

type testFixture struct {
	store      *conversation.FileStore
	controller *Controller
	replies    chan conversation.Message
	typing     chan bool
}

func (f *testFixture) OnTyping(conversationID string, typing bool) {
	f.typing <- typing
}

func (f *testFixture) OnAssistantMessage(conversationID string, msg conversation.Message) {
	f.replies <- msg
}

func newFixture(t *testing.T, opts Options) *testFixture {
	t.Helper()
	return newFixtureWithDelays(t, opts, assistant.Config{
		TypingDelay: 2 * time.Millisecond,
		ReplyDelay:  6 * time.Millisecond,
	})
}

func newFixtureWithDelays(t *testing.T, opts Options, cfg assistant.Config) *testFixture {
	t.Helper()

	store, err := conversation.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	sim := assistant.New(testRules{suggest.NewEngine(suggest.DefaultRules())}, cfg)

	f := &testFixture{
		store:      store,
		controller: NewController(store, sim, opts),
		replies:    make(chan conversation.Message, 8),
		typing:     make(chan bool, 16),
	}
	f.controller.AddEventListener(f)
	t.Cleanup(f.controller.Close)
	return f
}

func (f *testFixture) waitReply(t *testing.T) conversation.Message {
	t.Helper()
	select {
	case msg := <-f.replies:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for assistant reply")
		return conversation.Message{}
	}
}

func (f *testFixture) getMeta(t *testing.T, id string) conversation.Meta {
	t.Helper()
	meta, found, err := f.store.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatalf("conversation %s not found", id)
	}
	return meta
}

func TestNewConversation(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	meta, err := f.controller.NewConversation(context.Background())
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	snap := f.controller.Snapshot()
	if snap.View != ViewChat {
		t.Errorf("view = %q, want chat", snap.View)
	}
	if snap.ActiveConversationID != meta.ID {
		t.Errorf("active = %q, want %q", snap.ActiveConversationID, meta.ID)
	}
	if !snap.QuickSuggestionsShown {
		t.Error("new conversations must show quick suggestions")
	}
	if meta.MessageCount != 1 {
		t.Errorf("message count = %d, want seeded greeting", meta.MessageCount)
	}
}

func TestSelectConversation_HidesQuickSuggestions(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	meta, err := f.controller.NewConversation(context.Background())
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	f.controller.BackToList()

	if err := f.controller.SelectConversation(meta.ID); err != nil {
		t.Fatalf("SelectConversation: %v", err)
	}

	snap := f.controller.Snapshot()
	if snap.View != ViewChat {
		t.Errorf("view = %q, want chat", snap.View)
	}
	if snap.QuickSuggestionsShown {
		t.Error("existing conversations must skip onboarding prompts")
	}
}

func TestSelectConversation_UnknownIsNoop(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	if err := f.controller.SelectConversation("missing"); err != nil {
		t.Fatalf("SelectConversation: %v", err)
	}
	if snap := f.controller.Snapshot(); snap.View != ViewList || snap.ActiveConversationID != "" {
		t.Errorf("snapshot = %+v, want untouched list view", snap)
	}
}

func TestBackToList_KeepsActiveReference(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	meta, err := f.controller.NewConversation(context.Background())
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	f.controller.BackToList()

	snap := f.controller.Snapshot()
	if snap.View != ViewList {
		t.Errorf("view = %q, want list", snap.View)
	}
	if snap.ActiveConversationID != meta.ID {
		t.Error("active reference must survive returning to the list")
	}
}

func TestSendMessage_AppendsPair(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	meta, err := f.controller.NewConversation(context.Background())
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	if err := f.controller.SendMessage(context.Background(), "Con tôi hay mệt mỏi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	reply := f.waitReply(t)

	got := f.getMeta(t, meta.ID)
	if got.MessageCount != 3 {
		t.Errorf("message count = %d, want greeting + user + assistant", got.MessageCount)
	}
	if !got.UpdatedAt.Equal(reply.Timestamp) {
		t.Errorf("UpdatedAt = %v, want assistant timestamp %v", got.UpdatedAt, reply.Timestamp)
	}
	if f.controller.Snapshot().QuickSuggestionsShown {
		t.Error("quick suggestions must hide after the first send")
	}
}

func TestSendMessage_EmptyIsNoop(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	meta, err := f.controller.NewConversation(context.Background())
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	for _, input := range []string{"", "   ", "\n\t"} {
		if err := f.controller.SendMessage(context.Background(), input); err != nil {
			t.Fatalf("SendMessage(%q): %v", input, err)
		}
	}

	time.Sleep(30 * time.Millisecond)
	if got := f.getMeta(t, meta.ID); got.MessageCount != 1 {
		t.Errorf("message count = %d, want unchanged", got.MessageCount)
	}
}

func TestSendMessage_NoActiveConversation(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	if err := f.controller.SendMessage(context.Background(), "xin chào"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	list, err := f.store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("len(list) = %d, want no conversations touched", len(list))
	}
}

func TestTitleInference(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "short message is used verbatim",
			input: "Triệu chứng sốt cao",
			want:  "Triệu chứng sốt cao",
		},
		{
			name:  "long message is truncated at 25 runes",
			input: "Con tôi bị sốt cao kèm theo ho và đau đầu từ hôm qua",
			want:  string([]rune("Con tôi bị sốt cao kèm theo ho và đau đầu từ hôm qua")[:25]) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DefaultOptions())
			meta, err := f.controller.NewConversation(context.Background())
			if err != nil {
				t.Fatalf("NewConversation: %v", err)
			}

			if err := f.controller.SendMessage(context.Background(), tt.input); err != nil {
				t.Fatalf("SendMessage: %v", err)
			}
			f.waitReply(t)

			if got := f.getMeta(t, meta.ID); got.Title != tt.want {
				t.Errorf("title = %q, want %q", got.Title, tt.want)
			}
		})
	}
}

func TestTitleInference_OnlyFirstUserMessage(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	meta, err := f.controller.NewConversation(context.Background())
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	if err := f.controller.SendMessage(context.Background(), "Câu hỏi đầu tiên"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	f.waitReply(t)
	if err := f.controller.SendMessage(context.Background(), "Câu hỏi thứ hai"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	f.waitReply(t)

	if got := f.getMeta(t, meta.ID); got.Title != "Câu hỏi đầu tiên" {
		t.Errorf("title = %q, want first message only", got.Title)
	}
}

func TestTitleInference_RenameProtection(t *testing.T) {
	tests := []struct {
		name    string
		protect bool
		want    string
	}{
		{"protected rename wins", true, "Tên do phụ huynh đặt"},
		{"legacy inference overwrites", false, "Câu hỏi về sốt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.ProtectManualTitle = tt.protect
			f := newFixture(t, opts)

			meta, err := f.controller.NewConversation(context.Background())
			if err != nil {
				t.Fatalf("NewConversation: %v", err)
			}
			if err := f.controller.Rename(context.Background(), meta.ID, "Tên do phụ huynh đặt"); err != nil {
				t.Fatalf("Rename: %v", err)
			}

			if err := f.controller.SendMessage(context.Background(), "Câu hỏi về sốt"); err != nil {
				t.Fatalf("SendMessage: %v", err)
			}
			f.waitReply(t)

			if got := f.getMeta(t, meta.ID); got.Title != tt.want {
				t.Errorf("title = %q, want %q", got.Title, tt.want)
			}
		})
	}
}

func TestRename_EmptyIsNoop(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	meta, err := f.controller.NewConversation(context.Background())
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	if err := f.controller.Rename(context.Background(), meta.ID, "   "); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if got := f.getMeta(t, meta.ID); got.Title != conversation.DefaultTitle {
		t.Errorf("title = %q, want unchanged", got.Title)
	}
}

func TestPickSuggestion_StagesInputOnly(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	meta, err := f.controller.NewConversation(context.Background())
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	f.controller.PickSuggestion("Triệu chứng sốt cao")

	if snap := f.controller.Snapshot(); snap.PendingInput != "Triệu chứng sốt cao" {
		t.Errorf("pending input = %q", snap.PendingInput)
	}
	if got := f.getMeta(t, meta.ID); got.MessageCount != 1 {
		t.Error("picking a suggestion must not send")
	}
}

func TestDelete_RequiresConfirmation(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	meta, err := f.controller.NewConversation(context.Background())
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	staged, err := f.controller.RequestDelete(meta.ID)
	if err != nil {
		t.Fatalf("RequestDelete: %v", err)
	}
	if !staged {
		t.Fatal("expected delete to be staged")
	}

	// Declining leaves everything unchanged.
	if err := f.controller.ConfirmDelete(context.Background(), false); err != nil {
		t.Fatalf("ConfirmDelete(false): %v", err)
	}
	if _, found, _ := f.store.Get(meta.ID); !found {
		t.Fatal("declined delete must not remove the conversation")
	}

	if _, err := f.controller.RequestDelete(meta.ID); err != nil {
		t.Fatalf("RequestDelete: %v", err)
	}
	if err := f.controller.ConfirmDelete(context.Background(), true); err != nil {
		t.Fatalf("ConfirmDelete(true): %v", err)
	}
	if _, found, _ := f.store.Get(meta.ID); found {
		t.Fatal("confirmed delete must remove the conversation")
	}
}

func TestDelete_ActiveClearsPointer(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	meta, err := f.controller.NewConversation(context.Background())
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	if _, err := f.controller.RequestDelete(meta.ID); err != nil {
		t.Fatalf("RequestDelete: %v", err)
	}
	if err := f.controller.ConfirmDelete(context.Background(), true); err != nil {
		t.Fatalf("ConfirmDelete: %v", err)
	}

	snap := f.controller.Snapshot()
	if snap.ActiveConversationID != "" {
		t.Error("deleting the active conversation must clear the active pointer")
	}
	if snap.View != ViewList {
		t.Errorf("view = %q, want list after deleting the active conversation", snap.View)
	}
}

func TestDelete_NonActiveLeavesActiveUntouched(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	other, err := f.controller.NewConversation(context.Background())
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	active, err := f.controller.NewConversation(context.Background())
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	if _, err := f.controller.RequestDelete(other.ID); err != nil {
		t.Fatalf("RequestDelete: %v", err)
	}
	if err := f.controller.ConfirmDelete(context.Background(), true); err != nil {
		t.Fatalf("ConfirmDelete: %v", err)
	}

	if snap := f.controller.Snapshot(); snap.ActiveConversationID != active.ID {
		t.Errorf("active = %q, want %q", snap.ActiveConversationID, active.ID)
	}
	if got := f.getMeta(t, active.ID); got.MessageCount != 1 {
		t.Error("active conversation content must be untouched")
	}
}

func TestDelete_CancelsPendingReply(t *testing.T) {
	// Slow reply so the delete reliably lands before delivery.
	f := newFixtureWithDelays(t, DefaultOptions(), assistant.Config{
		TypingDelay: 10 * time.Millisecond,
		ReplyDelay:  2 * time.Second,
	})
	meta, err := f.controller.NewConversation(context.Background())
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	if err := f.controller.SendMessage(context.Background(), "Con bị sốt"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := f.controller.RequestDelete(meta.ID); err != nil {
		t.Fatalf("RequestDelete: %v", err)
	}
	if err := f.controller.ConfirmDelete(context.Background(), true); err != nil {
		t.Fatalf("ConfirmDelete: %v", err)
	}

	select {
	case msg := <-f.replies:
		t.Errorf("got reply %q after delete, want cancelled", msg.Text)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTypingIndicator_Sequence(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	if _, err := f.controller.NewConversation(context.Background()); err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	if err := f.controller.SendMessage(context.Background(), "đau bụng quá"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if on := <-f.typing; !on {
		t.Error("first typing event must turn the indicator on")
	}
	if on := <-f.typing; on {
		t.Error("second typing event must turn the indicator off")
	}
	f.waitReply(t)

	if f.controller.Snapshot().Typing {
		t.Error("typing must be off after the reply resolved")
	}
}

func TestEndToEnd_FeverScenario(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	meta, err := f.controller.NewConversation(context.Background())
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	if err := f.controller.SendMessage(context.Background(), "Triệu chứng sốt cao"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	reply := f.waitReply(t)

	msgs, err := f.store.Messages(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want greeting + user + assistant", len(msgs))
	}
	if msgs[0].Author != conversation.AuthorAssistant || msgs[1].Author != conversation.AuthorUser || msgs[2].Author != conversation.AuthorAssistant {
		t.Errorf("author order = %q %q %q", msgs[0].Author, msgs[1].Author, msgs[2].Author)
	}

	if got := f.getMeta(t, meta.ID); got.Title != "Triệu chứng sốt cao" {
		t.Errorf("title = %q, want inferred from first message", got.Title)
	}

	want := []string{"Uống nhiều nước", "Theo dõi nhiệt độ", "Đến cơ sở y tế gần nhất"}
	if len(reply.Suggestions) != len(want) {
		t.Fatalf("suggestions = %v, want %v", reply.Suggestions, want)
	}
	for i := range want {
		if reply.Suggestions[i] != want[i] {
			t.Errorf("suggestions[%d] = %q, want %q", i, reply.Suggestions[i], want[i])
		}
	}
	if !strings.Contains(reply.Text, suggest.BaseReply) {
		t.Errorf("reply text %q must contain the base acknowledgment", reply.Text)
	}
}

func TestReply_NoKeywordHasNoSuggestions(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	if _, err := f.controller.NewConversation(context.Background()); err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	if err := f.controller.SendMessage(context.Background(), "Phòng y tế mở cửa lúc mấy giờ?"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	reply := f.waitReply(t)

	if reply.Text != suggest.BaseReply {
		t.Errorf("reply text = %q, want bare base acknowledgment", reply.Text)
	}
	if len(reply.Suggestions) != 0 {
		t.Errorf("suggestions = %v, want none", reply.Suggestions)
	}
}

func TestSnapshot_CarriesQuickSuggestionLabels(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	if _, err := f.controller.NewConversation(context.Background()); err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	snap := f.controller.Snapshot()
	if len(snap.QuickSuggestions) != len(suggest.QuickSuggestions) {
		t.Fatalf("quick suggestions = %d labels, want %d", len(snap.QuickSuggestions), len(suggest.QuickSuggestions))
	}
	for i, want := range suggest.QuickSuggestions {
		if snap.QuickSuggestions[i] != want {
			t.Errorf("quick suggestion[%d] = %q, want %q", i, snap.QuickSuggestions[i], want)
		}
	}

	if err := f.controller.SendMessage(context.Background(), "Con tôi bị sốt"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	snap = f.controller.Snapshot()
	if len(snap.QuickSuggestions) != 0 {
		t.Errorf("quick suggestions after send = %v, want none", snap.QuickSuggestions)
	}
}

func TestSendMessage_AfterCloseIsNoOp(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	meta, err := f.controller.NewConversation(context.Background())
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	f.controller.Close()

	if err := f.controller.SendMessage(context.Background(), "Con tôi bị sốt"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if got := f.getMeta(t, meta.ID); got.MessageCount != 1 {
		t.Errorf("message count = %d, want the greeting only", got.MessageCount)
	}
}

func TestDeliveredReply_ReleasesOnlyItsOwnCancel(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	c := f.controller

	first := &pendingReply{cancel: func() {}}
	second := &pendingReply{cancel: func() {}}
	c.mu.Lock()
	c.pending["conv"] = []*pendingReply{first, second}
	c.mu.Unlock()

	c.removePending("conv", first)

	c.mu.Lock()
	left := append([]*pendingReply(nil), c.pending["conv"]...)
	c.mu.Unlock()
	if len(left) != 1 || left[0] != second {
		t.Fatalf("pending after first delivery = %d entries, want the second reply only", len(left))
	}

	c.removePending("conv", second)

	c.mu.Lock()
	_, ok := c.pending["conv"]
	c.mu.Unlock()
	if ok {
		t.Error("pending entry should be dropped once empty")
	}
}

func TestDelete_CancelsLaterPendingReply(t *testing.T) {
	f := newFixtureWithDelays(t, DefaultOptions(), assistant.Config{
		TypingDelay: 5 * time.Millisecond,
		ReplyDelay:  250 * time.Millisecond,
	})

	meta, err := f.controller.NewConversation(context.Background())
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	if err := f.controller.SendMessage(context.Background(), "Con tôi bị sốt"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	if err := f.controller.SendMessage(context.Background(), "Cháu còn đau đầu nữa"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	// First reply lands while the second is still scheduled.
	f.waitReply(t)

	f.controller.mu.Lock()
	left := len(f.controller.pending[meta.ID])
	f.controller.mu.Unlock()
	if left != 1 {
		t.Fatalf("pending replies after first delivery = %d, want 1", left)
	}

	if _, err := f.controller.RequestDelete(meta.ID); err != nil {
		t.Fatalf("RequestDelete: %v", err)
	}
	if err := f.controller.ConfirmDelete(context.Background(), true); err != nil {
		t.Fatalf("ConfirmDelete: %v", err)
	}

	select {
	case msg := <-f.replies:
		t.Fatalf("second reply %q delivered after delete", msg.Text)
	case <-time.After(400 * time.Millisecond):
	}
}
