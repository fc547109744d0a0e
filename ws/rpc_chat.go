package ws

import (
	"context"

	"github.com/schoolcare/server/rpc"
	"github.com/sourcegraph/jsonrpc2"
)

func (h *rpcMethodHandler) handleChatOpen(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ChatOpenParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if params.ConversationID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "conversation_id is required")
		return
	}

	controller := h.state.getController()
	if err := controller.SelectConversation(params.ConversationID); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to open conversation")
		return
	}

	messages, err := h.store.Messages(ctx, params.ConversationID)
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to load messages")
		return
	}

	h.log.Debug("chat opened", "conversationId", params.ConversationID)

	result := rpc.ChatOpenResult{
		Snapshot: controller.Snapshot(),
		Messages: messages,
	}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send chat open response", "error", err)
	}
}

func (h *rpcMethodHandler) handleChatBack(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	controller := h.state.getController()
	controller.BackToList()

	result := rpc.ChatStateResult{Snapshot: controller.Snapshot()}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send chat back response", "error", err)
	}
}

func (h *rpcMethodHandler) handleChatState(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	controller := h.state.getController()

	result := rpc.ChatStateResult{Snapshot: controller.Snapshot()}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send chat state response", "error", err)
	}
}

func (h *rpcMethodHandler) handleChatMessage(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ChatMessageParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	controller := h.state.getController()
	if err := controller.SendMessage(ctx, params.Content); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to send message")
		return
	}

	result := rpc.ChatStateResult{Snapshot: controller.Snapshot()}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send chat message response", "error", err)
	}
}

func (h *rpcMethodHandler) handleChatPickSuggestion(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ChatPickSuggestionParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	controller := h.state.getController()
	controller.PickSuggestion(params.Suggestion)

	result := rpc.ChatStateResult{Snapshot: controller.Snapshot()}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send pick suggestion response", "error", err)
	}
}

func (h *rpcMethodHandler) handleChatEventsSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ChatEventsSubscribeParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if params.ConversationID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "conversation_id is required")
		return
	}

	notifier := h.state.getNotifier()
	id, history, err := h.chatWatcher.Subscribe(notifier, params.ConversationID)
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to subscribe")
		return
	}
	h.state.trackSubscription(id, h.chatWatcher)
	h.log.Debug("subscribed", "watcher", "chat events", "watchId", id)

	result := rpc.ChatEventsSubscribeResult{
		ID:      id,
		History: history,
	}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send chat events subscribe response", "error", err)
	}
}
