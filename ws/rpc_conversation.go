package ws

import (
	"context"

	"github.com/schoolcare/server/rpc"
	"github.com/sourcegraph/jsonrpc2"
)

func (h *rpcMethodHandler) handleConversationCreate(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	controller := h.state.getController()

	meta, err := controller.NewConversation(ctx)
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to create conversation")
		return
	}

	h.log.Info("conversation created", "conversationId", meta.ID)

	result := rpc.ConversationCreateResult{Conversation: meta}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send conversation create response", "error", err)
	}
}

func (h *rpcMethodHandler) handleConversationRename(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ConversationRenameParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if params.ConversationID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "conversation_id is required")
		return
	}

	controller := h.state.getController()
	if err := controller.Rename(ctx, params.ConversationID, params.Title); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to rename conversation")
		return
	}

	h.log.Info("conversation renamed", "conversationId", params.ConversationID)

	if err := conn.Reply(ctx, req.ID, struct{}{}); err != nil {
		h.log.Error("failed to send conversation rename response", "error", err)
	}
}

func (h *rpcMethodHandler) handleConversationDeleteRequest(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ConversationDeleteRequestParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if params.ConversationID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "conversation_id is required")
		return
	}

	controller := h.state.getController()
	staged, err := controller.RequestDelete(params.ConversationID)
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to stage deletion")
		return
	}

	h.log.Debug("deletion staged", "conversationId", params.ConversationID, "staged", staged)

	result := rpc.ConversationDeleteRequestResult{Staged: staged}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send delete request response", "error", err)
	}
}

func (h *rpcMethodHandler) handleConversationDeleteConfirm(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ConversationDeleteConfirmParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	controller := h.state.getController()
	if err := controller.ConfirmDelete(ctx, params.Accept); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to delete conversation")
		return
	}

	h.log.Info("deletion resolved", "accept", params.Accept)

	result := rpc.ChatStateResult{Snapshot: controller.Snapshot()}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send delete confirm response", "error", err)
	}
}

func (h *rpcMethodHandler) handleConversationListSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	notifier := h.state.getNotifier()
	id, conversations, err := h.listWatcher.Subscribe(notifier)
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to subscribe")
		return
	}
	h.state.trackSubscription(id, h.listWatcher)
	h.log.Debug("subscribed", "watcher", "conversation list", "watchId", id)

	result := rpc.ConversationListSubscribeResult{
		ID:            id,
		Conversations: conversations,
	}

	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send conversation list subscribe response", "error", err)
	}
}
