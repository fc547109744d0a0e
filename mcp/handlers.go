package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/schoolcare/server/conversation"
)

func (s *Server) handleConversationList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversations, err := s.store.List()
	if err != nil {
		return internalError(err), nil
	}
	return jsonResult(conversations)
}

func (s *Server) handleConversationGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("conversation_id")
	if err != nil {
		return validationError("conversation_id is required"), nil
	}

	meta, found, err := s.store.Get(id)
	if err != nil {
		return internalError(err), nil
	}
	if !found {
		return conversationNotFound(id), nil
	}

	messages, err := s.store.Messages(ctx, id)
	if err != nil {
		return internalError(err), nil
	}

	return jsonResult(struct {
		Conversation conversation.Meta      `json:"conversation"`
		Messages     []conversation.Message `json:"messages"`
	}{Conversation: meta, Messages: messages})
}

func (s *Server) handleConversationCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	meta, err := s.store.Create(ctx)
	if err != nil {
		return internalError(err), nil
	}

	if title := strings.TrimSpace(req.GetString("title", "")); title != "" {
		if err := s.store.Rename(ctx, meta.ID, title); err != nil {
			return storeError(meta.ID, err), nil
		}
		meta, _, err = s.store.Get(meta.ID)
		if err != nil {
			return internalError(err), nil
		}
	}

	return jsonResult(meta)
}

func (s *Server) handleConversationRename(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("conversation_id")
	if err != nil {
		return validationError("conversation_id is required"), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return validationError("title is required"), nil
	}

	if err := s.store.Rename(ctx, id, title); err != nil {
		return storeError(id, err), nil
	}

	meta, _, err := s.store.Get(id)
	if err != nil {
		return internalError(err), nil
	}
	return jsonResult(meta)
}

func (s *Server) handleConversationDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("conversation_id")
	if err != nil {
		return validationError("conversation_id is required"), nil
	}

	if _, found, err := s.store.Get(id); err != nil {
		return internalError(err), nil
	} else if !found {
		return conversationNotFound(id), nil
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return internalError(err), nil
	}
	return mcp.NewToolResultText(`{"success":true}`), nil
}

func (s *Server) handleSuggestionRulesList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.rules.Engine().Rules())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}
