// Package rpc defines JSON-RPC 2.0 wire format types for WebSocket
// communication. These types represent the params and result structures
// for all RPC methods.
package rpc

import (
	"github.com/schoolcare/server/chat"
	"github.com/schoolcare/server/conversation"
)

// Client → Server

type AuthParams struct {
	Token string `json:"token"`
}

type AuthResult struct {
	Version string `json:"version"`
	Title   string `json:"title"`
}

// Conversation management

type ConversationCreateResult struct {
	Conversation conversation.Meta `json:"conversation"`
}

type ConversationRenameParams struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
}

type ConversationDeleteRequestParams struct {
	ConversationID string `json:"conversation_id"`
}

type ConversationDeleteRequestResult struct {
	Staged bool `json:"staged"`
}

type ConversationDeleteConfirmParams struct {
	Accept bool `json:"accept"`
}

// Conversation list watch (subscription for list changes)

type ConversationListSubscribeResult struct {
	ID            string              `json:"id"`
	Conversations []conversation.Meta `json:"conversations"`
}

// Chat namespace

type ChatOpenParams struct {
	ConversationID string `json:"conversation_id"`
}

type ChatOpenResult struct {
	Snapshot chat.Snapshot          `json:"snapshot"`
	Messages []conversation.Message `json:"messages"`
}

type ChatStateResult struct {
	Snapshot chat.Snapshot `json:"snapshot"`
}

type ChatMessageParams struct {
	Content string `json:"content"`
}

type ChatPickSuggestionParams struct {
	Suggestion string `json:"suggestion"`
}

// Chat events watch (per-conversation typing + assistant messages)

type ChatEventsSubscribeParams struct {
	ConversationID string `json:"conversation_id"`
}

type ChatEventsSubscribeResult struct {
	ID      string                 `json:"id"`
	History []conversation.Message `json:"history"`
}

type UnsubscribeParams struct {
	ID string `json:"id"`
}
