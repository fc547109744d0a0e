// Package mcp exposes conversation administration tools over the Model
// Context Protocol so school staff tooling can inspect and manage chat
// data without going through the WebSocket client protocol.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/schoolcare/server/conversation"
	"github.com/schoolcare/server/suggest"
)

type Server struct {
	store conversation.Store
	rules *suggest.FileStore
	mcp   *server.MCPServer
}

func NewServer(version string, store conversation.Store, rules *suggest.FileStore) *Server {
	s := &Server{
		store: store,
		rules: rules,
	}

	srv := server.NewMCPServer("schoolcare", version,
		server.WithToolCapabilities(false),
	)

	srv.AddTool(mcp.NewTool("conversation_list",
		mcp.WithDescription("List all chat conversations, newest first. Returns metadata only, not message bodies."),
	), s.handleConversationList)

	srv.AddTool(mcp.NewTool("conversation_get",
		mcp.WithDescription("Get a conversation with its full message history."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation ID")),
	), s.handleConversationGet)

	srv.AddTool(mcp.NewTool("conversation_create",
		mcp.WithDescription("Create a new conversation seeded with the assistant greeting."),
		mcp.WithString("title", mcp.Description("Optional explicit title; defaults to the standard new-conversation title")),
	), s.handleConversationCreate)

	srv.AddTool(mcp.NewTool("conversation_rename",
		mcp.WithDescription("Rename a conversation. The new title is marked as user-chosen and protected from automatic inference."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation ID")),
		mcp.WithString("title", mcp.Required(), mcp.Description("New title, must be non-empty")),
	), s.handleConversationRename)

	srv.AddTool(mcp.NewTool("conversation_delete",
		mcp.WithDescription("Delete a conversation and its message history. This is immediate and unrecoverable."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation ID")),
	), s.handleConversationDelete)

	srv.AddTool(mcp.NewTool("suggestion_rules_list",
		mcp.WithDescription("List the keyword rules driving assistant replies and follow-up suggestions."),
	), s.handleSuggestionRulesList)

	s.mcp = srv
	return s
}

// ServeStdio runs the MCP server over stdin/stdout until EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}
