package mcp

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/schoolcare/server/conversation"
)

// Tool failures are reported as a JSON envelope in the result text so
// staff tooling can branch on a stable code instead of parsing prose.

type ErrorCode string

const (
	CodeConversationNotFound ErrorCode = "conversation_not_found"
	CodeInvalidTitle         ErrorCode = "invalid_title"
	CodeValidation           ErrorCode = "validation"
	CodeInternal             ErrorCode = "internal"
)

type toolError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e toolError) result() *mcp.CallToolResult {
	data, _ := json.Marshal(e)
	return mcp.NewToolResultError(string(data))
}

func conversationNotFound(id string) *mcp.CallToolResult {
	return toolError{
		Code:    CodeConversationNotFound,
		Message: "conversation not found",
		Details: map[string]any{"conversation_id": id},
	}.result()
}

func validationError(msg string) *mcp.CallToolResult {
	return toolError{Code: CodeValidation, Message: msg}.result()
}

func internalError(err error) *mcp.CallToolResult {
	return toolError{Code: CodeInternal, Message: err.Error()}.result()
}

// storeError maps the conversation store's sentinel errors onto tool codes.
func storeError(id string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, conversation.ErrConversationNotFound):
		return conversationNotFound(id)
	case errors.Is(err, conversation.ErrEmptyTitle):
		return toolError{Code: CodeInvalidTitle, Message: "title must be non-empty after trimming"}.result()
	default:
		return internalError(err)
	}
}
