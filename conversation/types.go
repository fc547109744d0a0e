package conversation

import (
	"errors"
	"time"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyTitle           = errors.New("title must not be empty")
)

// Author identifies who wrote a message.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

// IsValid returns true if the author is a known valid author.
func (a Author) IsValid() bool {
	switch a {
	case AuthorUser, AuthorAssistant:
		return true
	default:
		return false
	}
}

// Message is a single entry in a conversation's message log.
// Suggestions are only present on assistant messages where a keyword rule matched.
type Message struct {
	ID          string    `json:"id"`
	Author      Author    `json:"author"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// Meta holds metadata for a conversation. Messages are stored separately
// as a JSONL log and loaded on demand via Store.Messages.
type Meta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// HasUserMessage becomes true once the first user-authored message is
	// appended. Title auto-inference only runs while it is false.
	HasUserMessage bool `json:"has_user_message"`
	// TitleCustomized becomes true on explicit rename.
	TitleCustomized bool `json:"title_customized"`
	MessageCount    int  `json:"message_count"`
}

// Operation represents the type of change to the conversation list.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// ChangeEvent represents a change to the conversation list.
// For create/update: Meta is fully populated.
// For delete: only Meta.ID is valid.
type ChangeEvent struct {
	Op   Operation
	Meta Meta
}

// OnChangeListener receives notifications when the conversation list changes.
type OnChangeListener interface {
	OnConversationChange(event ChangeEvent)
}
