package conversation

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Greeting is the fixed assistant message every conversation is seeded with.
const Greeting = "Xin chào! Mình là trợ lý sức khỏe học đường SchoolCare. Bạn cần tư vấn điều gì hôm nay?"

// DefaultTitle is the title of a conversation before inference or rename.
const DefaultTitle = "Cuộc trò chuyện mới"

// Store defines operations for conversation management.
type Store interface {
	List() ([]Meta, error)
	Get(id string) (Meta, bool, error)

	// Create allocates a fresh conversation seeded with the assistant
	// greeting and prepends it to the list (newest first).
	Create(ctx context.Context) (Meta, error)
	// Delete removes a conversation and its message log. Deleting an
	// unknown id is a no-op.
	Delete(ctx context.Context, id string) error
	// Rename sets the title from an explicit user action and marks it
	// customized. The title must be non-empty after trimming.
	Rename(ctx context.Context, id, title string) error
	// InferTitle sets the title derived from the first user message
	// without marking it customized.
	InferTitle(ctx context.Context, id, title string) error

	// AppendMessage appends to the conversation's message log and
	// refreshes UpdatedAt to the message's timestamp.
	AppendMessage(ctx context.Context, id string, msg Message) error
	Messages(ctx context.Context, id string) ([]Message, error)

	AddOnChangeListener(listener OnChangeListener)
}

// indexData is the structure of index.json.
type indexData struct {
	Conversations []Meta `json:"conversations"`
}

// FileStore implements Store using file system storage: an index.json for
// metadata and a messages.jsonl log per conversation.
type FileStore struct {
	dataDir string
	mu      sync.RWMutex

	listenerMu sync.Mutex
	listeners  []OnChangeListener
}

// NewFileStore creates a new FileStore with the given data directory.
func NewFileStore(dataDir string) (*FileStore, error) {
	conversationsDir := filepath.Join(dataDir, "conversations")
	if err := os.MkdirAll(conversationsDir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dataDir: dataDir}, nil
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.dataDir, "conversations", "index.json")
}

func (s *FileStore) messagesPath(id string) string {
	return filepath.Join(s.dataDir, "conversations", id, "messages.jsonl")
}

func (s *FileStore) readIndex() (indexData, error) {
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return indexData{Conversations: []Meta{}}, nil
	}
	if err != nil {
		return indexData{}, err
	}

	var idx indexData
	if err := json.Unmarshal(data, &idx); err != nil {
		return indexData{}, err
	}
	return idx, nil
}

func (s *FileStore) writeIndex(idx indexData) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.indexPath(), data, 0644)
}

// List returns all conversations, newest-created first.
func (s *FileStore) List() ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	return idx.Conversations, nil
}

// Get returns a conversation by ID. Returns (meta, found, error).
func (s *FileStore) Get(id string) (Meta, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.readIndex()
	if err != nil {
		return Meta{}, false, err
	}

	for _, c := range idx.Conversations {
		if c.ID == id {
			return c, true, nil
		}
	}
	return Meta{}, false, nil
}

// Create creates a new conversation seeded with the assistant greeting.
func (s *FileStore) Create(ctx context.Context) (Meta, error) {
	s.mu.Lock()

	idx, err := s.readIndex()
	if err != nil {
		s.mu.Unlock()
		return Meta{}, err
	}

	now := time.Now()
	greeting := Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Author:    AuthorAssistant,
		Text:      Greeting,
		Timestamp: now,
	}

	meta := Meta{
		ID:           uuid.Must(uuid.NewV7()).String(),
		Title:        DefaultTitle,
		CreatedAt:    now,
		UpdatedAt:    now,
		MessageCount: 1,
	}

	if err := s.appendToLog(meta.ID, greeting); err != nil {
		s.mu.Unlock()
		return Meta{}, fmt.Errorf("seed greeting: %w", err)
	}

	// Prepend new conversation (newest first)
	idx.Conversations = append([]Meta{meta}, idx.Conversations...)

	if err := s.writeIndex(idx); err != nil {
		s.mu.Unlock()
		return Meta{}, err
	}
	s.mu.Unlock()

	s.notify(ChangeEvent{Op: OperationCreate, Meta: meta})
	return meta, nil
}

// Delete removes a conversation by ID, including its message log.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()

	idx, err := s.readIndex()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	found := false
	newConversations := make([]Meta, 0, len(idx.Conversations))
	for _, c := range idx.Conversations {
		if c.ID == id {
			found = true
			continue
		}
		newConversations = append(newConversations, c)
	}

	if !found {
		s.mu.Unlock()
		return nil
	}

	if err := os.RemoveAll(filepath.Join(s.dataDir, "conversations", id)); err != nil {
		s.mu.Unlock()
		return err
	}

	idx.Conversations = newConversations
	if err := s.writeIndex(idx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.notify(ChangeEvent{Op: OperationDelete, Meta: Meta{ID: id}})
	return nil
}

// Rename updates a conversation's title from an explicit user action.
func (s *FileStore) Rename(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	return s.setTitle(id, title, true)
}

// InferTitle updates a conversation's title from first-message inference.
func (s *FileStore) InferTitle(ctx context.Context, id, title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTitle
	}
	return s.setTitle(id, title, false)
}

func (s *FileStore) setTitle(id, title string, customized bool) error {
	s.mu.Lock()

	idx, err := s.readIndex()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	for i, c := range idx.Conversations {
		if c.ID != id {
			continue
		}
		idx.Conversations[i].Title = title
		if customized {
			idx.Conversations[i].TitleCustomized = true
		}
		if err := s.writeIndex(idx); err != nil {
			s.mu.Unlock()
			return err
		}
		updated := idx.Conversations[i]
		s.mu.Unlock()

		s.notify(ChangeEvent{Op: OperationUpdate, Meta: updated})
		return nil
	}

	s.mu.Unlock()
	return ErrConversationNotFound
}

// AppendMessage appends a message to the conversation's log and refreshes
// UpdatedAt to the message's timestamp.
func (s *FileStore) AppendMessage(ctx context.Context, id string, msg Message) error {
	s.mu.Lock()

	idx, err := s.readIndex()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	for i, c := range idx.Conversations {
		if c.ID != id {
			continue
		}
		if err := s.appendToLog(id, msg); err != nil {
			s.mu.Unlock()
			return err
		}
		idx.Conversations[i].UpdatedAt = msg.Timestamp
		idx.Conversations[i].MessageCount++
		if msg.Author == AuthorUser {
			idx.Conversations[i].HasUserMessage = true
		}
		if err := s.writeIndex(idx); err != nil {
			s.mu.Unlock()
			return err
		}
		updated := idx.Conversations[i]
		s.mu.Unlock()

		s.notify(ChangeEvent{Op: OperationUpdate, Meta: updated})
		return nil
	}

	s.mu.Unlock()
	return ErrConversationNotFound
}

// Messages reads the conversation's message log in append order.
func (s *FileStore) Messages(ctx context.Context, id string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := os.Open(s.messagesPath(id))
	if os.IsNotExist(err) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var messages []Message
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("corrupt message log for %s: %w", id, err)
		}
		messages = append(messages, msg)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// appendToLog writes one message to the JSONL log. Caller must hold s.mu.
func (s *FileStore) appendToLog(id string, msg Message) error {
	path := s.messagesPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	data = append(data, '\n')
	_, err = file.Write(data)
	return err
}

func (s *FileStore) AddOnChangeListener(listener OnChangeListener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Must be called WITHOUT s.mu held.
func (s *FileStore) notify(event ChangeEvent) {
	s.listenerMu.Lock()
	listeners := make([]OnChangeListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.Unlock()

	for _, l := range listeners {
		l.OnConversationChange(event)
	}
}

// NewUserMessage builds a user message stamped now.
func NewUserMessage(text string) Message {
	return Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Author:    AuthorUser,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage builds an assistant message stamped now.
func NewAssistantMessage(text string, suggestions []string) Message {
	return Message{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Author:      AuthorAssistant,
		Text:        text,
		Timestamp:   time.Now(),
		Suggestions: suggestions,
	}
}
