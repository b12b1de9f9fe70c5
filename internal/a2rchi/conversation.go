package a2rchi

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/a2rchi/a2rchi/internal/prompt"
)

// ErrConversationAccess is returned when a request's client_id does not
// own the conversation_id it names. Callers surface this as a 403.
var ErrConversationAccess = errors.New("conversation access error")

// ConversationRecord is one conversation's ownership and transcript.
type ConversationRecord struct {
	ClientID      string           `json:"client_id"`
	History       []prompt.Message `json:"history"`
	CreatedAt     time.Time        `json:"created_at"`
	LastMessageAt time.Time        `json:"last_message_at"`
}

// ConversationStore is a small JSON-file-backed map of conversation
// records, flushed atomically so a reader never observes a partial
// write, mirroring internal/collector.StatusRecorder's pattern.
type ConversationStore struct {
	path string

	mu      sync.Mutex
	entries map[string]ConversationRecord
}

// NewConversationStore builds a ConversationStore backed by path,
// loading any existing state. A missing or unparsable file starts
// empty rather than erroring. An empty path keeps the store in-memory
// only (handy for tests).
func NewConversationStore(path string) *ConversationStore {
	s := &ConversationStore{path: path, entries: map[string]ConversationRecord{}}
	if path == "" {
		return s
	}
	if data, err := os.ReadFile(path); err == nil {
		var entries map[string]ConversationRecord
		if json.Unmarshal(data, &entries) == nil {
			s.entries = entries
		}
	}
	return s
}

// Create starts a new conversation owned by clientID and returns its
// ID.
func (s *ConversationStore) Create(clientID string) (string, error) {
	id := uuid.New().String()
	ts := time.Now()

	s.mu.Lock()
	s.entries[id] = ConversationRecord{
		ClientID:      clientID,
		CreatedAt:     ts,
		LastMessageAt: ts,
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.flush(snapshot); err != nil {
		return "", err
	}
	return id, nil
}

// Append records msg against conversationID, failing with
// ErrConversationAccess if clientID does not own it.
func (s *ConversationStore) Append(clientID, conversationID string, msg prompt.Message) error {
	s.mu.Lock()
	record, ok := s.entries[conversationID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("a2rchi: conversation %q not found", conversationID)
	}
	if record.ClientID != clientID {
		s.mu.Unlock()
		return withStatus(fmt.Errorf("a2rchi: client %q may not access conversation %q: %w", clientID, conversationID, ErrConversationAccess), 403)
	}
	record.History = append(record.History, msg)
	record.LastMessageAt = time.Now()
	s.entries[conversationID] = record
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	return s.flush(snapshot)
}

// History returns conversationID's transcript, failing with
// ErrConversationAccess if clientID does not own it.
func (s *ConversationStore) History(clientID, conversationID string) ([]prompt.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.entries[conversationID]
	if !ok {
		return nil, fmt.Errorf("a2rchi: conversation %q not found", conversationID)
	}
	if record.ClientID != clientID {
		return nil, withStatus(fmt.Errorf("a2rchi: client %q may not access conversation %q: %w", clientID, conversationID, ErrConversationAccess), 403)
	}
	return record.History, nil
}

func (s *ConversationStore) snapshotLocked() map[string]ConversationRecord {
	snapshot := make(map[string]ConversationRecord, len(s.entries))
	for k, v := range s.entries {
		snapshot[k] = v
	}
	return snapshot
}

func (s *ConversationStore) flush(entries map[string]ConversationRecord) error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
