// Package history holds the client-side chat state: the shared message list
// the UI renders from, and a disk cache of transcripts for offline fallback.
package history

import (
	"strings"
	"sync"
	"time"

	"github.com/polichat/polichat/chat"
)

// Store is the shared, mutable message list for the active session. The
// stream controller treats it as the source of truth for what the UI
// currently shows. Last writer wins; there are no transactional guarantees.
type Store struct {
	mu       sync.RWMutex
	messages []chat.Message
	pinned   string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Messages returns a copy of the current message list.
func (s *Store) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Add appends a message.
func (s *Store) Add(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Upsert replaces the message with the same id, or appends when absent.
// This is the optimistic-update path the stream controller drives.
func (s *Store) Upsert(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == msg.ID {
			s.messages[i] = msg
			return
		}
	}
	s.messages = append(s.messages, msg)
}

// Set replaces the whole list.
func (s *Store) Set(messages []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = make([]chat.Message, len(messages))
	copy(s.messages, messages)
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// NewUserMessage builds (but does not add) a user message.
func (s *Store) NewUserMessage(content string) chat.Message {
	return chat.Message{
		ID:        chat.NewMessageID(),
		Role:      chat.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// SetRating records a rating on the message with the given id.
func (s *Store) SetRating(messageID string, rating chat.Rating) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].Rating = rating
			return
		}
	}
}

// TogglePin pins the given chat, unpinning whatever was pinned before; at
// most one chat is pinned process-wide. Toggling the pinned chat unpins it.
// Returns the new pinned id ("" when nothing is pinned).
func (s *Store) TogglePin(chatID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(chatID)
	if id == "" {
		return s.pinned
	}
	if s.pinned == id {
		s.pinned = ""
	} else {
		s.pinned = id
	}
	return s.pinned
}

// PinnedChatID returns the currently pinned chat, or "".
func (s *Store) PinnedChatID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pinned
}

// SetPinnedChatID restores a pin (e.g. from persisted config).
func (s *Store) SetPinnedChatID(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned = strings.TrimSpace(chatID)
}

// DropPinIfDeleted clears the pin when the pinned chat is deleted.
func (s *Store) DropPinIfDeleted(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pinned == chatID {
		s.pinned = ""
	}
}
