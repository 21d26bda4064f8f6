package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/polichat/polichat/chat"
)

// Cache persists transcripts locally so the TUI can show the last known copy
// of a conversation when the chat service is unreachable. It is a cache, not
// a store of record: the server copy always wins when available.
type Cache struct {
	chatsDir string
	metaPath string
	mu       sync.RWMutex
}

// cacheMeta indexes cached chats by owner.
type cacheMeta struct {
	Version    string              `json:"version"`
	LastChatID string              `json:"last_chat_id,omitempty"`
	OwnerIndex map[string][]string `json:"owner_index"`
}

// CachedChatInfo summarizes one cached transcript for listings.
type CachedChatInfo struct {
	ChatID    string    `json:"chatId"`
	Title     string    `json:"title"`
	Messages  int       `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewCache creates the cache under the user's home directory.
func NewCache() (*Cache, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewCacheAt(filepath.Join(homeDir, ".polichat", "chats"))
}

// NewCacheAt creates the cache rooted at an explicit directory.
func NewCacheAt(dir string) (*Cache, error) {
	c := &Cache{
		chatsDir: dir,
		metaPath: filepath.Join(dir, "meta.json"),
	}

	if err := os.MkdirAll(c.chatsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create chats directory: %w", err)
	}

	if _, err := os.Stat(c.metaPath); os.IsNotExist(err) {
		if err := c.saveMeta(&cacheMeta{
			Version:    "1.0",
			OwnerIndex: make(map[string][]string),
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize cache index: %w", err)
		}
	}

	return c, nil
}

// Save writes a transcript to disk and updates the index.
func (c *Cache) Save(session *chat.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if session.ChatID == "" {
		return fmt.Errorf("cannot cache a session without chatId")
	}
	if session.Title == "" {
		session.Title = chat.DeriveTitle(session.Messages)
	}
	session.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	filename := filepath.Join(c.chatsDir, session.ChatID+".json")
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	meta, err := c.loadMeta()
	if err != nil {
		return fmt.Errorf("failed to load cache index: %w", err)
	}
	if meta.OwnerIndex == nil {
		meta.OwnerIndex = make(map[string][]string)
	}
	if !contains(meta.OwnerIndex[session.UserEmail], session.ChatID) {
		meta.OwnerIndex[session.UserEmail] = append(meta.OwnerIndex[session.UserEmail], session.ChatID)
	}
	meta.LastChatID = session.ChatID
	if err := c.saveMeta(meta); err != nil {
		return fmt.Errorf("failed to save cache index: %w", err)
	}

	return nil
}

// Load reads one cached transcript.
func (c *Cache) Load(chatID string) (*chat.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	filename := filepath.Join(c.chatsDir, chatID+".json")
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session chat.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Delete removes a cached transcript and its index entries.
func (c *Cache) Delete(chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	filename := filepath.Join(c.chatsDir, chatID+".json")
	if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}

	meta, err := c.loadMeta()
	if err != nil {
		return nil
	}
	for owner, ids := range meta.OwnerIndex {
		meta.OwnerIndex[owner] = remove(ids, chatID)
	}
	if meta.LastChatID == chatID {
		meta.LastChatID = ""
	}
	return c.saveMeta(meta)
}

// List returns summaries of the cached transcripts for one owner, newest
// update first.
func (c *Cache) List(userEmail string) ([]CachedChatInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := []string{}
	if meta, err := c.loadMeta(); err == nil {
		ids = meta.OwnerIndex[userEmail]
	}

	var infos []CachedChatInfo
	for _, id := range ids {
		data, err := os.ReadFile(filepath.Join(c.chatsDir, id+".json"))
		if err != nil {
			continue
		}
		var session chat.Session
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}
		infos = append(infos, CachedChatInfo{
			ChatID:    session.ChatID,
			Title:     session.Title,
			Messages:  len(session.Messages),
			CreatedAt: session.CreatedAt,
			UpdatedAt: session.UpdatedAt,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos, nil
}

// LastChatID returns the most recently cached chat, or "".
func (c *Cache) LastChatID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	meta, err := c.loadMeta()
	if err != nil {
		return ""
	}
	return meta.LastChatID
}

func (c *Cache) loadMeta() (*cacheMeta, error) {
	data, err := os.ReadFile(c.metaPath)
	if err != nil {
		return nil, err
	}
	var meta cacheMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *Cache) saveMeta(meta *cacheMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.metaPath, data, 0644)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
