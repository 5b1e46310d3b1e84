// Package session owns the live conversation transcript and the persisted
// multi-conversation archive, including the binding between them.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/codelamp/codelamp/internal/llm"
)

// DefaultMaxConversations caps the archive; the oldest entry is evicted
// on overflow (plain FIFO, no access-time ranking).
const DefaultMaxConversations = 20

const previewLimit = 40

// KV is the key-value store the archive persists through. Values round-trip
// through JSON text.
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// Conversation is one persisted archive entry. Messages are kept in display
// form (role + content string); tool-call plumbing never reaches the archive.
// The message count is always even: turns are appended as user/model pairs.
type Conversation struct {
	Messages  []llm.StoredMessage `json:"messages"`
	Timestamp string              `json:"timestamp"`
}

// DisplayConversation is an archive entry prepared for the UI, most recent
// first. Index is the display index (0 = most recent); the true storage
// index is storageLength - 1 - Index.
type DisplayConversation struct {
	Index         int                 `json:"index"`
	Preview       string              `json:"preview"`
	Timestamp     string              `json:"timestamp"`
	Messages      []llm.StoredMessage `json:"messages"`
	OriginalIndex int                 `json:"originalIndex"`
}

// Store tracks the live session and its binding to the archive.
//
// While isNew is true, no archive entry exists for this session yet; the
// first persisted turn creates one and binds its storage index. After that
// every turn appends to the bound entry; a session never creates a second
// archive entry.
type Store struct {
	mu     sync.Mutex
	kv     KV
	limit  int
	logger *slog.Logger
	now    func() time.Time

	live       []llm.Content
	isNew      bool
	boundIndex int // storage index; -1 when unbound
}

// NewStore creates a session store over kv. limit <= 0 selects
// DefaultMaxConversations.
func NewStore(kv KV, limit int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = DefaultMaxConversations
	}
	return &Store{
		kv:         kv,
		limit:      limit,
		logger:     logger,
		now:        time.Now,
		isNew:      true,
		boundIndex: -1,
	}
}

func archiveKey(provider string) string {
	return fmt.Sprintf("codelamp_%s_conversations", provider)
}

// loadArchive reads the persisted conversation list. A missing or corrupt
// archive is treated as empty, never surfaced to the caller.
func (s *Store) loadArchive(provider string) []Conversation {
	raw, ok, err := s.kv.Get(archiveKey(provider))
	if err != nil || !ok {
		if err != nil {
			s.logger.Warn("archive read failed, treating as empty", "provider", provider, "error", err)
		}
		return nil
	}

	var conversations []Conversation
	if err := json.Unmarshal([]byte(raw), &conversations); err != nil {
		s.logger.Warn("archive corrupt, treating as empty", "provider", provider, "error", err)
		return nil
	}
	return conversations
}

func (s *Store) saveArchive(provider string, conversations []Conversation) error {
	data, err := json.Marshal(conversations)
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	return s.kv.Set(archiveKey(provider), string(data))
}

// CurrentSession returns a copy of the live transcript, already in
// canonical shape. Empty for a fresh session.
func (s *Store) CurrentSession() []llm.Content {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.live)
}

// AppendTurn adds a completed user/model pair to the live session.
func (s *Store) AppendTurn(userText, modelText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = append(s.live,
		llm.Text(llm.RoleUser, userText),
		llm.Text(llm.RoleModel, modelText),
	)
}

// PersistTurn writes a completed turn to the archive. Per the binding
// invariant, the first turn of a fresh session creates a new conversation;
// later turns append to the bound one. The archive is truncated to the most
// recent limit entries before writing back.
func (s *Store) PersistTurn(provider, userText, modelText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversations := s.loadArchive(provider)
	timestamp := s.now().UTC().Format(time.RFC3339)
	pair := []llm.StoredMessage{
		{Role: llm.RoleUser, Content: userText},
		{Role: llm.RoleModel, Content: modelText},
	}

	if s.isNew {
		conversations = append(conversations, Conversation{
			Messages:  pair,
			Timestamp: timestamp,
		})
		s.isNew = false
		s.boundIndex = len(conversations) - 1
	} else {
		target := s.boundIndex
		if target < 0 || target >= len(conversations) {
			target = len(conversations) - 1
		}
		if target >= 0 {
			conversations[target].Messages = append(conversations[target].Messages, pair...)
			conversations[target].Timestamp = timestamp
		}
	}

	if trimmed := len(conversations) - s.limit; trimmed > 0 {
		conversations = conversations[trimmed:]
		// Keep the binding pointed at the same conversation after eviction.
		if s.boundIndex >= 0 {
			s.boundIndex -= trimmed
			if s.boundIndex < 0 {
				s.boundIndex = -1
				s.isNew = true
			}
		}
	}

	return s.saveArchive(provider, conversations)
}

// ListForDisplay returns the archive most-recent-first with previews.
func (s *Store) ListForDisplay(provider string) []DisplayConversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversations := s.loadArchive(provider)
	display := make([]DisplayConversation, 0, len(conversations))

	for i := len(conversations) - 1; i >= 0; i-- {
		conv := conversations[i]
		display = append(display, DisplayConversation{
			Index:         len(conversations) - 1 - i,
			Preview:       preview(conv.Messages),
			Timestamp:     conv.Timestamp,
			Messages:      conv.Messages,
			OriginalIndex: i,
		})
	}
	return display
}

// preview derives the list label: the first user message, truncated to 40
// characters with an ellipsis marker when longer. Handles messages stored
// in either canonical or legacy shape.
func preview(messages []llm.StoredMessage) string {
	for _, m := range messages {
		if m.Role != llm.RoleUser {
			continue
		}
		text := llm.Normalize(m).JoinedText()
		runes := []rune(text)
		if len(runes) > previewLimit {
			return string(runes[:previewLimit]) + "..."
		}
		return text
	}
	return ""
}

// Load replaces the live session with a stored conversation, normalized to
// canonical shape, and rebinds the session to it. displayIndex counts from
// the most recent entry.
func (s *Store) Load(displayIndex int, provider string) ([]llm.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversations := s.loadArchive(provider)
	storageIndex := len(conversations) - 1 - displayIndex
	if storageIndex < 0 || storageIndex >= len(conversations) {
		return nil, fmt.Errorf("conversation %d not found", displayIndex)
	}

	normalized := llm.NormalizeHistory(conversations[storageIndex].Messages)
	s.live = normalized
	s.isNew = false
	s.boundIndex = storageIndex

	return slices.Clone(normalized), nil
}

// Delete removes a stored conversation, clears the live session, and
// resets the binding so the next turn starts a fresh archive entry.
func (s *Store) Delete(displayIndex int, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversations := s.loadArchive(provider)
	storageIndex := len(conversations) - 1 - displayIndex
	if storageIndex < 0 || storageIndex >= len(conversations) {
		return fmt.Errorf("conversation %d not found", displayIndex)
	}

	conversations = slices.Delete(conversations, storageIndex, storageIndex+1)
	if err := s.saveArchive(provider, conversations); err != nil {
		return err
	}

	s.live = nil
	s.isNew = true
	s.boundIndex = -1
	return nil
}

// StartNewBlank clears the live session without touching the archive; the
// archive entry is created lazily when the first real turn is persisted.
func (s *Store) StartNewBlank() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.live = nil
	s.isNew = true
	s.boundIndex = -1
}
