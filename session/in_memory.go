package session

import (
	"sync"
	"time"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
)

// Conversation is one chat thread.
type Conversation struct {
	ID        string
	Messages  []core.Message
	UpdatedAt time.Time
}

// Clone returns a copy whose message slice can be modified freely.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = append([]core.Message(nil), c.Messages...)
	return &out
}

// InMemoryStore is a volatile conversation store keyed by conversation id.
// It is safe for concurrent access. Returned conversations are clones.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	now           func() time.Time
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]*Conversation), now: time.Now}
}

// Get returns an existing conversation (clone) or creates a new one lazily.
func (s *InMemoryStore) Get(id string) *Conversation {
	s.mu.RLock()
	c, ok := s.conversations[id]
	s.mu.RUnlock()
	if ok {
		return c.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		return c.Clone()
	}
	return s.createLocked(id).Clone()
}

// Create forces the creation (or overwriting) of a conversation with the given id.
func (s *InMemoryStore) Create(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(id).Clone()
}

// Append adds messages to an existing or newly created conversation.
func (s *InMemoryStore) Append(id string, msgs ...core.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		c = s.createLocked(id)
	}
	c.Messages = append(c.Messages, msgs...)
	c.UpdatedAt = s.now()
}

// Delete drops a conversation. It reports whether one existed.
func (s *InMemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conversations[id]
	delete(s.conversations, id)
	return ok
}

// IDs returns the ids of all stored conversations.
func (s *InMemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	return ids
}

// createLocked allocates and stores a new conversation; caller must hold the write lock.
func (s *InMemoryStore) createLocked(id string) *Conversation {
	c := &Conversation{ID: id, UpdatedAt: s.now()}
	s.conversations[id] = c
	return c
}
