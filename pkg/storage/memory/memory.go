// Package memory provides an in-memory implementation of storage.EventStore
// for testing and lightweight deployments. Conversations are lost when the
// process restarts. Optional LRU eviction limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/storage"
)

// conversation holds the events of one conversation sorted by order key.
type conversation struct {
	tenantID string
	events   []api.DatabaseEvent
	keys     map[string]struct{}
	lruElem  *list.Element // position in LRU list
}

// Store is an in-memory EventStore with optional LRU eviction of whole
// conversations.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	eventOwner    map[string]string // event id -> conversation id
	lruList       *list.List        // front = most recently used, back = least recently used
	maxSize       int               // 0 = unlimited
}

// Ensure Store implements storage.EventStore at compile time.
var _ storage.EventStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the least recently used conversation is
// evicted when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		conversations: make(map[string]*conversation),
		eventOwner:    make(map[string]string),
		lruList:       list.New(),
		maxSize:       maxSize,
	}
}

// Name identifies the backend in metrics.
func (s *Store) Name() string { return "memory" }

// CreateConversation registers an empty conversation.
func (s *Store) CreateConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[id]; exists {
		return storage.ErrAlreadyExists
	}

	if s.maxSize > 0 && len(s.conversations) >= s.maxSize {
		s.evictOldest()
	}

	s.conversations[id] = &conversation{
		tenantID: storage.GetTenant(ctx),
		keys:     make(map[string]struct{}),
		lruElem:  s.lruList.PushFront(id),
	}
	return nil
}

// DeleteConversation removes a conversation and its events.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	s.remove(id, c)
	return nil
}

// ConversationExists reports whether the conversation is visible to ctx.
func (s *Store) ConversationExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.lookup(ctx, id)
	return err == nil, nil
}

// InsertEvents stores the batch only if no order key or event id collides.
func (s *Store) InsertEvents(ctx context.Context, conversationID string, events []api.DatabaseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(ctx, conversationID)
	if err != nil {
		return err
	}

	// Check the whole batch before touching anything.
	batchKeys := make(map[string]struct{}, len(events))
	batchIDs := make(map[string]struct{}, len(events))
	for _, e := range events {
		if _, taken := c.keys[e.OrderKey]; taken {
			return storage.ErrConflict
		}
		if _, taken := batchKeys[e.OrderKey]; taken {
			return storage.ErrConflict
		}
		if _, taken := s.eventOwner[e.ID]; taken {
			return storage.ErrAlreadyExists
		}
		if _, taken := batchIDs[e.ID]; taken {
			return storage.ErrAlreadyExists
		}
		batchKeys[e.OrderKey] = struct{}{}
		batchIDs[e.ID] = struct{}{}
	}

	for _, e := range events {
		stored := api.DatabaseEvent{
			Event:          *e.Event.Clone(),
			ConversationID: conversationID,
			OrderKey:       e.OrderKey,
		}
		c.events = append(c.events, stored)
		c.keys[e.OrderKey] = struct{}{}
		s.eventOwner[e.ID] = conversationID
	}
	sort.Slice(c.events, func(i, j int) bool {
		return c.events[i].OrderKey < c.events[j].OrderKey
	})
	s.lruList.MoveToFront(c.lruElem)

	debug.Log(debug.Storage, "memory insert", "conversation_id", conversationID, "count", len(events))
	return nil
}

// MaxOrderKey returns the greatest order key, or "" for an empty conversation.
func (s *Store) MaxOrderKey(ctx context.Context, conversationID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.lookup(ctx, conversationID)
	if err != nil {
		return "", err
	}
	if len(c.events) == 0 {
		return "", nil
	}
	return c.events[len(c.events)-1].OrderKey, nil
}

// ListEvents returns copies of the events sorted by order key.
func (s *Store) ListEvents(ctx context.Context, conversationID string) ([]api.DatabaseEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.lruList.MoveToFront(c.lruElem)

	out := make([]api.DatabaseEvent, len(c.events))
	for i, e := range c.events {
		out[i] = api.DatabaseEvent{
			Event:          *e.Event.Clone(),
			ConversationID: e.ConversationID,
			OrderKey:       e.OrderKey,
		}
	}
	return out, nil
}

// UpdateEvent replaces the segments and reasoning summary of a stored event.
func (s *Store) UpdateEvent(ctx context.Context, conversationID string, event *api.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(ctx, conversationID)
	if err != nil {
		return err
	}
	for i := range c.events {
		if c.events[i].ID != event.ID {
			continue
		}
		updated := event.Clone()
		c.events[i].Segments = updated.Segments
		c.events[i].Reasoning = updated.Reasoning
		return nil
	}
	return storage.ErrNotFound
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// lookup finds a conversation visible to ctx. Must be called with s.mu held.
func (s *Store) lookup(ctx context.Context, id string) (*conversation, error) {
	c, ok := s.conversations[id]
	if !ok || !storage.Visible(ctx, c.tenantID) {
		return nil, storage.ErrNotFound
	}
	return c, nil
}

// remove drops a conversation and its event index. Must be called with s.mu held.
func (s *Store) remove(id string, c *conversation) {
	for _, e := range c.events {
		delete(s.eventOwner, e.ID)
	}
	s.lruList.Remove(c.lruElem)
	delete(s.conversations, id)
}

// evictOldest removes the least recently used conversation.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	debug.Log(debug.Storage, "evicting conversation", "conversation_id", id)
	s.remove(id, s.conversations[id])
}
