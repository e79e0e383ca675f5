// Package memory implements store.Store in process memory. It backs the
// memory store driver and the service tests.
package memory

import (
	"context"
	"sync"
	"time"

	"fundamentallm-backend/internal/models"
	"fundamentallm-backend/internal/store"

	"github.com/google/uuid"
	"github.com/huandu/go-clone"
)

var _ store.Store = (*Store)(nil)

// Store keeps conversations in a map. Values handed in or out are deep
// copies so callers cannot mutate stored state.
type Store struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*models.Conversation
	now           func() time.Time
}

func New() *Store {
	return &Store{
		conversations: make(map[uuid.UUID]*models.Conversation),
		now:           time.Now,
	}
}

func (s *Store) CreateConversation(_ context.Context, arg store.CreateConversationParams) (*models.Conversation, error) {
	id := arg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := arg.CreatedAt
	if now.IsZero() {
		now = s.now().UTC()
	}
	conv := &models.Conversation{
		ID:        id,
		Title:     arg.Title,
		Messages:  []byte("[]"),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[id] = clone.Clone(conv).(*models.Conversation)
	return conv, nil
}

func (s *Store) GetConversationByID(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone.Clone(conv).(*models.Conversation), nil
}

func (s *Store) SaveConversation(_ context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.conversations[conv.ID]
	if !ok {
		return store.ErrNotFound
	}
	saved := clone.Clone(conv).(*models.Conversation)
	saved.CreatedAt = existing.CreatedAt
	if len(saved.Messages) == 0 {
		saved.Messages = []byte("[]")
	}
	s.conversations[conv.ID] = saved
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Len reports how many conversations are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
