// Package cache decorates a store.Store with a ristretto read-through cache.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fundamentallm-backend/internal/models"
	"fundamentallm-backend/internal/store"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var _ store.Store = (*Store)(nil)

// Store caches conversations by id in front of another store.
// Writes go to the backing store first and then replace the cached entry.
// Each save bumps a per-id generation; a read miss only fills the cache if
// no save started while it was loading.
type Store struct {
	next  store.Store
	cache *ristretto.Cache[string, []byte]
	ttl   time.Duration

	mu          sync.Mutex
	generations map[uuid.UUID]uint64
}

// New wraps next with a cache bounded to maxCostBytes of encoded conversations.
func New(next store.Store, maxCostBytes int64, ttl time.Duration) (*Store, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation cache: %w", err)
	}
	return &Store{next: next, cache: c, ttl: ttl, generations: make(map[uuid.UUID]uint64)}, nil
}

func key(id uuid.UUID) string { return "conversation:" + id.String() }

func (s *Store) CreateConversation(ctx context.Context, arg store.CreateConversationParams) (*models.Conversation, error) {
	conv, err := s.next.CreateConversation(ctx, arg)
	if err != nil {
		return nil, err
	}
	s.putIfCurrent(conv, s.generation(conv.ID))
	return conv, nil
}

func (s *Store) GetConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	if data, ok := s.cache.Get(key(id)); ok {
		var conv models.Conversation
		if err := json.Unmarshal(data, &conv); err == nil {
			return &conv, nil
		}
		s.cache.Del(key(id))
	}

	gen := s.generation(id)
	conv, err := s.next.GetConversationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.putIfCurrent(conv, gen)
	return conv, nil
}

func (s *Store) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	gen := s.invalidate(conv.ID)
	if err := s.next.SaveConversation(ctx, conv); err != nil {
		return err
	}
	s.putIfCurrent(conv, gen)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

// Close releases the cache. The backing store is not closed.
func (s *Store) Close() {
	s.cache.Close()
}

func (s *Store) generation(id uuid.UUID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[id]
}

// invalidate drops the cached entry and starts a new generation for id.
func (s *Store) invalidate(id uuid.UUID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[id]++
	s.cache.Del(key(id))
	s.cache.Wait()
	return s.generations[id]
}

// putIfCurrent caches conv unless a save of the same id started after gen
// was taken.
func (s *Store) putIfCurrent(conv *models.Conversation, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[conv.ID] != gen {
		return
	}
	s.put(conv)
}

func (s *Store) put(conv *models.Conversation) {
	data, err := json.Marshal(conv)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID.String()).Msg("[CacheStore] skipping cache write")
		return
	}
	s.cache.SetWithTTL(key(conv.ID), data, int64(len(data)), s.ttl)
	s.cache.Wait()
}
