package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// conversationLocks serializes work on a single conversation inside this
// process. Entries are dropped once nobody holds or waits for them.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*conversationLock
}

type conversationLock struct {
	sem  chan struct{}
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[uuid.UUID]*conversationLock)}
}

// Lock blocks until the conversation is free or ctx is done.
// The returned function releases the lock.
func (c *conversationLocks) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &conversationLock{sem: make(chan struct{}, 1)}
		c.locks[id] = l
	}
	l.refs++
	c.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		c.release(id, l)
		return nil, ctx.Err()
	}

	return func() {
		<-l.sem
		c.release(id, l)
	}, nil
}

func (c *conversationLocks) release(id uuid.UUID, l *conversationLock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(c.locks, id)
	}
}

func (c *conversationLocks) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
