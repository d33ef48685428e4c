package authstate

import (
	"context"
	"sync"
)

// MemoryBackend keeps session state in process memory.
// State is lost on restart and is not shared between instances.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]State
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		items: make(map[string]State),
	}
}

func (b *MemoryBackend) Load(_ context.Context, sessionID string) (State, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.items[sessionID]
	if !ok {
		return State{}, ErrSessionNotFound
	}
	return st, nil
}

func (b *MemoryBackend) Save(_ context.Context, sessionID string, st State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[sessionID] = st
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.items, sessionID)
	return nil
}

// Len returns the number of stored sessions
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}
