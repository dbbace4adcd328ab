package memory

import (
	"context"
	"sync"

	"guildwarden/internal/core/ports"
)

type MemoryNotifierStateRepository struct {
	seen map[string]struct{}
	mu   sync.RWMutex
}

func NewMemoryNotifierStateRepository() ports.NotifierStateRepository {
	return &MemoryNotifierStateRepository{
		seen: make(map[string]struct{}),
	}
}

func (r *MemoryNotifierStateRepository) Seen(ctx context.Context, key string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.seen[key]
	return ok, nil
}

func (r *MemoryNotifierStateRepository) MarkSeen(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[key] = struct{}{}
	return nil
}
