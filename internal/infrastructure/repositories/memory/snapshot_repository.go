package memory

import (
	"context"
	"sync"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
)

type MemorySnapshotRepository struct {
	snapshots map[domain.UserID]domain.RoleSet
	mu        sync.RWMutex
}

func NewMemorySnapshotRepository() ports.SnapshotRepository {
	return &MemorySnapshotRepository{
		snapshots: make(map[domain.UserID]domain.RoleSet),
	}
}

func (r *MemorySnapshotRepository) Get(ctx context.Context, userID domain.UserID) (domain.RoleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, exists := r.snapshots[userID]
	if !exists || set.Len() == 0 {
		return nil, domain.ErrSnapshotNotFound
	}

	// Copy so callers cannot mutate the stored set.
	return set.Union(domain.NewRoleSet()), nil
}

func (r *MemorySnapshotRepository) Union(ctx context.Context, userID domain.UserID, roles domain.RoleSet) error {
	if roles.Len() == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.snapshots[userID]
	if !exists {
		existing = domain.NewRoleSet()
	}
	r.snapshots[userID] = existing.Union(roles)
	return nil
}

func (r *MemorySnapshotRepository) Clear(ctx context.Context, userID domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.snapshots, userID)
	return nil
}

func (r *MemorySnapshotRepository) All(ctx context.Context) (map[domain.UserID]domain.RoleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[domain.UserID]domain.RoleSet, len(r.snapshots))
	for userID, set := range r.snapshots {
		out[userID] = set.Union(domain.NewRoleSet())
	}
	return out, nil
}
