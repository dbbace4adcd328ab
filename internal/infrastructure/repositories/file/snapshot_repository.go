package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"

	"go.uber.org/zap"
)

// FileSnapshotRepository persists role snapshots to a single JSON file. Every
// mutation is flushed synchronously before returning, so a crash between a
// snapshot write and the role removals that follow cannot lose the record.
//
// The on-disk shape is {"user_id": ["role_id", ...], ...}. Entries that fail
// to parse are treated as absent and dropped on the next write; a corrupt
// file never prevents startup.
type FileSnapshotRepository struct {
	path   string
	logger *zap.SugaredLogger

	mu        sync.Mutex
	snapshots map[domain.UserID]domain.RoleSet
}

func NewFileSnapshotRepository(path string, logger *zap.SugaredLogger) (ports.SnapshotRepository, error) {
	r := &FileSnapshotRepository{
		path:      path,
		logger:    logger,
		snapshots: make(map[domain.UserID]domain.RoleSet),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileSnapshotRepository) Get(ctx context.Context, userID domain.UserID) (domain.RoleSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, exists := r.snapshots[userID]
	if !exists || set.Len() == 0 {
		return nil, domain.ErrSnapshotNotFound
	}
	return set.Union(domain.NewRoleSet()), nil
}

func (r *FileSnapshotRepository) Union(ctx context.Context, userID domain.UserID, roles domain.RoleSet) error {
	if roles.Len() == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.snapshots[userID]
	if !exists {
		existing = domain.NewRoleSet()
	}
	merged := existing.Union(roles)
	if exists && merged.Equal(existing) {
		return nil
	}
	r.snapshots[userID] = merged
	return r.flush()
}

func (r *FileSnapshotRepository) Clear(ctx context.Context, userID domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.snapshots[userID]; !exists {
		return nil
	}
	delete(r.snapshots, userID)
	return r.flush()
}

func (r *FileSnapshotRepository) All(ctx context.Context) (map[domain.UserID]domain.RoleSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[domain.UserID]domain.RoleSet, len(r.snapshots))
	for userID, set := range r.snapshots {
		out[userID] = set.Union(domain.NewRoleSet())
	}
	return out, nil
}

func (r *FileSnapshotRepository) load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot file %s: %w", r.path, err)
	}
	if len(data) == 0 {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		r.logger.Errorw("snapshot file is corrupt, starting empty", "path", r.path, "error", err)
		return nil
	}

	for user, entry := range raw {
		var roles []string
		if err := json.Unmarshal(entry, &roles); err != nil {
			r.logger.Warnw("dropping corrupt snapshot entry", "user_id", user, "error", err)
			continue
		}
		set := domain.NewRoleSet()
		for _, role := range roles {
			if role != "" {
				set.Add(domain.RoleID(role))
			}
		}
		if set.Len() > 0 {
			r.snapshots[domain.UserID(user)] = set
		}
	}
	return nil
}

// flush writes the full map via a temp file and rename. Callers hold r.mu.
func (r *FileSnapshotRepository) flush() error {
	raw := make(map[string][]string, len(r.snapshots))
	for userID, set := range r.snapshots {
		roles := make([]string, 0, set.Len())
		for _, role := range set.Sorted() {
			roles = append(roles, string(role))
		}
		raw[string(userID)] = roles
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshots: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshots-*.json")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to sync snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}
