package memory

import (
	"sync"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
)

type MemorySkipSet struct {
	users map[domain.UserID]struct{}
	mu    sync.RWMutex
}

func NewMemorySkipSet() ports.SkipSet {
	return &MemorySkipSet{
		users: make(map[domain.UserID]struct{}),
	}
}

func (s *MemorySkipSet) Add(userID domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = struct{}{}
}

func (s *MemorySkipSet) Contains(userID domain.UserID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok
}

func (s *MemorySkipSet) Remove(userID domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
}
