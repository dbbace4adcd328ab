package memory

import (
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
	"guildwarden/pkg/cache"
)

// CacheBypassRegistry backs the bypass registry with the shared TTL cache.
// An expired entry reads as absent; entries are never explicitly deleted.
type CacheBypassRegistry struct {
	cache *cache.Cache
}

func NewCacheBypassRegistry(defaultTTL time.Duration) ports.BypassRegistry {
	return &CacheBypassRegistry{
		cache: cache.New(defaultTTL),
	}
}

func (r *CacheBypassRegistry) Grant(userID domain.UserID, ttl time.Duration) {
	r.cache.SetWithTTL(string(userID), struct{}{}, ttl)
}

func (r *CacheBypassRegistry) IsActive(userID domain.UserID) bool {
	_, active := r.cache.Get(string(userID))
	return active
}
