package service

import (
	"time"

	"github.com/bluele/gcache"

	"openbadges/internal/keys/models"
)

// KeyCache holds the immutable identity of resolved keys by controller id:
// key id, issuer and public key. Status is never cached. Implementations
// must be safe for concurrent use.
type KeyCache interface {
	Get(controllerID string) (*models.ResolvedKey, bool)
	Set(controllerID string, key *models.ResolvedKey)
}

// LRUKeyCache is a bounded, expiring KeyCache backed by gcache.
type LRUKeyCache struct {
	cache gcache.Cache
}

// NewLRUKeyCache builds a cache holding at most size keys for ttl each.
// A non-positive ttl disables expiry.
func NewLRUKeyCache(size int, ttl time.Duration) *LRUKeyCache {
	builder := gcache.New(size).LRU()
	if ttl > 0 {
		builder = builder.Expiration(ttl)
	}
	return &LRUKeyCache{cache: builder.Build()}
}

func (c *LRUKeyCache) Get(controllerID string) (*models.ResolvedKey, bool) {
	v, err := c.cache.Get(controllerID)
	if err != nil {
		return nil, false
	}
	key, ok := v.(*models.ResolvedKey)
	if !ok {
		return nil, false
	}
	copied := *key
	return &copied, true
}

func (c *LRUKeyCache) Set(controllerID string, key *models.ResolvedKey) {
	copied := *key
	copied.Status = ""
	copied.RevokedAt = nil
	_ = c.cache.Set(controllerID, &copied)
}

type noopKeyCache struct{}

func (noopKeyCache) Get(string) (*models.ResolvedKey, bool) { return nil, false }
func (noopKeyCache) Set(string, *models.ResolvedKey)        {}
