// Package cache provides a Redis-backed read cache for status lists.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"openbadges/internal/statuslist/models"
	id "openbadges/pkg/domain"
	"openbadges/pkg/platform/sentinel"
)

const keyPrefix = "badges:statuslist:v2:"

// Each list is a hash: "version" always, "data" when a document is cached.
// Both scripts refuse to move the version backwards.
var (
	setScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)
	invalidateScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HDEL', KEYS[1], 'data')
redis.call('HSET', KEYS[1], 'version', ARGV[1])
if tonumber(ARGV[2]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)
)

// RedisCache stores serialized lists under their id, guarded by version:
// a write carrying an older version than the stored one is dropped.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCache returns a cache whose entries expire after ttl.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

type entry struct {
	ID          string    `json:"id"`
	IssuerID    string    `json:"issuer_id"`
	Purpose     string    `json:"purpose"`
	BitLength   int       `json:"bit_length"`
	EncodedBits string    `json:"encoded_bits"`
	Version     int64     `json:"version"`
	Credential  []byte    `json:"credential"`
	Allocated   int       `json:"allocated"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c *RedisCache) Get(ctx context.Context, listID id.StatusListID) (*models.StatusList, error) {
	raw, err := c.client.HGet(ctx, keyPrefix+listID.String(), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("read cached status list: %w", err)
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode cached status list: %w", err)
	}
	parsed, err := id.ParseStatusListID(e.ID)
	if err != nil || parsed != listID {
		return nil, fmt.Errorf("cached status list has mismatched id %q", e.ID)
	}
	return &models.StatusList{
		ID:          parsed,
		IssuerID:    id.IssuerID(e.IssuerID),
		Purpose:     models.Purpose(e.Purpose),
		BitLength:   e.BitLength,
		EncodedBits: e.EncodedBits,
		Version:     e.Version,
		Credential:  e.Credential,
		Allocated:   e.Allocated,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}, nil
}

func (c *RedisCache) Set(ctx context.Context, list *models.StatusList) error {
	raw, err := json.Marshal(entry{
		ID:          list.ID.String(),
		IssuerID:    list.IssuerID.String(),
		Purpose:     string(list.Purpose),
		BitLength:   list.BitLength,
		EncodedBits: list.EncodedBits,
		Version:     list.Version,
		Credential:  list.Credential,
		Allocated:   list.Allocated,
		CreatedAt:   list.CreatedAt,
		UpdatedAt:   list.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode status list: %w", err)
	}
	err = setScript.Run(ctx, c.client, []string{keyPrefix + list.ID.String()},
		list.Version, raw, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("cache status list: %w", err)
	}
	return nil
}

// Invalidate drops the cached document and records version as the lowest
// version a later Set may write.
func (c *RedisCache) Invalidate(ctx context.Context, listID id.StatusListID, version int64) error {
	err := invalidateScript.Run(ctx, c.client, []string{keyPrefix + listID.String()},
		version, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("invalidate status list: %w", err)
	}
	return nil
}
