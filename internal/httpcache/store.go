package httpcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yourorg/saasforge/internal/infrastructure/redis"
	"github.com/yourorg/saasforge/pkg/cache"
)

// Entry is a stored response.
type Entry struct {
	Body      []byte            `json:"body"`
	Status    int               `json:"status"`
	MediaType string            `json:"media_type"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// Store persists entries with a TTL.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, e *Entry, ttl time.Duration) error
	// InvalidateScope removes every entry of one (user, tenant) pair.
	InvalidateScope(ctx context.Context, userID, tenantID string) error
}

// memoryStoreLimit bounds the entries a MemoryStore keeps.
const memoryStoreLimit = 10_000

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	c *cache.Cache[*Entry]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: cache.NewBounded[*Entry](memoryStoreLimit)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, bool, error) {
	e, ok := s.c.Get(key)
	return e, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, e *Entry, ttl time.Duration) error {
	s.c.Set(key, e, ttl)
	return nil
}

func (s *MemoryStore) InvalidateScope(_ context.Context, userID, tenantID string) error {
	s.c.Invalidate(ScopePrefix(userID, tenantID))
	return nil
}

// Len returns the number of stored keys, expired ones included.
func (s *MemoryStore) Len() int {
	return s.c.Len()
}

// RedisStore keeps entries in Redis as JSON.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	b, ok, err := s.client.GetBytes(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &e, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, e *Entry, ttl time.Duration) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return s.client.Set(ctx, key, b, ttl)
}

func (s *RedisStore) InvalidateScope(ctx context.Context, userID, tenantID string) error {
	_, err := s.client.DeleteMatching(ctx, ScopePattern(userID, tenantID))
	return err
}
