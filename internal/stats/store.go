package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/salesfeed/internal/cache"
	"github.com/rickgao/salesfeed/internal/model"
)

// Store caches fetched stats by key.
type Store interface {
	// Get returns the stats under key; ok is false on a miss or expired entry.
	Get(ctx context.Context, key string) (s model.CollectionStats, ok bool, err error)

	// Put stores s under key for ttl, overwriting any existing entry.
	Put(ctx context.Context, key string, s model.CollectionStats, ttl time.Duration) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps stats in a bounded in-process cache.
type MemoryStore struct {
	cache *cache.Cache[model.CollectionStats]
}

// NewMemoryStore creates a MemoryStore holding at most size entries.
func NewMemoryStore(size int) (*MemoryStore, error) {
	c, err := cache.New[model.CollectionStats](size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: c}, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (model.CollectionStats, bool, error) {
	s, ok := m.cache.Get(key)
	return s, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, s model.CollectionStats, ttl time.Duration) error {
	m.cache.Put(key, s, ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}

// SetClock replaces the time source. Used by tests.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.cache.SetClock(now)
}

// RedisStore keeps stats in Redis as JSON, shared between instances.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore creates a RedisStore connected to cfg.Addr.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	return NewRedisStoreFromClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}))
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) (model.CollectionStats, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.CollectionStats{}, false, nil
	}
	if err != nil {
		return model.CollectionStats{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var s model.CollectionStats
	if err := json.Unmarshal(b, &s); err != nil {
		return model.CollectionStats{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return s, true, nil
}

func (r *RedisStore) Put(ctx context.Context, key string, s model.CollectionStats, ttl time.Duration) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.client.Set(ctx, key, b, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
