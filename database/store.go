package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key holds no value.
var ErrNotFound = errors.New("not found")

// Store is the raw per-session key-value persistence behind the data source.
// Writes are last-write-wins.
type Store interface {
	Get(ctx context.Context, sessionID, key string) ([]byte, error)
	Set(ctx context.Context, sessionID, key string, value []byte) error
	Delete(ctx context.Context, sessionID string, keys ...string) error
	// SessionsWithKey lists the sessions that currently hold key.
	SessionsWithKey(ctx context.Context, key string) ([]string, error)
}

// MemoryStore keeps session state in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, sessionID, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[sessionID][key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, sessionID, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[sessionID] == nil {
		m.data[sessionID] = make(map[string][]byte)
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.data[sessionID][key] = v
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data[sessionID], k)
	}
	if len(m.data[sessionID]) == 0 {
		delete(m.data, sessionID)
	}
	return nil
}

func (m *MemoryStore) SessionsWithKey(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, kv := range m.data {
		if _, ok := kv[key]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// keyPrefix keeps session data apart from the lock and cache keys under vetflow:.
const keyPrefix = "vetflow:session"

// RedisStore keeps session state under vetflow:session:<session>:<key>.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore returns a store over client. A zero ttl keeps keys forever.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(sessionID, key string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, sessionID, key)
}

func (r *RedisStore) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, redisKey(sessionID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *RedisStore) Set(ctx context.Context, sessionID, key string, value []byte) error {
	return r.client.Set(ctx, redisKey(sessionID, key), value, r.ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = redisKey(sessionID, k)
	}
	return r.client.Del(ctx, full...).Err()
}

func (r *RedisStore) SessionsWithKey(ctx context.Context, key string) ([]string, error) {
	var ids []string
	iter := r.client.Scan(ctx, 0, redisKey("*", key), 100).Iterator()
	for iter.Next(ctx) {
		parts := strings.SplitN(strings.TrimPrefix(iter.Val(), keyPrefix+":"), ":", 2)
		if len(parts) == 2 && parts[1] == key {
			ids = append(ids, parts[0])
		}
	}
	return ids, iter.Err()
}
