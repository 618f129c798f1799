package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kalambet/anchor/internal/chat"
)

// StateStore checkpoints survey progress between turns so a session can be
// resumed after a restart or on another instance.
type StateStore interface {
	Load(ctx context.Context, userID string) (chat.Progress, bool, error)
	Save(ctx context.Context, userID string, p chat.Progress) error
	Delete(ctx context.Context, userID string) error
}

// MemoryStore keeps progress in process memory. Entries expire after ttl;
// zero keeps them forever.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	progress  chat.Progress
	expiresAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Load(_ context.Context, userID string) (chat.Progress, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok {
		return chat.Progress{}, false, nil
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		delete(m.entries, userID)
		return chat.Progress{}, false, nil
	}
	return e.progress, true, nil
}

func (m *MemoryStore) Save(_ context.Context, userID string, p chat.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{progress: p}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	m.entries[userID] = e
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}

// redisKV is the subset of redis.Cmdable RedisStore uses.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps progress in Redis as JSON under anchor:session:<user>.
type RedisStore struct {
	client redisKV
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore. Each save refreshes the key's ttl.
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(userID string) string {
	return "anchor:session:" + userID
}

func (r *RedisStore) Load(ctx context.Context, userID string) (chat.Progress, bool, error) {
	data, err := r.client.Get(ctx, redisKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return chat.Progress{}, false, nil
	}
	if err != nil {
		return chat.Progress{}, false, fmt.Errorf("loading session state: %w", err)
	}
	var p chat.Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return chat.Progress{}, false, fmt.Errorf("decoding session state: %w", err)
	}
	return p, true, nil
}

func (r *RedisStore) Save(ctx context.Context, userID string, p chat.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisKey(userID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("saving session state: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, userID string) error {
	return r.client.Del(ctx, redisKey(userID)).Err()
}
