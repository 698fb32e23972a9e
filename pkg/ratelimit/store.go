package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash that holds the shared quota state.
const DefaultRedisKey = "api:rate_limit:state"

// Store persists the quota state. Load returns nil, nil when nothing is known.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}

// MemoryStore keeps the state in process.
type MemoryStore struct {
	mu    sync.Mutex
	state *State
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(context.Context) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, nil
	}
	s := *m.state
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, state *State) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}
	s := *state
	m.mu.Lock()
	// Responses can complete out of order; keep the newest observation.
	if m.state == nil || !s.LastUpdate.Before(m.state.LastUpdate) {
		m.state = &s
	}
	m.mu.Unlock()
	return nil
}

// RedisStore shares the state between processes through a Redis hash that
// expires shortly after the window resets.
type RedisStore struct {
	redis *redis.Client
	key   string
}

// NewRedisStore creates a RedisStore. An empty key selects DefaultRedisKey.
func NewRedisStore(redisClient *redis.Client, key string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{redis: redisClient, key: key}
}

func (r *RedisStore) Load(ctx context.Context) (*State, error) {
	fields, err := r.redis.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	remaining, err := strconv.Atoi(fields["remaining"])
	if err != nil {
		return nil, fmt.Errorf("parse remaining: %w", err)
	}
	limit, _ := strconv.Atoi(fields["limit"])
	resetAt, err := strconv.ParseInt(fields["reset_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse reset_at: %w", err)
	}
	lastUpdate, _ := strconv.ParseInt(fields["last_update"], 10, 64)

	return &State{
		Remaining:  remaining,
		Limit:      limit,
		ResetAt:    time.Unix(resetAt, 0),
		LastUpdate: time.Unix(0, lastUpdate),
	}, nil
}

func (r *RedisStore) Save(ctx context.Context, state *State) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}

	pipe := r.redis.TxPipeline()
	pipe.HSet(ctx, r.key,
		"remaining", state.Remaining,
		"limit", state.Limit,
		"reset_at", state.ResetAt.Unix(),
		"last_update", state.LastUpdate.UnixNano(),
	)
	pipe.ExpireAt(ctx, r.key, state.ResetAt.Add(time.Minute))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}
