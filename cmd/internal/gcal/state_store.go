package gcal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStateNotFound means the anti-forgery state was never stashed, has
// expired, or was already consumed. The callback fails closed on it.
var ErrStateNotFound = errors.New("gcal: oauth state not found")

// StateStore stashes the consent round trip's anti-forgery state keyed
// to the initiating account. Take consumes: a state can be redeemed
// exactly once.
type StateStore interface {
	Put(ctx context.Context, state, accountID string, ttl time.Duration) error
	Take(ctx context.Context, state string) (accountID string, err error)
}

// RedisStateStore shares the stash across instances.
type RedisStateStore struct {
	rdb redis.UniversalClient
}

// NewRedisStateStore constructs a RedisStateStore.
func NewRedisStateStore(rdb redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{rdb: rdb}
}

func stateKey(state string) string { return "reptrack:gcal:state:" + state }

func (s *RedisStateStore) Put(ctx context.Context, state, accountID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, stateKey(state), accountID, ttl).Err()
}

func (s *RedisStateStore) Take(ctx context.Context, state string) (string, error) {
	v, err := s.rdb.GetDel(ctx, stateKey(state)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrStateNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// MemoryStateStore backs tests and DB-less runs.
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[string]memoryState
}

type memoryState struct {
	accountID string
	expires   time.Time
}

// NewMemoryStateStore constructs an empty MemoryStateStore.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{entries: make(map[string]memoryState)}
}

func (s *MemoryStateStore) Put(_ context.Context, state, accountID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[state] = memoryState{accountID: accountID, expires: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStateStore) Take(_ context.Context, state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[state]
	if !ok {
		return "", ErrStateNotFound
	}
	delete(s.entries, state)
	if time.Now().After(e.expires) {
		return "", ErrStateNotFound
	}
	return e.accountID, nil
}
