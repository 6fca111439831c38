package repository

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers which booking a client Idempotency-Key produced.
type IdempotencyStore interface {
	// Reserve binds key to bookingID unless the key is already bound, in which
	// case it returns the existing booking id and reserved=false.
	Reserve(ctx context.Context, key, bookingID string, ttl time.Duration) (existingID string, reserved bool, err error)
	// Forget drops a binding, used when the guarded create did not persist.
	Forget(ctx context.Context, key string) error
}

func hashKey(key string) string {
	return fmt.Sprintf("idempotency:booking:%x", sha256.Sum256([]byte(key)))
}

type redisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) IdempotencyStore {
	return &redisIdempotencyStore{client: client}
}

func (s *redisIdempotencyStore) Reserve(ctx context.Context, key, bookingID string, ttl time.Duration) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	hashed := hashKey(key)
	ok, err := s.client.SetNX(ctx, hashed, bookingID, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return bookingID, true, nil
	}

	existing, err := s.client.Get(ctx, hashed).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; try once more.
		ok, err = s.client.SetNX(ctx, hashed, bookingID, ttl).Result()
		if err != nil {
			return "", false, err
		}
		if ok {
			return bookingID, true, nil
		}
		existing, err = s.client.Get(ctx, hashed).Result()
	}
	if err != nil {
		return "", false, err
	}
	return existing, false, nil
}

func (s *redisIdempotencyStore) Forget(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return s.client.Del(ctx, hashKey(key)).Err()
}

type memoryEntry struct {
	bookingID string
	expiresAt time.Time
}

// MemoryIdempotencyStore is the in-process counterpart for BOOKING_STORE=memory.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryIdempotencyStore) Reserve(_ context.Context, key, bookingID string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hashed := hashKey(key)
	now := s.now()
	if e, ok := s.entries[hashed]; ok && now.Before(e.expiresAt) {
		return e.bookingID, false, nil
	}
	s.entries[hashed] = memoryEntry{bookingID: bookingID, expiresAt: now.Add(ttl)}
	return bookingID, true, nil
}

func (s *MemoryIdempotencyStore) Forget(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, hashKey(key))
	return nil
}

var (
	_ IdempotencyStore = (*redisIdempotencyStore)(nil)
	_ IdempotencyStore = (*MemoryIdempotencyStore)(nil)
)
