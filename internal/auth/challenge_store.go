package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengePrefix = "bio:challenge:"

// ChallengeStore keeps pending biometric challenges. Take must be single-use.
type ChallengeStore interface {
	Put(ctx context.Context, ch Challenge, ttl time.Duration) error
	Take(ctx context.Context, id string) (Challenge, error)
}

// RedisChallengeStore stores challenges as JSON values with a TTL.
type RedisChallengeStore struct {
	cache *redis.Client
}

// NewRedisChallengeStore builds a redis-backed challenge store.
func NewRedisChallengeStore(cache *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{cache: cache}
}

// Put stores the challenge until ttl elapses.
func (s *RedisChallengeStore) Put(ctx context.Context, ch Challenge, ttl time.Duration) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, challengePrefix+ch.ID, payload, ttl).Err()
}

// Take atomically reads and deletes the challenge.
func (s *RedisChallengeStore) Take(ctx context.Context, id string) (Challenge, error) {
	raw, err := s.cache.GetDel(ctx, challengePrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Challenge{}, ErrChallengeNotFound
		}
		return Challenge{}, err
	}
	var ch Challenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return Challenge{}, ErrChallengeNotFound
	}
	return ch, nil
}

type memoryChallengeStore struct {
	mu    sync.Mutex
	items map[string]Challenge
}

// NewMemoryChallengeStore is used in development when redis is not configured.
func NewMemoryChallengeStore() ChallengeStore {
	return &memoryChallengeStore{items: make(map[string]Challenge)}
}

func (s *memoryChallengeStore) Put(_ context.Context, ch Challenge, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, existing := range s.items {
		if now.After(existing.ExpiresAt) {
			delete(s.items, id)
		}
	}
	s.items[ch.ID] = ch
	return nil
}

func (s *memoryChallengeStore) Take(_ context.Context, id string) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.items[id]
	if !ok {
		return Challenge{}, ErrChallengeNotFound
	}
	delete(s.items, id)
	return ch, nil
}
