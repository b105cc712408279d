package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type IdempotencyCacheEntry struct {
	Key          string    `json:"key"`
	UserID       uuid.UUID `json:"user_id"`
	RequestHash  string    `json:"request_hash"`
	StatusCode   int       `json:"status_code"`
	ResponseBody []byte    `json:"response_body"`
	CreatedAt    time.Time `json:"created_at"`
}

// IdempotencyStore keeps replayable responses in Redis, keyed per user.
type IdempotencyStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewIdempotencyStore(client redis.UniversalClient, prefix string, ttl time.Duration) *IdempotencyStore {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "payouts:idempotency"
	}
	return &IdempotencyStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *IdempotencyStore) redisKey(key string, userID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, userID, key)
}

// Get returns nil, nil when nothing is cached.
func (s *IdempotencyStore) Get(ctx context.Context, key string, userID uuid.UUID) (*IdempotencyCacheEntry, error) {
	raw, err := s.client.Get(ctx, s.redisKey(key, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	var e IdempotencyCacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("Get: decode: %w", err)
	}
	return &e, nil
}

// Set keeps the first stored response for a key.
func (s *IdempotencyStore) Set(ctx context.Context, entry *IdempotencyCacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("Set: encode: %w", err)
	}
	if err := s.client.SetNX(ctx, s.redisKey(entry.Key, entry.UserID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("Set: %w", err)
	}
	return nil
}
