package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"statchat/internal/util"
)

const redisTokenPrefix = "statchat:session:"

// RedisTokenStore keeps token -> session id mappings in Redis with TTL.
type RedisTokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTokenStore builds a Redis-backed token store.
func NewRedisTokenStore(addr, password string, ttl time.Duration) *RedisTokenStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisTokenStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

// Issue writes a token -> session id mapping with TTL.
func (s *RedisTokenStore) Issue(sessionID string) (string, error) {
	token := util.NewID()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, redisTokenPrefix+token, sessionID, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// SessionID resolves a token to its session id.
func (s *RedisTokenStore) SessionID(token string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	val, err := s.client.Get(ctx, redisTokenPrefix+token).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Revoke removes a token mapping.
func (s *RedisTokenStore) Revoke(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, redisTokenPrefix+token).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}
