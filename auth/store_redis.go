package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisSessionStore is a SessionStore backed by Redis. Each session is a JSON
// value under prefix:session_id. When ttl is positive the key carries it as
// an expiration, so Redis evicts sessions the read path already treats as
// expired.
type RedisSessionStore struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

type redisSession struct {
	UserID    string `json:"user_id"`
	CreatedAt int64  `json:"created_at"`
}

func NewRedisSessionStore(rdb *goredis.Client, prefix string, ttl time.Duration) *RedisSessionStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisSessionStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisSessionStore) key(sessionID string) string {
	if s.prefix == "" {
		return sessionID
	}
	return s.prefix + ":" + sessionID
}

func (s *RedisSessionStore) Put(ctx context.Context, rec SessionRecord) error {
	data, err := json.Marshal(redisSession{UserID: rec.UserID, CreatedAt: rec.CreatedAt.UnixMilli()})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, s.key(rec.SessionID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return ErrSessionExists
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, sessionID string) (SessionRecord, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return SessionRecord{}, false, nil
		}
		return SessionRecord{}, false, fmt.Errorf("redis get: %w", err)
	}
	var v redisSession
	if err := json.Unmarshal(raw, &v); err != nil {
		return SessionRecord{}, false, fmt.Errorf("unmarshal session: %w", err)
	}
	return SessionRecord{
		SessionID: sessionID,
		UserID:    v.UserID,
		CreatedAt: time.UnixMilli(v.CreatedAt),
	}, true, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.rdb.Del(ctx, s.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

// Close closes the Redis client.
func (s *RedisSessionStore) Close() error {
	return s.rdb.Close()
}
