package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campuskeep/campuskeep/pkg/policy"
)

const sessionKeyPrefix = "session:"

// RedisSessionStore resolves opaque tokens against sessions held in Redis.
// Sessions are provisioned by the login flow (out of scope here); the store
// only reads them, plus a Put used by operational tooling and tests.
type RedisSessionStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisSessionStore creates a store over an existing client.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, now: time.Now}
}

// Resolve implements Resolver. A missing or expired key is unauthenticated;
// a Redis failure is an infrastructure error, not a deny.
func (s *RedisSessionStore) Resolve(ctx context.Context, token string) (policy.Subject, error) {
	if token == "" {
		return policy.Subject{}, ErrUnauthenticated
	}
	raw, err := s.client.Get(ctx, sessionKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return policy.Subject{}, ErrUnauthenticated
	}
	if err != nil {
		return policy.Subject{}, fmt.Errorf("session lookup: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		// A session we cannot parse must not authenticate anyone.
		return policy.Subject{}, ErrUnauthenticated
	}
	return subjectFromSession(session, s.now())
}

// Put stores a session under the token, expiring with the session itself.
func (s *RedisSessionStore) Put(ctx context.Context, token string, session Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("session encode: %w", err)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+token, raw, ttl).Err(); err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	return nil
}
