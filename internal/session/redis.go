package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/riskguard/server/internal/model"
)

const redisKeyPrefix = "approval:"

// verifyScript flips the verified flag in place while preserving the key's
// remaining TTL. Returning through a single script keeps check-then-set
// atomic on the server: 1 = transitioned now, 0 = already verified,
// nil = unknown or expired token.
const verifyScript = `
local raw = redis.call("GET", KEYS[1])
if not raw then
  return false
end
local s = cjson.decode(raw)
if s.verified then
  return 0
end
s.verified = true
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("SET", KEYS[1], cjson.encode(s), "PX", ttl)
else
  redis.call("SET", KEYS[1], cjson.encode(s))
end
return 1
`

var verifyLua = redis.NewScript(verifyScript)

// RedisStore keeps sessions in Redis with native key expiry, so sweeping is
// handled server-side and SweepExpired is a no-op.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Create stores the session with SETNX semantics; an existing live key is a
// collision, never overwritten.
func (r *RedisStore) Create(ctx context.Context, s model.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Duration(s.TTLSeconds) * time.Second
	ok, err := r.client.SetNX(ctx, redisKeyPrefix+s.Token, raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return ErrTokenExists
	}
	return nil
}

// Get returns the session for the token; Redis expiry makes stale tokens
// read as missing.
func (r *RedisStore) Get(ctx context.Context, token string) (model.Session, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("load session: %w", err)
	}

	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return model.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return s, nil
}

// Verify runs the Lua transition script and reloads the session.
func (r *RedisStore) Verify(ctx context.Context, token string) (model.Session, bool, error) {
	res, err := verifyLua.Run(ctx, r.client, []string{redisKeyPrefix + token}).Result()
	if errors.Is(err, redis.Nil) {
		return model.Session{}, false, ErrNotFound
	}
	if err != nil {
		return model.Session{}, false, fmt.Errorf("verify session: %w", err)
	}

	first, ok := res.(int64)
	if !ok {
		return model.Session{}, false, fmt.Errorf("verify session: unexpected script result %T", res)
	}

	s, err := r.Get(ctx, token)
	if err != nil {
		return model.Session{}, false, err
	}
	return s, first == 1, nil
}

// SweepExpired is a no-op: Redis evicts expired keys itself.
func (r *RedisStore) SweepExpired(context.Context) error {
	return nil
}
