package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
  local count = tonumber(redis.call("GET", KEYS[3]) or "0")
  if count > 1 then
    redis.call("DECR", KEYS[3])
  elseif count == 1 then
    redis.call("DEL", KEYS[3])
  end
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// RedisStore is a Redis-backed [Store]. Each session is one key holding the
// encoded blob; a per-user set indexes tokens and a counter tracks totals.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a [RedisStore] on client. prefix namespaces every
// key the store writes.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "lk"
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + ":s:" + token
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *RedisStore) countKey() string {
	return s.prefix + ":count"
}

// Save persists sess with ttl. A zero ttl writes a key without expiry.
//
//	Performance: 1 MULTI/EXEC (SET + SADD + INCR).
func (s *RedisStore) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	stored := sess
	if sess.ExpiresAt == 0 && ttl > 0 {
		stored = sess.Clone()
		stored.ExpiresAt = s.now().Add(ttl).Unix()
	}

	data, err := Encode(stored)
	if err != nil {
		return err
	}

	sessionKey := s.key(sess.Token)

	existed, err := s.redis.Exists(ctx, sessionKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.Token)
		if existed == 0 {
			pipe.Incr(ctx, s.countKey())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// Get retrieves a session by token.
//
//	Performance: 1 Redis GET.
func (s *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.Token = token

	if sess.Expired(s.now()) {
		if _, err := s.deleteSessionAndIndex(ctx, sess.UserID, token); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	return sess, nil
}

// Delete removes a session and its index entry.
//
//	Performance: 1 GET + 1 Lua EVALSHA.
func (s *RedisStore) Delete(ctx context.Context, token string) (bool, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return false, err
	}

	return s.deleteSessionAndIndex(ctx, sess.UserID, token)
}

// DeleteAllForUser removes all sessions indexed under userID.
//
// Each token is removed atomically, but a session saved while the loop runs
// may survive; a second call catches it.
func (s *RedisStore) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	tokens, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	removed := 0
	for _, token := range tokens {
		existed, err := s.deleteSessionAndIndex(ctx, userID, token)
		if err != nil {
			return removed, err
		}
		if existed {
			removed++
		}
	}

	return removed, nil
}

// Count returns the tracked session counter. Keys that expired through
// Redis TTL are not subtracted until they are looked up.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	count, err := s.redis.Get(ctx, s.countKey()).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *RedisStore) deleteSessionAndIndex(ctx context.Context, userID, token string) (bool, error) {
	keys := []string{s.key(token), s.userKey(userID), s.countKey()}

	existed, err := deleteSessionLua.Run(ctx, s.redis, keys, token).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return existed == 1, nil
}
