package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// expiryGrace keeps an expired challenge readable for a while so a late
// verify is answered with EXPIRED rather than NO_CHALLENGE.
const expiryGrace = time.Minute

// RedisStore shares challenges across API instances.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStore(rdb *redis.Client, prefix string, now func() time.Time) *RedisStore {
	if prefix == "" {
		prefix = "attendance"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisStore{rdb: rdb, prefix: prefix, now: now}
}

// Key returns the redis key for a challenge: <prefix>:otp:<kind>:<identity>.
func (s *RedisStore) Key(kind Kind, identity string) string {
	return strings.Join([]string{s.prefix, "otp", string(kind), identity}, ":")
}

func (s *RedisStore) Issue(ctx context.Context, kind Kind, identity, code string, ttl time.Duration, payload Context) (Challenge, error) {
	issuedAt := s.now()
	ch := Challenge{
		Kind:      kind,
		Identity:  identity,
		Code:      code,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(ttl),
		Context:   payload,
	}

	raw, err := json.Marshal(ch)
	if err != nil {
		return Challenge{}, fmt.Errorf("encode challenge: %w", err)
	}

	if err := s.rdb.Set(ctx, s.Key(kind, identity), raw, ttl+expiryGrace).Err(); err != nil {
		return Challenge{}, fmt.Errorf("store challenge: %w", err)
	}
	return ch, nil
}

func (s *RedisStore) Lookup(ctx context.Context, kind Kind, identity string) (Challenge, error) {
	raw, err := s.rdb.Get(ctx, s.Key(kind, identity)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Challenge{}, ErrChallengeNotFound
		}
		return Challenge{}, fmt.Errorf("load challenge: %w", err)
	}

	var ch Challenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return Challenge{}, fmt.Errorf("decode challenge: %w", err)
	}
	return ch, nil
}

func (s *RedisStore) Consume(ctx context.Context, kind Kind, identity string) error {
	if err := s.rdb.Del(ctx, s.Key(kind, identity)).Err(); err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}
