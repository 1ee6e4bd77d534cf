package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBackendUnavailable wraps Redis transport failures so callers can
// distinguish an unreachable backend from a denied request.
var ErrBackendUnavailable = errors.New("rate limit backend unavailable")

// RedisLimiter is a shared fixed-window backend for multi-instance
// deployments. Each (identifier, action) pair maps to a counter key with
// the action's window as TTL; the budget is MaxTokens hits per window.
type RedisLimiter struct {
	client redis.UniversalClient
	config map[Action]Bucket
	prefix string
}

// NewRedisLimiter creates a Redis-backed limiter. An empty prefix defaults
// to "frl".
func NewRedisLimiter(client redis.UniversalClient, config map[Action]Bucket, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "frl"
	}

	cfg := make(map[Action]Bucket, len(config))
	for action, b := range config {
		cfg[action] = b
	}

	return &RedisLimiter{
		client: client,
		config: cfg,
		prefix: prefix,
	}
}

// Identifiers are hashed into the key so arbitrary emails and user agents
// never become raw Redis key material.
func (l *RedisLimiter) key(identifier string, action Action) string {
	sum := sha256.Sum256([]byte(identifier))
	return l.prefix + ":" + string(action) + ":" + hex.EncodeToString(sum[:16])
}

// Check probes the window counter without incrementing it.
func (l *RedisLimiter) Check(ctx context.Context, identifier string, action Action) (Decision, error) {
	cfg, limited := l.config[action]
	if !limited || cfg.MaxTokens <= 0 {
		return Decision{Allowed: true, Remaining: int(^uint(0) >> 1)}, nil
	}

	key := l.key(identifier, action)

	pipe := l.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	count, err := getCmd.Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		count = 0
	}

	now := time.Now()
	resetIn := cfg.Window
	if ttl, err := ttlCmd.Result(); err == nil && ttl > 0 {
		resetIn = ttl
	}

	remaining := cfg.MaxTokens - int(count)
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:   count < int64(cfg.MaxTokens),
		Remaining: remaining,
		ResetAt:   now.Add(resetIn),
	}
	if !d.Allowed {
		d.RetryAfter = resetIn
	}

	return d, nil
}

// Consume increments the window counter, creating it with the window TTL on
// first hit.
func (l *RedisLimiter) Consume(ctx context.Context, identifier string, action Action) error {
	cfg, limited := l.config[action]
	if !limited || cfg.MaxTokens <= 0 {
		return nil
	}

	key := l.key(identifier, action)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// TTL is set only on the first hit in the window.
	if count == 1 {
		if err := l.client.Expire(ctx, key, cfg.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	return nil
}
