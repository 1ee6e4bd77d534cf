package ratelimit

import (
	"context"
	"sync"
	"time"
)

const pruneEvery = 512

// MemoryLimiter is the default in-process token-bucket backend.
// Safe for concurrent use; state is per (identifier, action) pair.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucketState
	config  map[Action]Bucket
	ops     int
	now     func() time.Time
}

type bucketKey struct {
	identifier string
	action     Action
}

type bucketState struct {
	tokens   float64
	lastSeen time.Time
}

// NewMemoryLimiter creates a limiter with the given per-action budgets.
// Actions absent from config are unlimited.
func NewMemoryLimiter(config map[Action]Bucket) *MemoryLimiter {
	cfg := make(map[Action]Bucket, len(config))
	for action, b := range config {
		cfg[action] = b
	}

	return &MemoryLimiter{
		buckets: make(map[bucketKey]*bucketState),
		config:  cfg,
		now:     time.Now,
	}
}

// Check probes the bucket without spending a token.
func (l *MemoryLimiter) Check(_ context.Context, identifier string, action Action) (Decision, error) {
	cfg, limited := l.config[action]
	if !limited || cfg.MaxTokens <= 0 {
		return Decision{Allowed: true, Remaining: int(^uint(0) >> 1)}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tokens := l.currentTokens(bucketKey{identifier, action}, cfg, now)

	d := Decision{
		Allowed:   tokens >= 1,
		Remaining: int(tokens),
		ResetAt:   now.Add(timeToFull(tokens, cfg)),
	}
	if !d.Allowed {
		d.RetryAfter = timeToNextToken(tokens, cfg)
	}

	return d, nil
}

// Consume spends one token, driving the bucket toward empty. Consuming at
// zero is a no-op so a burst of denied requests cannot push the reset time
// out indefinitely.
func (l *MemoryLimiter) Consume(_ context.Context, identifier string, action Action) error {
	cfg, limited := l.config[action]
	if !limited || cfg.MaxTokens <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := bucketKey{identifier, action}
	tokens := l.currentTokens(key, cfg, now)
	if tokens >= 1 {
		tokens--
	}

	l.buckets[key] = &bucketState{tokens: tokens, lastSeen: now}

	l.ops++
	if l.ops%pruneEvery == 0 {
		l.prune(now)
	}

	return nil
}

// currentTokens applies elapsed refill to the stored state. Caller holds mu.
func (l *MemoryLimiter) currentTokens(key bucketKey, cfg Bucket, now time.Time) float64 {
	state, ok := l.buckets[key]
	if !ok {
		return float64(cfg.MaxTokens)
	}

	tokens := state.tokens
	if cfg.RefillInterval > 0 {
		elapsed := now.Sub(state.lastSeen)
		tokens += float64(elapsed) / float64(cfg.RefillInterval)
	}
	if max := float64(cfg.MaxTokens); tokens > max {
		tokens = max
	}

	return tokens
}

func (l *MemoryLimiter) prune(now time.Time) {
	for key, state := range l.buckets {
		window := l.config[key.action].Window
		if window <= 0 {
			window = time.Hour
		}
		if now.Sub(state.lastSeen) > window {
			delete(l.buckets, key)
		}
	}
}

func timeToNextToken(tokens float64, cfg Bucket) time.Duration {
	if cfg.RefillInterval <= 0 {
		return 0
	}
	deficit := 1 - tokens
	if deficit <= 0 {
		return 0
	}
	return time.Duration(deficit * float64(cfg.RefillInterval))
}

func timeToFull(tokens float64, cfg Bucket) time.Duration {
	if cfg.RefillInterval <= 0 {
		return 0
	}
	deficit := float64(cfg.MaxTokens) - tokens
	if deficit <= 0 {
		return 0
	}
	return time.Duration(deficit * float64(cfg.RefillInterval))
}
