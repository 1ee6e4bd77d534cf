// Package ratelimit provides per-identifier, per-action admission control
// for the engine.
//
// The default backend is an in-memory token bucket. A Redis-backed
// fixed-window backend implements the same interface so limits stay
// consistent across multiple engine instances.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Action names a rate-limited engine operation. Each action has its own
// independently configured bucket.
type Action string

const (
	ActionLogin         Action = "login"
	ActionSignup        Action = "signup"
	ActionPasswordReset Action = "password_reset"
	ActionVerifyEmail   Action = "verify_email"
)

// Bucket configures the budget for one action.
type Bucket struct {
	// MaxTokens is the burst capacity per identifier.
	MaxTokens int
	// RefillInterval is the time to regain one token.
	RefillInterval time.Duration
	// Window bounds how long an idle identifier's state is retained.
	Window time.Duration
}

// Decision is the outcome of a side-effect-free Check probe.
type Decision struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter is the admission-control port consumed by the engine.
// Check never mutates state; Consume spends one token.
type Limiter interface {
	Check(ctx context.Context, identifier string, action Action) (Decision, error)
	Consume(ctx context.Context, identifier string, action Action) error
}

// Identifier combines whichever of email, IP and user agent are available
// into a composite rate-limit key. The user agent is fingerprinted rather
// than embedded so keys stay bounded. With no metadata at all the literal
// "unknown" is returned, which degrades to a single shared bucket instead
// of disabling limiting.
func Identifier(email, ip, userAgent string) string {
	parts := make([]string, 0, 3)

	if email != "" {
		parts = append(parts, "email:"+email)
	}
	if ip != "" {
		parts = append(parts, "ip:"+ip)
	}
	if userAgent != "" {
		sum := sha256.Sum256([]byte(userAgent))
		parts = append(parts, "ua:"+hex.EncodeToString(sum[:])[:16])
	}

	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}
