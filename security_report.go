package fortress

import (
	"sort"
	"time"
)

// SecurityReport summarizes the engine's active security posture for
// operator dashboards and startup logging. It never contains secrets.
type SecurityReport struct {
	SessionTTL           time.Duration
	Argon2               PasswordConfigReport
	PasswordMinLength    int
	BreachedCheckEnabled bool
	RateLimitingActive   bool
	LockoutActive        bool
	LockoutMaxAttempts   int
	LockoutDuration      time.Duration
	PasswordResetTTL     time.Duration
	EmailVerificationTTL time.Duration
	OAuthProviders       []string
	AuditActive          bool
	MetricsActive        bool
}

// PasswordConfigReport mirrors the active Argon2id cost parameters.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	providers := make([]string, 0, len(e.oauth))
	for id := range e.oauth {
		providers = append(providers, id)
	}
	sort.Strings(providers)

	return SecurityReport{
		SessionTTL: e.config.Session.TTL,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Argon2.Memory,
			Time:        e.config.Password.Argon2.Time,
			Parallelism: e.config.Password.Argon2.Parallelism,
			SaltLength:  e.config.Password.Argon2.SaltLength,
			KeyLength:   e.config.Password.Argon2.KeyLength,
		},
		PasswordMinLength:    e.config.Password.MinLength,
		BreachedCheckEnabled: e.config.Password.BreachedCheck.Enabled && e.breach != nil,
		RateLimitingActive:   !e.config.RateLimit.Disabled && e.limiter != nil,
		LockoutActive:        !e.config.Lockout.Disabled,
		LockoutMaxAttempts:   e.config.Lockout.MaxFailedAttempts,
		LockoutDuration:      e.config.Lockout.LockoutDuration,
		PasswordResetTTL:     e.config.PasswordReset.TTL,
		EmailVerificationTTL: e.config.EmailVerification.TTL,
		OAuthProviders:       providers,
		AuditActive:          e.audit != nil,
		MetricsActive:        e.metrics.Enabled(),
	}
}
