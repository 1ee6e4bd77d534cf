package fortress

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fortressauth/fortress/password"
	"github.com/fortressauth/fortress/ratelimit"
)

// Config is the full option set recognized by the engine. Zero-value
// callers should start from defaultConfig via the Builder; partial structs
// are merged over the defaults field by field at Build time.
type Config struct {
	Session           SessionConfig
	Password          PasswordConfig
	RateLimit         RateLimitConfig
	Lockout           LockoutConfig
	PasswordReset     PasswordResetConfig
	EmailVerification EmailVerificationConfig
	OAuth             OAuthConfig
	URLs              URLConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
}

// SessionConfig controls session lifetime and the cookie attributes the
// host transport should apply. The engine itself never writes cookies.
//
// Security toggles throughout Config are phrased so the zero value is the
// safe choice: a partial override merged over the defaults cannot switch a
// protection off by omission, only by setting its opt-out field.
type SessionConfig struct {
	TTL        time.Duration
	CookieName string
	// CookieAllowInsecure advises hosts that the Secure attribute may be
	// omitted, e.g. for plain-HTTP local development.
	CookieAllowInsecure bool
	CookieSameSite      http.SameSite
	CookieDomain        string
}

// BreachedCheckConfig resolves the optional breach-corpus lookup. The
// lookup itself runs in the injected BreachedPasswordChecker port.
type BreachedCheckConfig struct {
	Enabled bool
	APIURL  string
	Timeout time.Duration
}

// PasswordConfig combines the strength policy with the Argon2id cost.
type PasswordConfig struct {
	MinLength     int
	MaxLength     int
	Argon2        password.Params
	BreachedCheck BreachedCheckConfig
}

// RateLimitConfig carries one independent bucket per rate-limited action.
// Limiting is on unless Disabled is set.
type RateLimitConfig struct {
	Disabled      bool
	Login         ratelimit.Bucket
	Signup        ratelimit.Bucket
	PasswordReset ratelimit.Bucket
	VerifyEmail   ratelimit.Bucket
}

func (c RateLimitConfig) buckets() map[ratelimit.Action]ratelimit.Bucket {
	return map[ratelimit.Action]ratelimit.Bucket{
		ratelimit.ActionLogin:         c.Login,
		ratelimit.ActionSignup:        c.Signup,
		ratelimit.ActionPasswordReset: c.PasswordReset,
		ratelimit.ActionVerifyEmail:   c.VerifyEmail,
	}
}

// LockoutConfig controls the failed-sign-in lockout policy. The policy is
// on unless Disabled is set.
type LockoutConfig struct {
	Disabled          bool
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

// PasswordResetConfig controls reset token lifetime and the per-user cap
// on simultaneously active tokens.
type PasswordResetConfig struct {
	TTL             time.Duration
	MaxActiveTokens int
}

// EmailVerificationConfig controls verification token lifetime and the
// per-user cap applied when re-issuing.
type EmailVerificationConfig struct {
	TTL             time.Duration
	MaxActiveTokens int
}

// OAuthConfig controls the OAuth round-trip state window.
type OAuthConfig struct {
	StateTTL time.Duration
}

// URLConfig anchors the links embedded in outbound email.
type URLConfig struct {
	BaseURL string
}

// AuditConfig controls the async audit dispatcher. A full buffer drops
// events by default; BlockIfFull trades emit latency for lossless delivery.
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	BlockIfFull bool
}

// MetricsConfig controls the in-process metrics counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:            7 * 24 * time.Hour,
			CookieName:     "fortress_session",
			CookieSameSite: http.SameSiteLaxMode,
		},
		Password: PasswordConfig{
			MinLength: 8,
			MaxLength: 128,
			Argon2:    password.DefaultParams(),
			BreachedCheck: BreachedCheckConfig{
				Enabled: false,
				Timeout: 2 * time.Second,
			},
		},
		RateLimit: RateLimitConfig{
			Login:         ratelimit.Bucket{MaxTokens: 10, RefillInterval: 30 * time.Second, Window: 15 * time.Minute},
			Signup:        ratelimit.Bucket{MaxTokens: 5, RefillInterval: time.Minute, Window: time.Hour},
			PasswordReset: ratelimit.Bucket{MaxTokens: 3, RefillInterval: 5 * time.Minute, Window: time.Hour},
			VerifyEmail:   ratelimit.Bucket{MaxTokens: 6, RefillInterval: time.Minute, Window: time.Hour},
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			LockoutDuration:   15 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			TTL:             time.Hour,
			MaxActiveTokens: 3,
		},
		EmailVerification: EmailVerificationConfig{
			TTL:             24 * time.Hour,
			MaxActiveTokens: 3,
		},
		OAuth: OAuthConfig{
			StateTTL: 10 * time.Minute,
		},
		URLs: URLConfig{
			BaseURL: "http://localhost:3000",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func validateConfig(cfg Config) error {
	if cfg.Session.TTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	if cfg.Password.MinLength < 8 {
		return errors.New("password min length must be >= 8")
	}
	if cfg.Password.MaxLength > 128 {
		return errors.New("password max length must be <= 128")
	}
	if cfg.Password.MinLength > cfg.Password.MaxLength {
		return errors.New("password min length exceeds max length")
	}
	if !cfg.Lockout.Disabled {
		if cfg.Lockout.MaxFailedAttempts < 1 {
			return errors.New("lockout max failed attempts must be >= 1")
		}
		if cfg.Lockout.LockoutDuration <= 0 {
			return errors.New("lockout duration must be positive")
		}
	}
	if cfg.PasswordReset.TTL <= 0 {
		return errors.New("password reset ttl must be positive")
	}
	if cfg.PasswordReset.MaxActiveTokens < 1 {
		return errors.New("password reset max active tokens must be >= 1")
	}
	if cfg.EmailVerification.TTL <= 0 {
		return errors.New("email verification ttl must be positive")
	}
	if cfg.EmailVerification.MaxActiveTokens < 1 {
		return errors.New("email verification max active tokens must be >= 1")
	}
	if cfg.OAuth.StateTTL <= 0 {
		return errors.New("oauth state ttl must be positive")
	}
	if strings.TrimSpace(cfg.URLs.BaseURL) == "" {
		return errors.New("base url must be set")
	}
	return nil
}

// mergeConfig overlays non-zero override fields on top of the defaults.
// Boolean toggles need no merge logic: their zero value is the default, so
// an untouched toggle in a partial override cannot disable a protection.
func mergeConfig(defaults, override Config) Config {
	out := override

	if out.Session.TTL == 0 {
		out.Session.TTL = defaults.Session.TTL
	}
	if out.Session.CookieName == "" {
		out.Session.CookieName = defaults.Session.CookieName
	}
	if out.Session.CookieSameSite == 0 {
		out.Session.CookieSameSite = defaults.Session.CookieSameSite
	}
	if out.Password.MinLength == 0 {
		out.Password.MinLength = defaults.Password.MinLength
	}
	if out.Password.MaxLength == 0 {
		out.Password.MaxLength = defaults.Password.MaxLength
	}
	if out.Password.Argon2 == (password.Params{}) {
		out.Password.Argon2 = defaults.Password.Argon2
	}
	if out.Password.BreachedCheck.Timeout == 0 {
		out.Password.BreachedCheck.Timeout = defaults.Password.BreachedCheck.Timeout
	}
	if out.RateLimit.Login == (ratelimit.Bucket{}) {
		out.RateLimit.Login = defaults.RateLimit.Login
	}
	if out.RateLimit.Signup == (ratelimit.Bucket{}) {
		out.RateLimit.Signup = defaults.RateLimit.Signup
	}
	if out.RateLimit.PasswordReset == (ratelimit.Bucket{}) {
		out.RateLimit.PasswordReset = defaults.RateLimit.PasswordReset
	}
	if out.RateLimit.VerifyEmail == (ratelimit.Bucket{}) {
		out.RateLimit.VerifyEmail = defaults.RateLimit.VerifyEmail
	}
	if out.Lockout.MaxFailedAttempts == 0 {
		out.Lockout.MaxFailedAttempts = defaults.Lockout.MaxFailedAttempts
	}
	if out.Lockout.LockoutDuration == 0 {
		out.Lockout.LockoutDuration = defaults.Lockout.LockoutDuration
	}
	if out.PasswordReset.TTL == 0 {
		out.PasswordReset.TTL = defaults.PasswordReset.TTL
	}
	if out.PasswordReset.MaxActiveTokens == 0 {
		out.PasswordReset.MaxActiveTokens = defaults.PasswordReset.MaxActiveTokens
	}
	if out.EmailVerification.TTL == 0 {
		out.EmailVerification.TTL = defaults.EmailVerification.TTL
	}
	if out.EmailVerification.MaxActiveTokens == 0 {
		out.EmailVerification.MaxActiveTokens = defaults.EmailVerification.MaxActiveTokens
	}
	if out.OAuth.StateTTL == 0 {
		out.OAuth.StateTTL = defaults.OAuth.StateTTL
	}
	if out.URLs.BaseURL == "" {
		out.URLs.BaseURL = defaults.URLs.BaseURL
	}
	if out.Audit.BufferSize == 0 {
		out.Audit.BufferSize = defaults.Audit.BufferSize
	}
	return out
}
