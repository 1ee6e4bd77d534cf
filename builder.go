package fortress

import (
	"errors"
	"time"

	"github.com/fortressauth/fortress/password"
	"github.com/fortressauth/fortress/ratelimit"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Only a Repository is mandatory; every other
// port degrades to a safe default (in-memory rate limiter, no-op audit sink,
// no email delivery, no OAuth providers).
type Builder struct {
	config Config

	repo    Repository
	email   EmailProvider
	oauth   map[string]OAuthProvider
	limiter ratelimit.Limiter
	redis   redis.UniversalClient
	breach  BreachedPasswordChecker
	sink    AuditSink
	clock   func() time.Time

	// Toggle overrides live outside config so builder calls stay
	// order-independent: WithConfig replaces b.config wholesale and must
	// not discard an earlier WithMetricsEnabled or WithAuditSink.
	metricsEnabled    *bool
	latencyHistograms *bool

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		oauth:  map[string]OAuthProvider{},
	}
}

// WithConfig overlays cfg on the defaults. Zero-valued fields keep their
// default, so a partial override never disables rate limiting, lockout or
// the other protections it does not mention.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = mergeConfig(defaultConfig(), cfg)
	return b
}

func (b *Builder) WithRepository(repo Repository) *Builder {
	b.repo = repo
	return b
}

func (b *Builder) WithEmailProvider(p EmailProvider) *Builder {
	b.email = p
	return b
}

// WithOAuthProvider registers a provider under its identifier, e.g.
// "google" or "github". Repeated calls with the same id overwrite.
func (b *Builder) WithOAuthProvider(id string, p OAuthProvider) *Builder {
	if b.oauth == nil {
		b.oauth = map[string]OAuthProvider{}
	}
	b.oauth[id] = p
	return b
}

// WithRateLimiter replaces the default in-memory limiter. Takes precedence
// over WithRedis when both are set.
func (b *Builder) WithRateLimiter(l ratelimit.Limiter) *Builder {
	b.limiter = l
	return b
}

// WithRedis backs the rate limiter with Redis so limits hold across
// processes.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithBreachedPasswordChecker(c BreachedPasswordChecker) *Builder {
	b.breach = c
	return b
}

// WithAuditSink wires the audit dispatcher to sink. Providing a sink
// enables auditing regardless of call order relative to WithConfig.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.metricsEnabled = &enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.latencyHistograms = &enabled
	return b
}

// withClock is test-only; production engines read time.Now.
func (b *Builder) withClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if b.sink != nil {
		cfg.Audit.Enabled = true
	}
	if b.metricsEnabled != nil {
		cfg.Metrics.Enabled = *b.metricsEnabled
	}
	if b.latencyHistograms != nil {
		cfg.Metrics.EnableLatencyHistograms = *b.latencyHistograms
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	if b.repo == nil {
		return nil, errors.New("repository required")
	}

	hasher, err := password.NewHasher(cfg.Password.Argon2)
	if err != nil {
		return nil, err
	}

	limiter := b.limiter
	if limiter == nil {
		if b.redis != nil {
			limiter = ratelimit.NewRedisLimiter(b.redis, cfg.RateLimit.buckets(), "")
		} else {
			limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.buckets())
		}
	}

	engine := &Engine{
		config:  cfg,
		repo:    b.repo,
		email:   b.email,
		oauth:   make(map[string]OAuthProvider, len(b.oauth)),
		limiter: limiter,
		hasher:  hasher,
		breach:  b.breach,
		metrics: NewMetrics(cfg.Metrics),
		now:     b.clock,
	}
	for id, p := range b.oauth {
		engine.oauth[id] = p
	}

	if cfg.Audit.Enabled {
		sink := b.sink
		if sink == nil {
			sink = NoOpSink{}
		}
		engine.audit = newAuditDispatcher(sink, cfg.Audit.BufferSize, !cfg.Audit.BlockIfFull)
	}

	b.built = true

	return engine, nil
}
