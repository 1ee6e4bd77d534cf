package fortress

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fortressauth/fortress/password"
	"github.com/fortressauth/fortress/ratelimit"
)

// Engine is the authentication core. It owns no transport: callers feed it
// normalized inputs plus ClientInfo and map the sentinel errors it returns
// onto their own wire format via CodeOf.
//
// All exported methods are safe for concurrent use once Build returns.
type Engine struct {
	config  Config
	repo    Repository
	email   EmailProvider
	oauth   map[string]OAuthProvider
	limiter ratelimit.Limiter
	hasher  *password.Hasher
	breach  BreachedPasswordChecker
	audit   *auditDispatcher
	metrics *Metrics

	// enumerationDelay pads the password-reset miss path; stubbed by
	// tests, nil means the default randomized sleep.
	enumerationDelay func(ctx context.Context) error

	// now is stubbed by tests; production engines use time.Now.
	now func() time.Time
}

// Close drains the audit dispatcher. The engine must not be used after.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.droppedCount()
}

// MetricsSnapshot returns a point-in-time copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

func (e *Engine) emitAudit(t AuditEventType, mutate func(*AuditEvent)) {
	if e.audit == nil {
		return
	}
	event := newAuditEvent(t, e.clock())
	if mutate != nil {
		mutate(&event)
	}
	e.audit.emit(event)
}

func (e *Engine) auditAuthEvent(t AuditEventType, userID, email string, client ClientInfo, failure error) {
	e.emitAudit(t, func(ev *AuditEvent) {
		ev.UserID = userID
		ev.Email = email
		ev.IPAddress = client.IPAddress
		ev.UserAgent = client.UserAgent
		if failure != nil {
			ev.Code = CodeOf(failure)
		}
	})
}

// checkRateLimit probes the configured bucket without consuming. A limiter
// backend failure closes the gate rather than opening it.
func (e *Engine) checkRateLimit(ctx context.Context, action ratelimit.Action, identifier string) error {
	if e.limiter == nil || e.config.RateLimit.Disabled {
		return nil
	}
	decision, err := e.limiter.Check(ctx, identifier, action)
	if err != nil {
		return fmt.Errorf("%w: rate limit check: %v", ErrInternal, err)
	}
	if !decision.Allowed {
		e.metricInc(MetricRateLimitHit)
		e.emitAudit(AuditRateLimited, func(ev *AuditEvent) {
			ev.Code = string(action)
		})
		return ErrRateLimitExceeded
	}
	return nil
}

// consumeRateLimit spends one token. Attempts are counted whether or not
// they later succeed, so a burst of bad credentials cannot probe for free.
func (e *Engine) consumeRateLimit(ctx context.Context, action ratelimit.Action, identifier string) error {
	if e.limiter == nil || e.config.RateLimit.Disabled {
		return nil
	}
	if err := e.limiter.Consume(ctx, identifier, action); err != nil {
		return fmt.Errorf("%w: rate limit consume: %v", ErrInternal, err)
	}
	return nil
}

func (e *Engine) verificationLink(rawToken string) string {
	return e.buildLink("/verify-email", rawToken)
}

func (e *Engine) resetLink(rawToken string) string {
	return e.buildLink("/reset-password", rawToken)
}

func (e *Engine) buildLink(path, rawToken string) string {
	base := strings.TrimRight(e.config.URLs.BaseURL, "/")
	return base + path + "?token=" + url.QueryEscape(rawToken)
}

// recordAttempt persists a login attempt row. Best effort: audit history
// must never turn a decided sign-in into an error.
func (e *Engine) recordAttempt(ctx context.Context, userID, email string, client ClientInfo, success bool) {
	attempt := NewLoginAttempt(userID, email, client.IPAddress, success, e.clock())
	_ = e.repo.RecordLoginAttempt(ctx, attempt)
}
