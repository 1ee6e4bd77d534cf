package fortress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fortressauth/fortress/ratelimit"
)

// SignIn authenticates an email/password pair and mints a session. One
// rate-limit token is spent on every attempt before credentials are checked,
// and "user not found" pays a dummy hash-verify cycle so its latency matches
// "wrong password".
func (e *Engine) SignIn(ctx context.Context, in SignInInput) (SignInResult, error) {
	if e == nil || e.repo == nil {
		return SignInResult{}, ErrEngineNotReady
	}

	email, err := NormalizeEmail(in.Email)
	if err != nil {
		e.metricInc(MetricSignInFailure)
		return SignInResult{}, err
	}
	if err := ValidatePasswordInput(in.Password, e.config.Password.MaxLength); err != nil {
		e.metricInc(MetricSignInFailure)
		return SignInResult{}, err
	}

	identifier := ratelimit.Identifier(email, in.Client.IPAddress, in.Client.UserAgent)
	if err := e.checkRateLimit(ctx, ratelimit.ActionLogin, identifier); err != nil {
		if errors.Is(err, ErrRateLimitExceeded) {
			e.metricInc(MetricSignInRateLimited)
		}
		return SignInResult{}, err
	}
	if err := e.consumeRateLimit(ctx, ratelimit.ActionLogin, identifier); err != nil {
		return SignInResult{}, err
	}

	now := e.clock()

	user, err := e.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Equalize latency with the wrong-password path.
			e.hasher.DummyVerify(in.Password)
			e.recordAttempt(ctx, "", email, in.Client, false)
			e.metricInc(MetricSignInFailure)
			e.auditAuthEvent(AuditSignInFailed, "", email, in.Client, ErrInvalidCredentials)
			return SignInResult{}, ErrInvalidCredentials
		}
		return SignInResult{}, fmt.Errorf("%w: find user: %v", ErrInternal, err)
	}

	// Locked accounts are rejected before the account lookup so a locked
	// user cannot be used as a password oracle.
	if !e.config.Lockout.Disabled && user.IsLocked(now) {
		e.recordAttempt(ctx, user.ID, email, in.Client, false)
		e.metricInc(MetricSignInFailure)
		e.auditAuthEvent(AuditSignInFailed, user.ID, email, in.Client, ErrAccountLocked)
		return SignInResult{}, ErrAccountLocked
	}

	account, err := e.repo.FindEmailAccountByUserID(ctx, user.ID)
	if err != nil || account.PasswordHash == "" {
		if err != nil && !errors.Is(err, ErrNotFound) {
			return SignInResult{}, fmt.Errorf("%w: find account: %v", ErrInternal, err)
		}
		// OAuth-only user; same failure shape and timing as a bad password.
		e.hasher.DummyVerify(in.Password)
		e.recordAttempt(ctx, user.ID, email, in.Client, false)
		e.metricInc(MetricSignInFailure)
		e.auditAuthEvent(AuditSignInFailed, user.ID, email, in.Client, ErrInvalidCredentials)
		return SignInResult{}, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(account.PasswordHash, in.Password)
	if err != nil || !ok {
		e.applyLockoutPolicy(ctx, user, email, in.Client, now)
		e.recordAttempt(ctx, user.ID, email, in.Client, false)
		e.metricInc(MetricSignInFailure)
		e.auditAuthEvent(AuditSignInFailed, user.ID, email, in.Client, ErrInvalidCredentials)
		return SignInResult{}, ErrInvalidCredentials
	}

	if !user.EmailVerified {
		e.metricInc(MetricSignInFailure)
		e.auditAuthEvent(AuditSignInFailed, user.ID, email, in.Client, ErrEmailNotVerified)
		return SignInResult{}, ErrEmailNotVerified
	}

	// Cost upgrade is best-effort and must not block a successful sign-in.
	if needs, err := e.hasher.NeedsRehash(account.PasswordHash); err == nil && needs {
		if newHash, err := e.hasher.Hash(in.Password); err == nil {
			_ = e.repo.UpdateEmailAccountPassword(ctx, account.ID, newHash)
		}
	}

	session, rawSession, err := NewSession(user.ID, e.config.Session.TTL, in.Client, now)
	if err != nil {
		return SignInResult{}, fmt.Errorf("%w: mint session: %v", ErrInternal, err)
	}
	if err := e.repo.CreateSession(ctx, session); err != nil {
		return SignInResult{}, fmt.Errorf("%w: create session: %v", ErrInternal, err)
	}

	e.recordAttempt(ctx, user.ID, email, in.Client, true)
	e.metricInc(MetricSignInSuccess)
	e.metricInc(MetricSessionCreated)
	e.auditAuthEvent(AuditSignIn, user.ID, email, in.Client, nil)

	return SignInResult{User: user, SessionToken: rawSession}, nil
}

// applyLockoutPolicy runs after a failed password verification, before the
// failure itself is recorded: the current failure is the +1 against the
// stored count. The triggering attempt still reads as invalid credentials;
// only subsequent attempts observe the lock. Losing at most one counted
// failure under a concurrent race is acceptable.
func (e *Engine) applyLockoutPolicy(ctx context.Context, user User, email string, client ClientInfo, now time.Time) {
	if e.config.Lockout.Disabled {
		return
	}

	failures, err := e.repo.CountRecentFailedAttempts(ctx, email, e.config.Lockout.LockoutDuration)
	if err != nil {
		return
	}
	if failures+1 < e.config.Lockout.MaxFailedAttempts {
		return
	}

	locked := user.WithLock(now.Add(e.config.Lockout.LockoutDuration), now)
	if err := e.repo.UpdateUser(ctx, locked); err != nil {
		return
	}

	e.metricInc(MetricAccountLocked)
	e.auditAuthEvent(AuditAccountLocked, user.ID, email, client, ErrAccountLocked)
}
