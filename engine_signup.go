package fortress

import (
	"context"
	"errors"
	"fmt"

	"github.com/fortressauth/fortress/ratelimit"
)

// SignUp registers a new email/password user. On success the user holds an
// unverified email, a password account, an active session and a pending
// verification token created in one repository transaction; the verification
// email is sent after commit and its failure does not roll anything back.
func (e *Engine) SignUp(ctx context.Context, in SignUpInput) (SignUpResult, error) {
	if e == nil || e.repo == nil {
		return SignUpResult{}, ErrEngineNotReady
	}

	email, err := NormalizeEmail(in.Email)
	if err != nil {
		e.metricInc(MetricSignUpRejected)
		return SignUpResult{}, err
	}
	if err := ValidatePasswordInput(in.Password, e.config.Password.MaxLength); err != nil {
		e.metricInc(MetricSignUpRejected)
		return SignUpResult{}, err
	}

	identifier := ratelimit.Identifier(email, in.Client.IPAddress, in.Client.UserAgent)
	if err := e.checkRateLimit(ctx, ratelimit.ActionSignup, identifier); err != nil {
		if errors.Is(err, ErrRateLimitExceeded) {
			e.metricInc(MetricSignUpRateLimited)
		}
		return SignUpResult{}, err
	}

	if err := e.checkPasswordPolicy(ctx, in.Password); err != nil {
		e.metricInc(MetricSignUpRejected)
		e.auditAuthEvent(AuditSignUpFailed, "", email, in.Client, err)
		return SignUpResult{}, err
	}

	// Validation passed; the attempt now counts against the bucket even if
	// the email turns out to be taken.
	if err := e.consumeRateLimit(ctx, ratelimit.ActionSignup, identifier); err != nil {
		return SignUpResult{}, err
	}

	if _, err := e.repo.FindUserByEmail(ctx, email); err == nil {
		e.metricInc(MetricSignUpDuplicate)
		e.auditAuthEvent(AuditSignUpFailed, "", email, in.Client, ErrEmailExists)
		return SignUpResult{}, ErrEmailExists
	} else if !errors.Is(err, ErrNotFound) {
		return SignUpResult{}, fmt.Errorf("%w: find user: %v", ErrInternal, err)
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return SignUpResult{}, fmt.Errorf("%w: hash password: %v", ErrInternal, err)
	}

	now := e.clock()
	user := NewUser(email, now)
	account := NewEmailAccount(user.ID, hash, now)
	session, rawSession, err := NewSession(user.ID, e.config.Session.TTL, in.Client, now)
	if err != nil {
		return SignUpResult{}, fmt.Errorf("%w: mint session: %v", ErrInternal, err)
	}
	verification, rawVerification, err := NewEmailVerificationToken(user.ID, e.config.EmailVerification.TTL, now)
	if err != nil {
		return SignUpResult{}, fmt.Errorf("%w: mint verification token: %v", ErrInternal, err)
	}

	err = e.repo.Transaction(ctx, func(tx Repository) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		if err := tx.CreateAccount(ctx, account); err != nil {
			return err
		}
		if err := tx.CreateSession(ctx, session); err != nil {
			return err
		}
		return tx.CreateEmailVerificationToken(ctx, verification)
	})
	if err != nil {
		// The unique-email constraint is the commit point against
		// concurrent registration of the same address.
		if errors.Is(err, ErrDuplicate) {
			e.metricInc(MetricSignUpDuplicate)
			e.auditAuthEvent(AuditSignUpFailed, "", email, in.Client, ErrEmailExists)
			return SignUpResult{}, ErrEmailExists
		}
		return SignUpResult{}, fmt.Errorf("%w: sign up transaction: %v", ErrInternal, err)
	}

	e.sendVerificationEmail(ctx, email, rawVerification)

	e.metricInc(MetricSignUpSuccess)
	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricEmailVerificationSent)
	e.auditAuthEvent(AuditSignUp, user.ID, email, in.Client, nil)

	return SignUpResult{User: user, SessionToken: rawSession}, nil
}

// checkPasswordPolicy enforces the strength policy: minimum length first,
// then the optional breach-corpus lookup. A breach backend failure fails
// open; unavailable telemetry must not block registration.
func (e *Engine) checkPasswordPolicy(ctx context.Context, plaintext string) error {
	if len(plaintext) < e.config.Password.MinLength {
		return ErrPasswordTooWeak
	}

	if e.config.Password.BreachedCheck.Enabled && e.breach != nil {
		checkCtx := ctx
		if timeout := e.config.Password.BreachedCheck.Timeout; timeout > 0 {
			var cancel context.CancelFunc
			checkCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		breached, err := e.breach.IsBreached(checkCtx, plaintext)
		if err == nil && breached {
			e.metricInc(MetricPasswordBreachedRejected)
			return ErrPasswordBreached
		}
	}

	return nil
}

func (e *Engine) sendVerificationEmail(ctx context.Context, email, rawToken string) {
	if e.email == nil {
		return
	}
	_ = e.email.SendVerificationEmail(ctx, email, e.verificationLink(rawToken))
}
