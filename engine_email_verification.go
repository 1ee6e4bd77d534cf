package fortress

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fortressauth/fortress/ratelimit"
	"github.com/fortressauth/fortress/token"
)

// VerifyEmail redeems a verification token and flips the user's
// emailVerified flag. Tokens are single-use: any terminal outcome, expiry
// and verifier mismatch included, deletes the token.
func (e *Engine) VerifyEmail(ctx context.Context, rawToken string) (User, error) {
	if e == nil || e.repo == nil {
		return User{}, ErrEngineNotReady
	}

	selector, verifier, ok := token.Parse(rawToken)
	if !ok {
		e.metricInc(MetricEmailVerificationFailure)
		return User{}, ErrEmailVerificationInvalid
	}

	t, err := e.repo.FindEmailVerificationTokenBySelector(ctx, selector)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metricInc(MetricEmailVerificationFailure)
			return User{}, ErrEmailVerificationInvalid
		}
		return User{}, fmt.Errorf("%w: find verification token: %v", ErrInternal, err)
	}

	now := e.clock()
	if t.IsExpired(now) {
		if err := e.repo.DeleteEmailVerificationToken(ctx, t.ID); err != nil {
			return User{}, fmt.Errorf("%w: delete verification token: %v", ErrInternal, err)
		}
		e.metricInc(MetricEmailVerificationFailure)
		e.auditAuthEvent(AuditEmailVerifyFailed, t.UserID, "", ClientInfo{}, ErrEmailVerificationExpired)
		return User{}, ErrEmailVerificationExpired
	}

	if !t.MatchesVerifier(verifier) {
		// A correct selector with a wrong verifier is a forgery attempt
		// against this specific token; burn it.
		if err := e.repo.DeleteEmailVerificationToken(ctx, t.ID); err != nil {
			return User{}, fmt.Errorf("%w: delete verification token: %v", ErrInternal, err)
		}
		e.metricInc(MetricEmailVerificationFailure)
		e.auditAuthEvent(AuditEmailVerifyFailed, t.UserID, "", ClientInfo{}, ErrEmailVerificationInvalid)
		return User{}, ErrEmailVerificationInvalid
	}

	user, err := e.repo.FindUserByID(ctx, t.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = e.repo.DeleteEmailVerificationToken(ctx, t.ID)
			e.metricInc(MetricEmailVerificationFailure)
			return User{}, ErrEmailVerificationInvalid
		}
		return User{}, fmt.Errorf("%w: find user: %v", ErrInternal, err)
	}

	verified := user.WithEmailVerified(now)
	if err := e.repo.UpdateUser(ctx, verified); err != nil {
		return User{}, fmt.Errorf("%w: update user: %v", ErrInternal, err)
	}
	if err := e.repo.DeleteEmailVerificationToken(ctx, t.ID); err != nil {
		return User{}, fmt.Errorf("%w: delete verification token: %v", ErrInternal, err)
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.auditAuthEvent(AuditEmailVerified, verified.ID, verified.Email, ClientInfo{}, nil)

	return verified, nil
}

// ResendVerificationEmail issues a fresh verification token for an email
// address. Like RequestPasswordReset it reports success for unknown and
// already-verified addresses alike, so it cannot be used to probe the user
// table.
func (e *Engine) ResendVerificationEmail(ctx context.Context, rawEmail string, client ClientInfo) error {
	if e == nil || e.repo == nil {
		return ErrEngineNotReady
	}

	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return err
	}

	identifier := ratelimit.Identifier(email, client.IPAddress, client.UserAgent)
	if err := e.checkRateLimit(ctx, ratelimit.ActionVerifyEmail, identifier); err != nil {
		return err
	}
	if err := e.consumeRateLimit(ctx, ratelimit.ActionVerifyEmail, identifier); err != nil {
		return err
	}

	user, err := e.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: find user: %v", ErrInternal, err)
	}
	if user.EmailVerified {
		return nil
	}

	now := e.clock()
	if err := e.pruneVerificationTokens(ctx, user.ID, now); err != nil {
		return err
	}

	t, raw, err := NewEmailVerificationToken(user.ID, e.config.EmailVerification.TTL, now)
	if err != nil {
		return fmt.Errorf("%w: mint verification token: %v", ErrInternal, err)
	}
	if err := e.repo.CreateEmailVerificationToken(ctx, t); err != nil {
		return fmt.Errorf("%w: create verification token: %v", ErrInternal, err)
	}

	e.sendVerificationEmail(ctx, email, raw)
	e.metricInc(MetricEmailVerificationSent)

	return nil
}

// pruneVerificationTokens drops expired tokens and evicts the oldest active
// ones until the per-user cap has room for one more.
func (e *Engine) pruneVerificationTokens(ctx context.Context, userID string, now time.Time) error {
	tokens, err := e.repo.ListEmailVerificationTokensByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: list verification tokens: %v", ErrInternal, err)
	}

	active := tokens[:0]
	for _, t := range tokens {
		if t.IsExpired(now) {
			if err := e.repo.DeleteEmailVerificationToken(ctx, t.ID); err != nil {
				return fmt.Errorf("%w: delete verification token: %v", ErrInternal, err)
			}
			continue
		}
		active = append(active, t)
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	for len(active) >= e.config.EmailVerification.MaxActiveTokens {
		if err := e.repo.DeleteEmailVerificationToken(ctx, active[0].ID); err != nil {
			return fmt.Errorf("%w: delete verification token: %v", ErrInternal, err)
		}
		active = active[1:]
	}

	return nil
}
