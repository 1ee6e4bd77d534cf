package fortress

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/fortressauth/fortress/ratelimit"
	"github.com/fortressauth/fortress/token"
)

// RequestPasswordReset issues a reset token and mails the reset link. The
// call reports success whether or not the email is registered; an attacker
// cannot distinguish the two outcomes from the response.
func (e *Engine) RequestPasswordReset(ctx context.Context, rawEmail string, client ClientInfo) error {
	if e == nil || e.repo == nil {
		return ErrEngineNotReady
	}

	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return err
	}

	identifier := ratelimit.Identifier(email, client.IPAddress, client.UserAgent)
	if err := e.checkRateLimit(ctx, ratelimit.ActionPasswordReset, identifier); err != nil {
		return err
	}
	if err := e.consumeRateLimit(ctx, ratelimit.ActionPasswordReset, identifier); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.auditAuthEvent(AuditPasswordResetRequest, "", email, client, nil)

	user, err := e.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// An instant reply would distinguish unknown emails from the
			// token minting and email send a registered one pays for.
			return e.sleepEnumerationDelay(ctx)
		}
		return fmt.Errorf("%w: find user: %v", ErrInternal, err)
	}

	now := e.clock()
	if err := e.pruneResetTokens(ctx, user.ID, now); err != nil {
		return err
	}

	t, raw, err := NewPasswordResetToken(user.ID, e.config.PasswordReset.TTL, now)
	if err != nil {
		return fmt.Errorf("%w: mint reset token: %v", ErrInternal, err)
	}
	if err := e.repo.CreatePasswordResetToken(ctx, t); err != nil {
		return fmt.Errorf("%w: create reset token: %v", ErrInternal, err)
	}

	if e.email != nil {
		_ = e.email.SendPasswordResetEmail(ctx, email, e.resetLink(raw))
	}

	return nil
}

// ResetPassword redeems a reset token and replaces the user's password.
// Success deletes the token and every session belonging to the user, forcing
// re-authentication everywhere. A structurally valid redemption that fails
// the strength policy also burns the token.
func (e *Engine) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if e == nil || e.repo == nil {
		return ErrEngineNotReady
	}

	// First gate: the caller's network identity, before the token names a
	// user. Consumed once the token is structurally valid, so every
	// guessable attempt from one client drains the same bucket.
	clientIdentifier := ratelimit.Identifier("", in.Client.IPAddress, in.Client.UserAgent)
	if err := e.checkRateLimit(ctx, ratelimit.ActionPasswordReset, clientIdentifier); err != nil {
		return err
	}

	selector, verifier, ok := token.Parse(in.Token)
	if !ok {
		e.metricInc(MetricPasswordResetFailure)
		return ErrPasswordResetInvalid
	}

	if err := e.consumeRateLimit(ctx, ratelimit.ActionPasswordReset, clientIdentifier); err != nil {
		return err
	}

	t, err := e.repo.FindPasswordResetTokenBySelector(ctx, selector)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			return ErrPasswordResetInvalid
		}
		return fmt.Errorf("%w: find reset token: %v", ErrInternal, err)
	}

	now := e.clock()
	if t.IsExpired(now) {
		if err := e.repo.DeletePasswordResetToken(ctx, t.ID); err != nil {
			return fmt.Errorf("%w: delete reset token: %v", ErrInternal, err)
		}
		e.metricInc(MetricPasswordResetFailure)
		e.auditAuthEvent(AuditPasswordResetFailed, t.UserID, "", in.Client, ErrPasswordResetExpired)
		return ErrPasswordResetExpired
	}

	if !t.MatchesVerifier(verifier) {
		if err := e.repo.DeletePasswordResetToken(ctx, t.ID); err != nil {
			return fmt.Errorf("%w: delete reset token: %v", ErrInternal, err)
		}
		e.metricInc(MetricPasswordResetFailure)
		e.auditAuthEvent(AuditPasswordResetFailed, t.UserID, "", in.Client, ErrPasswordResetInvalid)
		return ErrPasswordResetInvalid
	}

	user, err := e.repo.FindUserByID(ctx, t.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = e.repo.DeletePasswordResetToken(ctx, t.ID)
			e.metricInc(MetricPasswordResetFailure)
			return ErrPasswordResetInvalid
		}
		return fmt.Errorf("%w: find user: %v", ErrInternal, err)
	}

	// Second gate, now scoped to the account under attack.
	userIdentifier := ratelimit.Identifier(user.Email, in.Client.IPAddress, in.Client.UserAgent)
	if err := e.checkRateLimit(ctx, ratelimit.ActionPasswordReset, userIdentifier); err != nil {
		return err
	}
	if err := e.consumeRateLimit(ctx, ratelimit.ActionPasswordReset, userIdentifier); err != nil {
		return err
	}

	if err := ValidatePasswordInput(in.NewPassword, e.config.Password.MaxLength); err != nil {
		// The token was genuinely redeemed even though the new password
		// is unusable; it stays single-use.
		_ = e.repo.DeletePasswordResetToken(ctx, t.ID)
		e.metricInc(MetricPasswordResetFailure)
		return err
	}
	if err := e.checkPasswordPolicy(ctx, in.NewPassword); err != nil {
		_ = e.repo.DeletePasswordResetToken(ctx, t.ID)
		e.metricInc(MetricPasswordResetFailure)
		e.auditAuthEvent(AuditPasswordResetFailed, user.ID, user.Email, in.Client, err)
		return err
	}

	account, err := e.repo.FindEmailAccountByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = e.repo.DeletePasswordResetToken(ctx, t.ID)
			e.metricInc(MetricPasswordResetFailure)
			return ErrPasswordResetInvalid
		}
		return fmt.Errorf("%w: find account: %v", ErrInternal, err)
	}

	hash, err := e.hasher.Hash(in.NewPassword)
	if err != nil {
		return fmt.Errorf("%w: hash password: %v", ErrInternal, err)
	}
	if err := e.repo.UpdateEmailAccountPassword(ctx, account.ID, hash); err != nil {
		return fmt.Errorf("%w: update password: %v", ErrInternal, err)
	}

	if err := e.repo.DeletePasswordResetToken(ctx, t.ID); err != nil {
		return fmt.Errorf("%w: delete reset token: %v", ErrInternal, err)
	}
	if err := e.repo.DeleteSessionsByUserID(ctx, user.ID); err != nil {
		return fmt.Errorf("%w: delete sessions: %v", ErrInternal, err)
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.auditAuthEvent(AuditPasswordResetComplete, user.ID, user.Email, in.Client, nil)

	return nil
}

// pruneResetTokens drops expired tokens and evicts the oldest active ones
// until the per-user cap has room for one more.
func (e *Engine) pruneResetTokens(ctx context.Context, userID string, now time.Time) error {
	tokens, err := e.repo.ListPasswordResetTokensByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: list reset tokens: %v", ErrInternal, err)
	}

	active := tokens[:0]
	for _, t := range tokens {
		if t.IsExpired(now) {
			if err := e.repo.DeletePasswordResetToken(ctx, t.ID); err != nil {
				return fmt.Errorf("%w: delete reset token: %v", ErrInternal, err)
			}
			continue
		}
		active = append(active, t)
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	for len(active) >= e.config.PasswordReset.MaxActiveTokens {
		if err := e.repo.DeletePasswordResetToken(ctx, active[0].ID); err != nil {
			return fmt.Errorf("%w: delete reset token: %v", ErrInternal, err)
		}
		active = active[1:]
	}

	return nil
}

func (e *Engine) sleepEnumerationDelay(ctx context.Context) error {
	if e.enumerationDelay != nil {
		return e.enumerationDelay(ctx)
	}
	return sleepPasswordResetEnumerationDelay(ctx)
}

// sleepPasswordResetEnumerationDelay sleeps 20-40ms so the unknown-email
// reply lands in the same latency band as a real token mint and email send.
func sleepPasswordResetEnumerationDelay(ctx context.Context) error {
	const minMs, maxMs = 20, 40

	n, err := rand.Int(rand.Reader, big.NewInt(maxMs-minMs+1))
	if err != nil {
		return fmt.Errorf("%w: enumeration delay: %v", ErrInternal, err)
	}

	timer := time.NewTimer(time.Duration(minMs+n.Int64()) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
