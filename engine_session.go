package fortress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fortressauth/fortress/token"
)

// ValidateSession resolves a raw session token to its user and session.
// Expired sessions are deleted on detection, so a second call with the same
// token reports the token as invalid rather than expired.
func (e *Engine) ValidateSession(ctx context.Context, rawToken string) (SessionValidation, error) {
	if e == nil || e.repo == nil {
		return SessionValidation{}, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	session, err := e.resolveSession(ctx, rawToken)
	if err != nil {
		e.metricInc(MetricSessionRejected)
		e.emitAudit(AuditSessionRejected, func(ev *AuditEvent) {
			ev.Code = CodeOf(err)
		})
		return SessionValidation{}, err
	}

	now := e.clock()
	if session.IsExpired(now) {
		if err := e.repo.DeleteSession(ctx, session.ID); err != nil {
			return SessionValidation{}, fmt.Errorf("%w: delete expired session: %v", ErrInternal, err)
		}
		e.metricInc(MetricSessionRejected)
		e.emitAudit(AuditSessionRejected, func(ev *AuditEvent) {
			ev.UserID = session.UserID
			ev.Code = CodeOf(ErrSessionExpired)
		})
		return SessionValidation{}, ErrSessionExpired
	}

	user, err := e.repo.FindUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Orphaned session; remove it rather than resurrecting a
			// deleted user.
			_ = e.repo.DeleteSession(ctx, session.ID)
			e.metricInc(MetricSessionRejected)
			return SessionValidation{}, ErrSessionInvalid
		}
		return SessionValidation{}, fmt.Errorf("%w: find user: %v", ErrInternal, err)
	}

	e.metricInc(MetricSessionValidated)

	return SessionValidation{User: user, Session: session}, nil
}

// SignOut terminates the session identified by rawToken. Unknown or
// malformed tokens report ErrSessionInvalid; terminating an already valid
// session always succeeds.
func (e *Engine) SignOut(ctx context.Context, rawToken string) error {
	if e == nil || e.repo == nil {
		return ErrEngineNotReady
	}

	session, err := e.resolveSession(ctx, rawToken)
	if err != nil {
		return err
	}

	if err := e.repo.DeleteSession(ctx, session.ID); err != nil {
		return fmt.Errorf("%w: delete session: %v", ErrInternal, err)
	}

	e.metricInc(MetricSignOut)
	e.emitAudit(AuditSignOut, func(ev *AuditEvent) {
		ev.UserID = session.UserID
	})

	return nil
}

// SignOutAll terminates every session belonging to the authenticated user
// behind rawToken, the presented session included.
func (e *Engine) SignOutAll(ctx context.Context, rawToken string) error {
	if e == nil || e.repo == nil {
		return ErrEngineNotReady
	}

	session, err := e.resolveSession(ctx, rawToken)
	if err != nil {
		return err
	}

	if err := e.repo.DeleteSessionsByUserID(ctx, session.UserID); err != nil {
		return fmt.Errorf("%w: delete sessions: %v", ErrInternal, err)
	}

	e.metricInc(MetricSignOutAll)
	e.emitAudit(AuditSignOutAll, func(ev *AuditEvent) {
		ev.UserID = session.UserID
	})

	return nil
}

// resolveSession parses the raw token, loads the session by selector and
// verifies the split-token hash. Malformed input, unknown selectors and
// verifier mismatches all collapse into ErrSessionInvalid.
func (e *Engine) resolveSession(ctx context.Context, rawToken string) (Session, error) {
	selector, verifier, ok := token.Parse(rawToken)
	if !ok {
		return Session{}, ErrSessionInvalid
	}

	session, err := e.repo.FindSessionBySelector(ctx, selector)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrSessionInvalid
		}
		return Session{}, fmt.Errorf("%w: find session: %v", ErrInternal, err)
	}

	if !session.MatchesVerifier(verifier) {
		return Session{}, ErrSessionInvalid
	}

	return session, nil
}
