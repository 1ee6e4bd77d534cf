package fortress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// OAuthAuthorize begins a provider round-trip: it mints a single-use state
// with a PKCE verifier, persists it, and returns the provider authorization
// URL the host should redirect the browser to.
func (e *Engine) OAuthAuthorize(ctx context.Context, providerID string) (OAuthAuthorization, error) {
	if e == nil || e.repo == nil {
		return OAuthAuthorization{}, ErrEngineNotReady
	}

	provider, ok := e.oauth[providerID]
	if !ok {
		return OAuthAuthorization{}, ErrOAuthProviderUnknown
	}

	now := e.clock()
	state, err := NewOAuthState(providerID, e.oauthRedirectURI(providerID), e.config.OAuth.StateTTL, now)
	if err != nil {
		return OAuthAuthorization{}, fmt.Errorf("%w: mint oauth state: %v", ErrInternal, err)
	}

	authURL, err := provider.AuthorizationURL(AuthorizationRequest{
		State:         state.State,
		CodeChallenge: state.CodeChallenge(),
		RedirectURI:   state.RedirectURI,
	})
	if err != nil {
		return OAuthAuthorization{}, fmt.Errorf("%w: build authorization url: %v", ErrInternal, err)
	}

	if err := e.repo.CreateOAuthState(ctx, state); err != nil {
		return OAuthAuthorization{}, fmt.Errorf("%w: create oauth state: %v", ErrInternal, err)
	}

	e.metricInc(MetricOAuthAuthorize)
	e.emitAudit(AuditOAuthAuthorize, func(ev *AuditEvent) {
		ev.ProviderID = providerID
	})

	return OAuthAuthorization{URL: authURL, State: state.State}, nil
}

// OAuthCallback completes a provider round-trip. The stored state is
// single-use and is deleted on every path through here, matched or not.
// Account resolution order: an account already linked to the provider
// identity wins; otherwise a user with the same email gets a new linked
// account; otherwise a fresh user is created.
func (e *Engine) OAuthCallback(ctx context.Context, providerID, code, state string, client ClientInfo) (SignInResult, error) {
	if e == nil || e.repo == nil {
		return SignInResult{}, ErrEngineNotReady
	}

	provider, ok := e.oauth[providerID]
	if !ok {
		return SignInResult{}, ErrOAuthProviderUnknown
	}

	stored, err := e.repo.FindOAuthStateByState(ctx, state)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.oauthFailed(providerID, client, ErrOAuthStateMismatch)
			return SignInResult{}, ErrOAuthStateMismatch
		}
		return SignInResult{}, fmt.Errorf("%w: find oauth state: %v", ErrInternal, err)
	}

	// Single use from this point regardless of outcome.
	if err := e.repo.DeleteOAuthState(ctx, stored.ID); err != nil {
		return SignInResult{}, fmt.Errorf("%w: delete oauth state: %v", ErrInternal, err)
	}

	now := e.clock()
	if stored.ProviderID != providerID || stored.IsExpired(now) {
		e.oauthFailed(providerID, client, ErrOAuthStateMismatch)
		return SignInResult{}, ErrOAuthStateMismatch
	}

	tokens, err := provider.ExchangeCode(ctx, code, stored.CodeVerifier)
	if err != nil {
		e.oauthFailed(providerID, client, ErrOAuthAuthFailed)
		return SignInResult{}, ErrOAuthAuthFailed
	}

	info, err := provider.FetchUserInfo(ctx, tokens.AccessToken)
	if err != nil {
		e.oauthFailed(providerID, client, ErrOAuthUserInfoFailed)
		return SignInResult{}, ErrOAuthUserInfoFailed
	}

	user, err := e.resolveOAuthUser(ctx, providerID, info, now)
	if err != nil {
		return SignInResult{}, err
	}

	session, rawSession, err := NewSession(user.ID, e.config.Session.TTL, client, now)
	if err != nil {
		return SignInResult{}, fmt.Errorf("%w: mint session: %v", ErrInternal, err)
	}
	if err := e.repo.CreateSession(ctx, session); err != nil {
		return SignInResult{}, fmt.Errorf("%w: create session: %v", ErrInternal, err)
	}

	e.recordAttempt(ctx, user.ID, user.Email, client, true)
	e.metricInc(MetricOAuthSignIn)
	e.metricInc(MetricSessionCreated)
	e.auditAuthEvent(AuditOAuthSignIn, user.ID, user.Email, client, nil)

	return SignInResult{User: user, SessionToken: rawSession}, nil
}

func (e *Engine) resolveOAuthUser(ctx context.Context, providerID string, info OAuthUserInfo, now time.Time) (User, error) {
	account, err := e.repo.FindAccountByProvider(ctx, providerID, info.ID)
	if err == nil {
		user, err := e.repo.FindUserByID(ctx, account.UserID)
		if err != nil {
			return User{}, fmt.Errorf("%w: find linked user: %v", ErrInternal, err)
		}
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("%w: find account: %v", ErrInternal, err)
	}

	email, err := NormalizeEmail(info.Email)
	if err != nil {
		return User{}, ErrOAuthUserInfoFailed
	}

	user, err := e.repo.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		// Existing user; link the provider identity.
		if err := e.repo.CreateAccount(ctx, NewOAuthAccount(user.ID, providerID, info.ID, now)); err != nil {
			return User{}, fmt.Errorf("%w: link account: %v", ErrInternal, err)
		}
		e.metricInc(MetricOAuthAccountLinked)
		return user, nil
	case errors.Is(err, ErrNotFound):
		user = NewUser(email, now)
		if info.EmailVerified {
			user = user.WithEmailVerified(now)
		}
		account := NewOAuthAccount(user.ID, providerID, info.ID, now)
		err := e.repo.Transaction(ctx, func(tx Repository) error {
			if err := tx.CreateUser(ctx, user); err != nil {
				return err
			}
			return tx.CreateAccount(ctx, account)
		})
		if err != nil {
			return User{}, fmt.Errorf("%w: create oauth user: %v", ErrInternal, err)
		}
		return user, nil
	default:
		return User{}, fmt.Errorf("%w: find user: %v", ErrInternal, err)
	}
}

func (e *Engine) oauthFailed(providerID string, client ClientInfo, cause error) {
	e.metricInc(MetricOAuthFailure)
	e.emitAudit(AuditOAuthFailed, func(ev *AuditEvent) {
		ev.ProviderID = providerID
		ev.IPAddress = client.IPAddress
		ev.UserAgent = client.UserAgent
		ev.Code = CodeOf(cause)
	})
}

func (e *Engine) oauthRedirectURI(providerID string) string {
	return strings.TrimRight(e.config.URLs.BaseURL, "/") + "/oauth/callback/" + providerID
}
