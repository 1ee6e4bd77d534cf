package fortress

import "errors"

// Sentinel errors for every expected, recoverable outcome. Use-case methods
// return these directly; hosts match with errors.Is and translate via CodeOf.
// Unexpected port failures are wrapped around ErrInternal and never mapped to
// a more specific code.
var (
	// ErrInvalidEmail rejects structurally invalid or oversized email input.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword rejects structurally invalid password input
	// (control characters, oversized).
	ErrInvalidPassword = errors.New("invalid password")
	// ErrEmailExists signals a sign-up against an already registered email.
	ErrEmailExists = errors.New("email already registered")
	// ErrPasswordTooWeak signals a password below the strength policy.
	ErrPasswordTooWeak = errors.New("password too weak")
	// ErrPasswordBreached signals a password found in a known-breach corpus.
	ErrPasswordBreached = errors.New("password found in breach corpus")
	// ErrInvalidCredentials covers unknown user, missing password account and
	// wrong password alike; it deliberately does not say which.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked signals a sign-in against a locked account.
	ErrAccountLocked = errors.New("account locked")
	// ErrEmailNotVerified signals a sign-in before email verification.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrSessionInvalid covers malformed, unknown and mismatched session tokens.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionExpired signals a session past its expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrEmailVerificationInvalid covers malformed, unknown and mismatched
	// verification tokens.
	ErrEmailVerificationInvalid = errors.New("email verification token invalid")
	// ErrEmailVerificationExpired signals an expired verification token.
	ErrEmailVerificationExpired = errors.New("email verification token expired")
	// ErrPasswordResetInvalid covers malformed, unknown and mismatched reset
	// tokens.
	ErrPasswordResetInvalid = errors.New("password reset token invalid")
	// ErrPasswordResetExpired signals an expired reset token.
	ErrPasswordResetExpired = errors.New("password reset token expired")
	// ErrRateLimitExceeded signals a denied admission-control check.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrOAuthStateMismatch signals an unknown or expired OAuth state.
	ErrOAuthStateMismatch = errors.New("oauth state mismatch")
	// ErrOAuthAuthFailed signals a failed code exchange with the provider.
	ErrOAuthAuthFailed = errors.New("oauth authorization failed")
	// ErrOAuthUserInfoFailed signals a failed user-info fetch.
	ErrOAuthUserInfoFailed = errors.New("oauth user info fetch failed")
	// ErrOAuthProviderUnknown signals a provider ID with no registered port.
	ErrOAuthProviderUnknown = errors.New("unknown oauth provider")
	// ErrInternal wraps unexpected port failures.
	ErrInternal = errors.New("internal error")
	// ErrEngineNotReady signals use of an engine missing required ports.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// CodeOf maps an engine error to its stable wire code for the host
// transport layer. Unrecognized errors map to INTERNAL_ERROR.
func CodeOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidEmail):
		return "INVALID_EMAIL"
	case errors.Is(err, ErrInvalidPassword):
		return "INVALID_PASSWORD"
	case errors.Is(err, ErrEmailExists):
		return "EMAIL_EXISTS"
	case errors.Is(err, ErrPasswordTooWeak), errors.Is(err, ErrPasswordBreached):
		return "PASSWORD_TOO_WEAK"
	case errors.Is(err, ErrInvalidCredentials):
		return "INVALID_CREDENTIALS"
	case errors.Is(err, ErrAccountLocked):
		return "ACCOUNT_LOCKED"
	case errors.Is(err, ErrEmailNotVerified):
		return "EMAIL_NOT_VERIFIED"
	case errors.Is(err, ErrSessionInvalid):
		return "SESSION_INVALID"
	case errors.Is(err, ErrSessionExpired):
		return "SESSION_EXPIRED"
	case errors.Is(err, ErrEmailVerificationInvalid):
		return "EMAIL_VERIFICATION_INVALID"
	case errors.Is(err, ErrEmailVerificationExpired):
		return "EMAIL_VERIFICATION_EXPIRED"
	case errors.Is(err, ErrPasswordResetInvalid):
		return "PASSWORD_RESET_INVALID"
	case errors.Is(err, ErrPasswordResetExpired):
		return "PASSWORD_RESET_EXPIRED"
	case errors.Is(err, ErrRateLimitExceeded):
		return "RATE_LIMIT_EXCEEDED"
	case errors.Is(err, ErrOAuthStateMismatch):
		return "OAUTH_STATE_MISMATCH"
	case errors.Is(err, ErrOAuthAuthFailed), errors.Is(err, ErrOAuthProviderUnknown):
		return "OAUTH_AUTH_FAILED"
	case errors.Is(err, ErrOAuthUserInfoFailed):
		return "OAUTH_USER_INFO_FAILED"
	default:
		return "INTERNAL_ERROR"
	}
}
