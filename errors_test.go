package fortress

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrInvalidEmail, "INVALID_EMAIL"},
		{ErrInvalidPassword, "INVALID_PASSWORD"},
		{ErrEmailExists, "EMAIL_EXISTS"},
		{ErrPasswordTooWeak, "PASSWORD_TOO_WEAK"},
		{ErrPasswordBreached, "PASSWORD_TOO_WEAK"},
		{ErrInvalidCredentials, "INVALID_CREDENTIALS"},
		{ErrAccountLocked, "ACCOUNT_LOCKED"},
		{ErrEmailNotVerified, "EMAIL_NOT_VERIFIED"},
		{ErrSessionInvalid, "SESSION_INVALID"},
		{ErrSessionExpired, "SESSION_EXPIRED"},
		{ErrEmailVerificationInvalid, "EMAIL_VERIFICATION_INVALID"},
		{ErrEmailVerificationExpired, "EMAIL_VERIFICATION_EXPIRED"},
		{ErrPasswordResetInvalid, "PASSWORD_RESET_INVALID"},
		{ErrPasswordResetExpired, "PASSWORD_RESET_EXPIRED"},
		{ErrRateLimitExceeded, "RATE_LIMIT_EXCEEDED"},
		{ErrOAuthStateMismatch, "OAUTH_STATE_MISMATCH"},
		{ErrOAuthAuthFailed, "OAUTH_AUTH_FAILED"},
		{ErrOAuthProviderUnknown, "OAUTH_AUTH_FAILED"},
		{ErrOAuthUserInfoFailed, "OAUTH_USER_INFO_FAILED"},
		{ErrInternal, "INTERNAL_ERROR"},
		{ErrEngineNotReady, "INTERNAL_ERROR"},
		{errors.New("something else"), "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.want {
			t.Errorf("CodeOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestCodeOfWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("sign-in: %w", ErrInvalidCredentials)
	if got := CodeOf(wrapped); got != "INVALID_CREDENTIALS" {
		t.Errorf("CodeOf(wrapped) = %q, want INVALID_CREDENTIALS", got)
	}

	// Internal wrapping hides the port failure behind the generic code.
	internal := fmt.Errorf("%w: create session: %v", ErrInternal, errors.New("db down"))
	if got := CodeOf(internal); got != "INTERNAL_ERROR" {
		t.Errorf("CodeOf(internal) = %q, want INTERNAL_ERROR", got)
	}
}
