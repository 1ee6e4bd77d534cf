package fortress

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fortressauth/fortress/token"
)

// OneTimeToken is the shared shape of email-verification and password-reset
// tokens: split-token credentials that are deleted after any terminal
// verification attempt, success or failure.
type OneTimeToken struct {
	ID           string
	UserID       string
	Selector     string
	VerifierHash string `json:"-"`
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// EmailVerificationToken proves ownership of a registered email address.
type EmailVerificationToken struct {
	OneTimeToken
}

// PasswordResetToken authorizes a single password reset.
type PasswordResetToken struct {
	OneTimeToken
}

func newOneTimeToken(userID string, ttl time.Duration, now time.Time) (OneTimeToken, string, error) {
	st, err := token.Generate()
	if err != nil {
		return OneTimeToken{}, "", err
	}

	return OneTimeToken{
		ID:           ulid.Make().String(),
		UserID:       userID,
		Selector:     st.Selector,
		VerifierHash: st.VerifierHash,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
	}, st.Raw, nil
}

// NewEmailVerificationToken mints a verification token and its raw form.
func NewEmailVerificationToken(userID string, ttl time.Duration, now time.Time) (EmailVerificationToken, string, error) {
	ot, raw, err := newOneTimeToken(userID, ttl, now)
	if err != nil {
		return EmailVerificationToken{}, "", err
	}
	return EmailVerificationToken{OneTimeToken: ot}, raw, nil
}

// NewPasswordResetToken mints a reset token and its raw form.
func NewPasswordResetToken(userID string, ttl time.Duration, now time.Time) (PasswordResetToken, string, error) {
	ot, raw, err := newOneTimeToken(userID, ttl, now)
	if err != nil {
		return PasswordResetToken{}, "", err
	}
	return PasswordResetToken{OneTimeToken: ot}, raw, nil
}

// MatchesVerifier hashes candidate and compares it with the stored hash in
// constant time.
func (t OneTimeToken) MatchesVerifier(candidate string) bool {
	return token.MatchesVerifier(candidate, t.VerifierHash)
}

// IsExpired reports whether the token has passed its expiry.
func (t OneTimeToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
