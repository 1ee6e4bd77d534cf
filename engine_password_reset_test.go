package fortress

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fortressauth/fortress/ratelimit"
)

func requestReset(t *testing.T, te testEngine, email string) string {
	t.Helper()

	if err := te.engine.RequestPasswordReset(context.Background(), email, ClientInfo{}); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	mail, ok := te.email.lastReset()
	if !ok {
		t.Fatal("no reset email sent")
	}
	return tokenFromLink(t, mail.Link)
}

func TestResetPasswordSuccess(t *testing.T) {
	te := newTestEngine(t)
	res := te.signUpVerified(t, "a@x.com", "OldPass123!")

	// A live session from before the reset.
	extra, err := te.engine.SignIn(context.Background(), SignInInput{Email: "a@x.com", Password: "OldPass123!"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	raw := requestReset(t, te, "a@x.com")
	if err := te.engine.ResetPassword(context.Background(), ResetPasswordInput{Token: raw, NewPassword: "NewPass456!"}); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	// Every session for the user is gone, via exactly one bulk delete.
	if n := te.repo.deleteAllCallsFor(res.User.ID); n != 1 {
		t.Errorf("DeleteSessionsByUserID called %d times, want 1", n)
	}
	for _, token := range []string{res.SessionToken, extra.SessionToken} {
		if _, err := te.engine.ValidateSession(context.Background(), token); !errors.Is(err, ErrSessionInvalid) {
			t.Errorf("session survived password reset: %v", err)
		}
	}

	// Old password rejected, new one accepted.
	if _, err := te.engine.SignIn(context.Background(), SignInInput{Email: "a@x.com", Password: "OldPass123!"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password still works: %v", err)
	}
	if _, err := te.engine.SignIn(context.Background(), SignInInput{Email: "a@x.com", Password: "NewPass456!"}); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestResetPasswordTokenSingleUse(t *testing.T) {
	te := newTestEngine(t)
	te.signUpVerified(t, "a@x.com", "OldPass123!")

	raw := requestReset(t, te, "a@x.com")
	if err := te.engine.ResetPassword(context.Background(), ResetPasswordInput{Token: raw, NewPassword: "NewPass456!"}); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	if err := te.engine.ResetPassword(context.Background(), ResetPasswordInput{Token: raw, NewPassword: "Another789!"}); !errors.Is(err, ErrPasswordResetInvalid) {
		t.Fatalf("expected ErrPasswordResetInvalid on reuse, got %v", err)
	}
}

func TestResetPasswordExpiredToken(t *testing.T) {
	te := newTestEngine(t)
	res := te.signUpVerified(t, "a@x.com", "OldPass123!")

	raw := requestReset(t, te, "a@x.com")
	te.clock.Advance(2 * time.Hour)

	if err := te.engine.ResetPassword(context.Background(), ResetPasswordInput{Token: raw, NewPassword: "NewPass456!"}); !errors.Is(err, ErrPasswordResetExpired) {
		t.Fatalf("expected ErrPasswordResetExpired, got %v", err)
	}
	if n := te.repo.resetTokenCountFor(res.User.ID); n != 0 {
		t.Error("expired token not deleted")
	}
	// Expiry consumed the token.
	if err := te.engine.ResetPassword(context.Background(), ResetPasswordInput{Token: raw, NewPassword: "NewPass456!"}); !errors.Is(err, ErrPasswordResetInvalid) {
		t.Fatalf("expected ErrPasswordResetInvalid after expiry deletion, got %v", err)
	}
}

func TestResetPasswordWeakPasswordBurnsToken(t *testing.T) {
	te := newTestEngine(t)
	res := te.signUpVerified(t, "a@x.com", "OldPass123!")

	raw := requestReset(t, te, "a@x.com")
	if err := te.engine.ResetPassword(context.Background(), ResetPasswordInput{Token: raw, NewPassword: "short"}); !errors.Is(err, ErrPasswordTooWeak) {
		t.Fatalf("expected ErrPasswordTooWeak, got %v", err)
	}

	// The token was redeemed; a second try with a good password fails.
	if err := te.engine.ResetPassword(context.Background(), ResetPasswordInput{Token: raw, NewPassword: "NewPass456!"}); !errors.Is(err, ErrPasswordResetInvalid) {
		t.Fatalf("expected ErrPasswordResetInvalid, got %v", err)
	}

	// And the old password is untouched.
	if _, err := te.engine.SignIn(context.Background(), SignInInput{Email: "a@x.com", Password: "OldPass123!"}); err != nil {
		t.Errorf("old password stopped working after failed reset: %v", err)
	}
	if n := te.repo.deleteAllCallsFor(res.User.ID); n != 0 {
		t.Errorf("sessions deleted on failed reset (%d bulk deletes)", n)
	}
}

func TestRequestPasswordResetEnumerationSafe(t *testing.T) {
	te := newTestEngine(t)
	te.signUpVerified(t, "a@x.com", "OldPass123!")

	if err := te.engine.RequestPasswordReset(context.Background(), "ghost@x.com", ClientInfo{}); err != nil {
		t.Fatalf("expected success for unknown email, got %v", err)
	}
	if te.email.resetCount() != 0 {
		t.Error("reset mail sent for unknown address")
	}

	if err := te.engine.RequestPasswordReset(context.Background(), "a@x.com", ClientInfo{}); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if te.email.resetCount() != 1 {
		t.Errorf("resetCount = %d, want 1", te.email.resetCount())
	}
}

func TestRequestPasswordResetTokenCap(t *testing.T) {
	te := newTestEngine(t)
	res := te.signUpVerified(t, "a@x.com", "OldPass123!")

	for i := 0; i < 5; i++ {
		te.clock.Advance(time.Minute)
		if err := te.engine.RequestPasswordReset(context.Background(), "a@x.com", ClientInfo{}); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}

	maxActive := te.engine.config.PasswordReset.MaxActiveTokens
	if n := te.repo.resetTokenCountFor(res.User.ID); n > maxActive {
		t.Errorf("active reset tokens = %d, cap is %d", n, maxActive)
	}

	// Evicted tokens no longer redeem; the newest one does.
	first := te.email.resets[0]
	if err := te.engine.ResetPassword(context.Background(), ResetPasswordInput{Token: tokenFromLink(t, first.Link), NewPassword: "NewPass456!"}); !errors.Is(err, ErrPasswordResetInvalid) {
		t.Fatalf("expected evicted token to be invalid, got %v", err)
	}
	last, _ := te.email.lastReset()
	if err := te.engine.ResetPassword(context.Background(), ResetPasswordInput{Token: tokenFromLink(t, last.Link), NewPassword: "NewPass456!"}); err != nil {
		t.Fatalf("newest token did not redeem: %v", err)
	}
}

func TestResetPasswordMalformedToken(t *testing.T) {
	te := newTestEngine(t)

	for _, raw := range []string{"", "nope", "abc:def"} {
		if err := te.engine.ResetPassword(context.Background(), ResetPasswordInput{Token: raw, NewPassword: "NewPass456!"}); !errors.Is(err, ErrPasswordResetInvalid) {
			t.Errorf("token %q: expected ErrPasswordResetInvalid, got %v", raw, err)
		}
	}
}

func TestResetPasswordRateLimitsTokenGuessing(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.PasswordReset = ratelimit.Bucket{MaxTokens: 3, RefillInterval: time.Hour, Window: time.Hour}

	te := newTestEngine(t, func(b *Builder) { b.WithConfig(cfg) })

	// Well-formed but unredeemable: each attempt drains the client bucket.
	bogus := strings.Repeat("a", 32) + ":" + strings.Repeat("b", 64)
	in := ResetPasswordInput{
		Token:       bogus,
		NewPassword: "NewPass456!",
		Client:      ClientInfo{IPAddress: "1.2.3.4", UserAgent: "guesser"},
	}

	for i := 0; i < 3; i++ {
		if err := te.engine.ResetPassword(context.Background(), in); !errors.Is(err, ErrPasswordResetInvalid) {
			t.Fatalf("attempt %d: expected ErrPasswordResetInvalid, got %v", i+1, err)
		}
	}

	if err := te.engine.ResetPassword(context.Background(), in); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded after repeated guesses, got %v", err)
	}
}

func TestRequestPasswordResetUnknownEmailPaysDelay(t *testing.T) {
	te := newTestEngine(t)
	te.signUpVerified(t, "a@x.com", "GoodPass123!")

	delays := 0
	te.engine.enumerationDelay = func(context.Context) error {
		delays++
		return nil
	}

	if err := te.engine.RequestPasswordReset(context.Background(), "nobody@x.com", ClientInfo{}); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if delays != 1 {
		t.Fatalf("unknown email slept %d times, want 1", delays)
	}

	if err := te.engine.RequestPasswordReset(context.Background(), "a@x.com", ClientInfo{}); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if delays != 1 {
		t.Errorf("registered email paid the miss-path delay")
	}
}

func TestEnumerationDelayHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepPasswordResetEnumerationDelay(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
