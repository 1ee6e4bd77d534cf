package fortress

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

func newOAuthTestEngine(t *testing.T, provider *scriptedOAuthProvider) testEngine {
	t.Helper()
	return newTestEngine(t, func(b *Builder) {
		b.WithOAuthProvider("github", provider)
	})
}

func TestOAuthAuthorize(t *testing.T) {
	provider := &scriptedOAuthProvider{}
	te := newOAuthTestEngine(t, provider)

	auth, err := te.engine.OAuthAuthorize(context.Background(), "github")
	if err != nil {
		t.Fatalf("OAuthAuthorize failed: %v", err)
	}
	if auth.State == "" {
		t.Fatal("empty state")
	}
	if !strings.Contains(auth.URL, "state="+auth.State) {
		t.Errorf("authorization URL missing state: %s", auth.URL)
	}
	if te.repo.oauthStateCount() != 1 {
		t.Errorf("oauth state count = %d, want 1", te.repo.oauthStateCount())
	}

	// The URL carries the S256 challenge for the persisted verifier.
	stored, err := te.repo.FindOAuthStateByState(context.Background(), auth.State)
	if err != nil {
		t.Fatalf("stored state not found: %v", err)
	}
	sum := sha256.Sum256([]byte(stored.CodeVerifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])
	if !strings.Contains(auth.URL, "code_challenge="+challenge) {
		t.Errorf("authorization URL missing PKCE challenge: %s", auth.URL)
	}
}

func TestOAuthAuthorizeUnknownProvider(t *testing.T) {
	te := newTestEngine(t)

	if _, err := te.engine.OAuthAuthorize(context.Background(), "github"); !errors.Is(err, ErrOAuthProviderUnknown) {
		t.Fatalf("expected ErrOAuthProviderUnknown, got %v", err)
	}
}

func TestOAuthCallbackNewUser(t *testing.T) {
	provider := &scriptedOAuthProvider{
		userInfo: OAuthUserInfo{ID: "gh-1", Email: "A@X.com", EmailVerified: true, Name: "Ada"},
	}
	te := newOAuthTestEngine(t, provider)

	auth, err := te.engine.OAuthAuthorize(context.Background(), "github")
	if err != nil {
		t.Fatalf("OAuthAuthorize failed: %v", err)
	}
	stored, err := te.repo.FindOAuthStateByState(context.Background(), auth.State)
	if err != nil {
		t.Fatalf("stored state not found: %v", err)
	}

	res, err := te.engine.OAuthCallback(context.Background(), "github", "code-1", auth.State, ClientInfo{})
	if err != nil {
		t.Fatalf("OAuthCallback failed: %v", err)
	}
	if res.User.Email != "a@x.com" {
		t.Errorf("email not normalized: %q", res.User.Email)
	}
	if !res.User.EmailVerified {
		t.Error("provider-verified email not carried over")
	}
	if provider.lastVerifier != stored.CodeVerifier {
		t.Error("code exchange did not use the persisted PKCE verifier")
	}
	if _, err := te.engine.ValidateSession(context.Background(), res.SessionToken); err != nil {
		t.Errorf("callback session invalid: %v", err)
	}
	if te.repo.oauthStateCount() != 0 {
		t.Error("state not deleted after callback")
	}
}

func TestOAuthCallbackExistingLinkedAccount(t *testing.T) {
	provider := &scriptedOAuthProvider{
		userInfo: OAuthUserInfo{ID: "gh-1", Email: "a@x.com", EmailVerified: true},
	}
	te := newOAuthTestEngine(t, provider)

	first := oauthRoundTrip(t, te, "code-1")
	second := oauthRoundTrip(t, te, "code-2")

	if first.User.ID != second.User.ID {
		t.Errorf("second round-trip created a new user: %s vs %s", first.User.ID, second.User.ID)
	}
	if te.repo.userCount() != 1 {
		t.Errorf("user count = %d, want 1", te.repo.userCount())
	}
}

func TestOAuthCallbackLinksByEmail(t *testing.T) {
	provider := &scriptedOAuthProvider{
		userInfo: OAuthUserInfo{ID: "gh-1", Email: "a@x.com", EmailVerified: true},
	}
	te := newOAuthTestEngine(t, provider)

	existing := te.signUpVerified(t, "a@x.com", "GoodPass123!")
	res := oauthRoundTrip(t, te, "code-1")

	if res.User.ID != existing.User.ID {
		t.Errorf("callback created a new user instead of linking: %s vs %s", res.User.ID, existing.User.ID)
	}
	if te.repo.userCount() != 1 {
		t.Errorf("user count = %d, want 1", te.repo.userCount())
	}

	// The password account still works alongside the new link.
	if _, err := te.engine.SignIn(context.Background(), SignInInput{Email: "a@x.com", Password: "GoodPass123!"}); err != nil {
		t.Errorf("password sign-in broken after linking: %v", err)
	}
}

func TestOAuthCallbackStateMismatch(t *testing.T) {
	provider := &scriptedOAuthProvider{userInfo: OAuthUserInfo{ID: "gh-1", Email: "a@x.com"}}
	te := newOAuthTestEngine(t, provider)

	if _, err := te.engine.OAuthCallback(context.Background(), "github", "code-1", "no-such-state", ClientInfo{}); !errors.Is(err, ErrOAuthStateMismatch) {
		t.Fatalf("expected ErrOAuthStateMismatch, got %v", err)
	}
}

func TestOAuthCallbackStateSingleUse(t *testing.T) {
	provider := &scriptedOAuthProvider{userInfo: OAuthUserInfo{ID: "gh-1", Email: "a@x.com", EmailVerified: true}}
	te := newOAuthTestEngine(t, provider)

	auth, err := te.engine.OAuthAuthorize(context.Background(), "github")
	if err != nil {
		t.Fatalf("OAuthAuthorize failed: %v", err)
	}
	if _, err := te.engine.OAuthCallback(context.Background(), "github", "code-1", auth.State, ClientInfo{}); err != nil {
		t.Fatalf("first callback failed: %v", err)
	}
	if _, err := te.engine.OAuthCallback(context.Background(), "github", "code-1", auth.State, ClientInfo{}); !errors.Is(err, ErrOAuthStateMismatch) {
		t.Fatalf("expected ErrOAuthStateMismatch on state replay, got %v", err)
	}
}

func TestOAuthCallbackStateBurnedOnFailure(t *testing.T) {
	provider := &scriptedOAuthProvider{exchangeErr: errors.New("provider said no")}
	te := newOAuthTestEngine(t, provider)

	auth, err := te.engine.OAuthAuthorize(context.Background(), "github")
	if err != nil {
		t.Fatalf("OAuthAuthorize failed: %v", err)
	}
	if _, err := te.engine.OAuthCallback(context.Background(), "github", "code-1", auth.State, ClientInfo{}); !errors.Is(err, ErrOAuthAuthFailed) {
		t.Fatalf("expected ErrOAuthAuthFailed, got %v", err)
	}
	// Failure still consumed the state.
	if te.repo.oauthStateCount() != 0 {
		t.Error("state survived a failed exchange")
	}
}

func TestOAuthCallbackExpiredState(t *testing.T) {
	provider := &scriptedOAuthProvider{userInfo: OAuthUserInfo{ID: "gh-1", Email: "a@x.com"}}
	te := newOAuthTestEngine(t, provider)

	auth, err := te.engine.OAuthAuthorize(context.Background(), "github")
	if err != nil {
		t.Fatalf("OAuthAuthorize failed: %v", err)
	}
	te.clock.Advance(11 * time.Minute)

	if _, err := te.engine.OAuthCallback(context.Background(), "github", "code-1", auth.State, ClientInfo{}); !errors.Is(err, ErrOAuthStateMismatch) {
		t.Fatalf("expected ErrOAuthStateMismatch for expired state, got %v", err)
	}
	if te.repo.oauthStateCount() != 0 {
		t.Error("expired state not deleted")
	}
}

func TestOAuthCallbackUserInfoFailure(t *testing.T) {
	provider := &scriptedOAuthProvider{userInfoErr: errors.New("userinfo down")}
	te := newOAuthTestEngine(t, provider)

	auth, err := te.engine.OAuthAuthorize(context.Background(), "github")
	if err != nil {
		t.Fatalf("OAuthAuthorize failed: %v", err)
	}
	if _, err := te.engine.OAuthCallback(context.Background(), "github", "code-1", auth.State, ClientInfo{}); !errors.Is(err, ErrOAuthUserInfoFailed) {
		t.Fatalf("expected ErrOAuthUserInfoFailed, got %v", err)
	}
	if te.repo.userCount() != 0 {
		t.Error("user created despite userinfo failure")
	}
}

func oauthRoundTrip(t *testing.T, te testEngine, code string) SignInResult {
	t.Helper()

	auth, err := te.engine.OAuthAuthorize(context.Background(), "github")
	if err != nil {
		t.Fatalf("OAuthAuthorize failed: %v", err)
	}
	res, err := te.engine.OAuthCallback(context.Background(), "github", code, auth.State, ClientInfo{})
	if err != nil {
		t.Fatalf("OAuthCallback failed: %v", err)
	}
	return res
}
