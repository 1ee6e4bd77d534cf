package fortress

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	oauthStateBytes   = 32
	pkceVerifierBytes = 32
)

// OAuthState is the single-use CSRF/PKCE state for one OAuth round-trip.
// It is deleted on any callback attempt, matched or not.
type OAuthState struct {
	ID           string
	ProviderID   string
	State        string
	CodeVerifier string `json:"-"`
	RedirectURI  string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// NewOAuthState mints the state value and a PKCE code verifier for a
// provider round-trip.
func NewOAuthState(providerID, redirectURI string, ttl time.Duration, now time.Time) (OAuthState, error) {
	state, err := randomURLToken(oauthStateBytes)
	if err != nil {
		return OAuthState{}, err
	}
	verifier, err := randomURLToken(pkceVerifierBytes)
	if err != nil {
		return OAuthState{}, err
	}

	return OAuthState{
		ID:           ulid.Make().String(),
		ProviderID:   providerID,
		State:        state,
		CodeVerifier: verifier,
		RedirectURI:  redirectURI,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
	}, nil
}

// IsExpired reports whether the round-trip window has closed.
func (s OAuthState) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// CodeChallenge derives the S256 PKCE challenge from the stored verifier.
func (s OAuthState) CodeChallenge() string {
	sum := sha256.Sum256([]byte(s.CodeVerifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomURLToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
