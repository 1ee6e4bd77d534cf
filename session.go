package fortress

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fortressauth/fortress/token"
)

// Session represents one active login. The raw split token is returned to
// the caller exactly once at creation; only the selector and the verifier
// hash are stored.
type Session struct {
	ID           string
	UserID       string
	Selector     string
	VerifierHash string `json:"-"`
	ExpiresAt    time.Time
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
}

// NewSession mints a session and its raw token for a user.
func NewSession(userID string, ttl time.Duration, client ClientInfo, now time.Time) (Session, string, error) {
	st, err := token.Generate()
	if err != nil {
		return Session{}, "", err
	}

	return Session{
		ID:           ulid.Make().String(),
		UserID:       userID,
		Selector:     st.Selector,
		VerifierHash: st.VerifierHash,
		ExpiresAt:    now.Add(ttl),
		IPAddress:    client.IPAddress,
		UserAgent:    client.UserAgent,
		CreatedAt:    now,
	}, st.Raw, nil
}

// MatchesVerifier hashes candidate and compares it with the stored hash in
// constant time.
func (s Session) MatchesVerifier(candidate string) bool {
	return token.MatchesVerifier(candidate, s.VerifierHash)
}

// IsExpired reports whether the session has passed its expiry.
func (s Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
