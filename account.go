package fortress

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// ProviderEmail is the provider tag for password-backed accounts. OAuth
// accounts carry the provider's own tag ("google", "github", ...).
const ProviderEmail = "email"

// Account links a user to one provider identity. At most one "email"
// account exists per user; PasswordHash is empty for OAuth accounts.
// The hash never appears in any serialized form.
type Account struct {
	ID             string
	UserID         string
	ProviderID     string
	ProviderUserID string
	PasswordHash   string `json:"-"`
	CreatedAt      time.Time
}

// NewEmailAccount creates the password-credential account for a user.
func NewEmailAccount(userID, passwordHash string, now time.Time) Account {
	return Account{
		ID:             ulid.Make().String(),
		UserID:         userID,
		ProviderID:     ProviderEmail,
		ProviderUserID: userID,
		PasswordHash:   passwordHash,
		CreatedAt:      now,
	}
}

// NewOAuthAccount links a user to an external provider identity.
func NewOAuthAccount(userID, providerID, providerUserID string, now time.Time) Account {
	return Account{
		ID:             ulid.Make().String(),
		UserID:         userID,
		ProviderID:     providerID,
		ProviderUserID: providerUserID,
		CreatedAt:      now,
	}
}

// WithPasswordHash returns a copy carrying a new credential hash.
func (a Account) WithPasswordHash(hash string) Account {
	a.PasswordHash = hash
	return a
}
