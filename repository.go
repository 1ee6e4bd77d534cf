package fortress

import (
	"context"
	"errors"
	"time"
)

// Storage sentinels returned by Repository implementations. The engine
// never leaks these to callers; they are translated to the public error
// taxonomy per use case.
var (
	// ErrNotFound signals an absent row on any Find method.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate signals a unique-constraint violation on create. For
	// CreateUser this is the authoritative guard against concurrent
	// registration of the same email.
	ErrDuplicate = errors.New("duplicate")
)

// Repository is the persistence port. Implementations own durability and
// the unique-email constraint; the engine owns entity construction and all
// transitions. All relationships are by ID.
type Repository interface {
	// Users.
	FindUserByEmail(ctx context.Context, email string) (User, error)
	FindUserByID(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, u User) error
	UpdateUser(ctx context.Context, u User) error

	// Accounts.
	FindAccountByProvider(ctx context.Context, providerID, providerUserID string) (Account, error)
	FindEmailAccountByUserID(ctx context.Context, userID string) (Account, error)
	CreateAccount(ctx context.Context, a Account) error
	UpdateEmailAccountPassword(ctx context.Context, accountID, passwordHash string) error

	// Sessions.
	FindSessionBySelector(ctx context.Context, selector string) (Session, error)
	CreateSession(ctx context.Context, s Session) error
	DeleteSession(ctx context.Context, id string) error
	DeleteSessionsByUserID(ctx context.Context, userID string) error

	// Email verification tokens.
	FindEmailVerificationTokenBySelector(ctx context.Context, selector string) (EmailVerificationToken, error)
	ListEmailVerificationTokensByUserID(ctx context.Context, userID string) ([]EmailVerificationToken, error)
	CreateEmailVerificationToken(ctx context.Context, t EmailVerificationToken) error
	DeleteEmailVerificationToken(ctx context.Context, id string) error

	// Password reset tokens.
	FindPasswordResetTokenBySelector(ctx context.Context, selector string) (PasswordResetToken, error)
	ListPasswordResetTokensByUserID(ctx context.Context, userID string) ([]PasswordResetToken, error)
	CreatePasswordResetToken(ctx context.Context, t PasswordResetToken) error
	DeletePasswordResetToken(ctx context.Context, id string) error

	// OAuth round-trip state.
	FindOAuthStateByState(ctx context.Context, state string) (OAuthState, error)
	CreateOAuthState(ctx context.Context, s OAuthState) error
	DeleteOAuthState(ctx context.Context, id string) error

	// Login attempt audit trail.
	RecordLoginAttempt(ctx context.Context, a LoginAttempt) error
	CountRecentFailedAttempts(ctx context.Context, email string, window time.Duration) (int, error)

	// Transaction runs fn against a transactional view of the repository.
	// Implementations without native transactions may run fn against the
	// receiver; the engine orders writes so the unique-email constraint
	// remains the commit point for sign-up races.
	Transaction(ctx context.Context, fn func(Repository) error) error
}
