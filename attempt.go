package fortress

import (
	"time"

	"github.com/google/uuid"
)

// LoginAttempt is a write-only audit record of one sign-in attempt. The
// engine reads it back only as an aggregate failure count over the lockout
// window.
type LoginAttempt struct {
	ID        string
	UserID    string
	Email     string
	IPAddress string
	Success   bool
	CreatedAt time.Time
}

// NewLoginAttempt records one attempt. userID is empty when the email did
// not resolve to a user.
func NewLoginAttempt(userID, email, ip string, success bool, now time.Time) LoginAttempt {
	return LoginAttempt{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		IPAddress: ip,
		Success:   success,
		CreatedAt: now,
	}
}
