package fortress

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// User is the root identity entity. Values are immutable; every mutation
// returns a fresh copy so concurrent readers never observe partial writes.
// Email is always stored lowercase; uniqueness is enforced by the
// Repository.
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LockedUntil   *time.Time
}

// NewUser creates a user from an already normalized email. IDs are ULIDs,
// so creation order is recoverable from the ID alone.
func NewUser(email string, now time.Time) User {
	return User{
		ID:        ulid.Make().String(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RehydrateUser rebuilds a user from persisted fields without validation;
// the data already passed validation when it was first created.
func RehydrateUser(id, email string, emailVerified bool, createdAt, updatedAt time.Time, lockedUntil *time.Time) User {
	return User{
		ID:            id,
		Email:         email,
		EmailVerified: emailVerified,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
		LockedUntil:   lockedUntil,
	}
}

// IsLocked reports whether the lockout policy currently suspends password
// authentication. A past LockedUntil clears the lock implicitly.
func (u User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// WithEmailVerified returns a copy with the verification flag set.
func (u User) WithEmailVerified(now time.Time) User {
	u.EmailVerified = true
	u.UpdatedAt = now
	return u
}

// WithLock returns a copy locked until the given instant.
func (u User) WithLock(until time.Time, now time.Time) User {
	u.LockedUntil = &until
	u.UpdatedAt = now
	return u
}

// WithoutLock returns a copy with any lock cleared.
func (u User) WithoutLock(now time.Time) User {
	u.LockedUntil = nil
	u.UpdatedAt = now
	return u
}
