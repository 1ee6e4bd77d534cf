package main

import (
	"context"
	"sync"
	"time"

	fortress "github.com/fortressauth/fortress"
)

// loadRepository is an in-memory Repository indexed for the load test's hot
// lookups (email and session selector), so the measurement reflects engine
// cost rather than linear map scans.
type loadRepository struct {
	mu                 sync.RWMutex
	users              map[string]fortress.User
	usersByEmail       map[string]string
	accounts           map[string]fortress.Account
	emailAccountByUser map[string]string
	sessions           map[string]fortress.Session
	sessionBySelector  map[string]string
	verifications      map[string]fortress.EmailVerificationToken
	resets             map[string]fortress.PasswordResetToken
	oauthStates        map[string]fortress.OAuthState
	failedAttempts     map[string]int
}

func newLoadRepository() *loadRepository {
	return &loadRepository{
		users:              make(map[string]fortress.User),
		usersByEmail:       make(map[string]string),
		accounts:           make(map[string]fortress.Account),
		emailAccountByUser: make(map[string]string),
		sessions:           make(map[string]fortress.Session),
		sessionBySelector:  make(map[string]string),
		verifications:      make(map[string]fortress.EmailVerificationToken),
		resets:             make(map[string]fortress.PasswordResetToken),
		oauthStates:        make(map[string]fortress.OAuthState),
		failedAttempts:     make(map[string]int),
	}
}

func (r *loadRepository) FindUserByEmail(_ context.Context, email string) (fortress.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.usersByEmail[email]
	if !ok {
		return fortress.User{}, fortress.ErrNotFound
	}
	return r.users[id], nil
}

func (r *loadRepository) FindUserByID(_ context.Context, id string) (fortress.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return fortress.User{}, fortress.ErrNotFound
	}
	return u, nil
}

func (r *loadRepository) CreateUser(_ context.Context, u fortress.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.usersByEmail[u.Email]; exists {
		return fortress.ErrDuplicate
	}
	r.users[u.ID] = u
	r.usersByEmail[u.Email] = u.ID
	return nil
}

func (r *loadRepository) UpdateUser(_ context.Context, u fortress.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		return fortress.ErrNotFound
	}
	r.users[u.ID] = u
	return nil
}

func (r *loadRepository) FindAccountByProvider(_ context.Context, providerID, providerUserID string) (fortress.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.ProviderID == providerID && a.ProviderUserID == providerUserID {
			return a, nil
		}
	}
	return fortress.Account{}, fortress.ErrNotFound
}

func (r *loadRepository) FindEmailAccountByUserID(_ context.Context, userID string) (fortress.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.emailAccountByUser[userID]
	if !ok {
		return fortress.Account{}, fortress.ErrNotFound
	}
	return r.accounts[id], nil
}

func (r *loadRepository) CreateAccount(_ context.Context, a fortress.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.ID] = a
	if a.ProviderID == fortress.ProviderEmail {
		r.emailAccountByUser[a.UserID] = a.ID
	}
	return nil
}

func (r *loadRepository) UpdateEmailAccountPassword(_ context.Context, accountID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return fortress.ErrNotFound
	}
	a.PasswordHash = passwordHash
	r.accounts[accountID] = a
	return nil
}

func (r *loadRepository) FindSessionBySelector(_ context.Context, selector string) (fortress.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.sessionBySelector[selector]
	if !ok {
		return fortress.Session{}, fortress.ErrNotFound
	}
	return r.sessions[id], nil
}

func (r *loadRepository) CreateSession(_ context.Context, s fortress.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	r.sessionBySelector[s.Selector] = s.ID
	return nil
}

func (r *loadRepository) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		delete(r.sessionBySelector, s.Selector)
		delete(r.sessions, id)
	}
	return nil
}

func (r *loadRepository) DeleteSessionsByUserID(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessionBySelector, s.Selector)
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *loadRepository) FindEmailVerificationTokenBySelector(_ context.Context, selector string) (fortress.EmailVerificationToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.verifications {
		if t.Selector == selector {
			return t, nil
		}
	}
	return fortress.EmailVerificationToken{}, fortress.ErrNotFound
}

func (r *loadRepository) ListEmailVerificationTokensByUserID(_ context.Context, userID string) ([]fortress.EmailVerificationToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []fortress.EmailVerificationToken
	for _, t := range r.verifications {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *loadRepository) CreateEmailVerificationToken(_ context.Context, t fortress.EmailVerificationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifications[t.ID] = t
	return nil
}

func (r *loadRepository) DeleteEmailVerificationToken(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.verifications, id)
	return nil
}

func (r *loadRepository) FindPasswordResetTokenBySelector(_ context.Context, selector string) (fortress.PasswordResetToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.resets {
		if t.Selector == selector {
			return t, nil
		}
	}
	return fortress.PasswordResetToken{}, fortress.ErrNotFound
}

func (r *loadRepository) ListPasswordResetTokensByUserID(_ context.Context, userID string) ([]fortress.PasswordResetToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []fortress.PasswordResetToken
	for _, t := range r.resets {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *loadRepository) CreatePasswordResetToken(_ context.Context, t fortress.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets[t.ID] = t
	return nil
}

func (r *loadRepository) DeletePasswordResetToken(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.resets, id)
	return nil
}

func (r *loadRepository) FindOAuthStateByState(_ context.Context, state string) (fortress.OAuthState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.oauthStates {
		if s.State == state {
			return s, nil
		}
	}
	return fortress.OAuthState{}, fortress.ErrNotFound
}

func (r *loadRepository) CreateOAuthState(_ context.Context, s fortress.OAuthState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oauthStates[s.ID] = s
	return nil
}

func (r *loadRepository) DeleteOAuthState(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.oauthStates, id)
	return nil
}

func (r *loadRepository) RecordLoginAttempt(_ context.Context, a fortress.LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Only the failure counter matters for the lockout policy; storing
	// every row would grow without bound over a long run.
	if !a.Success {
		r.failedAttempts[a.Email]++
	}
	return nil
}

func (r *loadRepository) CountRecentFailedAttempts(_ context.Context, email string, _ time.Duration) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failedAttempts[email], nil
}

func (r *loadRepository) Transaction(_ context.Context, fn func(fortress.Repository) error) error {
	return fn(r)
}

var _ fortress.Repository = (*loadRepository)(nil)
