package fortress

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/fortressauth/fortress/password"
	"github.com/fortressauth/fortress/ratelimit"
)

// testClock is a mutable clock shared between a test and its engine.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memoryRepository is a map-backed Repository for engine tests. It enforces
// the unique-email constraint and counts a few calls the tests assert on.
type memoryRepository struct {
	mu sync.Mutex

	users          map[string]User    // by ID
	accounts       map[string]Account // by ID
	sessions       map[string]Session // by ID
	verifications  map[string]EmailVerificationToken
	resets         map[string]PasswordResetToken
	oauthStates    map[string]OAuthState
	attempts       []LoginAttempt
	deleteAllCalls map[string]int
	accountLookups int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		users:          map[string]User{},
		accounts:       map[string]Account{},
		sessions:       map[string]Session{},
		verifications:  map[string]EmailVerificationToken{},
		resets:         map[string]PasswordResetToken{},
		oauthStates:    map[string]OAuthState{},
		deleteAllCalls: map[string]int{},
	}
}

func (r *memoryRepository) FindUserByEmail(_ context.Context, email string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepository) FindUserByID(_ context.Context, id string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *memoryRepository) CreateUser(_ context.Context, u User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	r.users[u.ID] = u
	return nil
}

func (r *memoryRepository) UpdateUser(_ context.Context, u User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		return ErrNotFound
	}
	r.users[u.ID] = u
	return nil
}

func (r *memoryRepository) FindAccountByProvider(_ context.Context, providerID, providerUserID string) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ProviderID == providerID && a.ProviderUserID == providerUserID {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (r *memoryRepository) FindEmailAccountByUserID(_ context.Context, userID string) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accountLookups++
	for _, a := range r.accounts {
		if a.UserID == userID && a.ProviderID == ProviderEmail {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (r *memoryRepository) CreateAccount(_ context.Context, a Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.ID] = a
	return nil
}

func (r *memoryRepository) UpdateEmailAccountPassword(_ context.Context, accountID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = passwordHash
	r.accounts[accountID] = a
	return nil
}

func (r *memoryRepository) FindSessionBySelector(_ context.Context, selector string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.Selector == selector {
			return s, nil
		}
	}
	return Session{}, ErrNotFound
}

func (r *memoryRepository) CreateSession(_ context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *memoryRepository) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *memoryRepository) DeleteSessionsByUserID(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteAllCalls[userID]++
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *memoryRepository) FindEmailVerificationTokenBySelector(_ context.Context, selector string) (EmailVerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.verifications {
		if t.Selector == selector {
			return t, nil
		}
	}
	return EmailVerificationToken{}, ErrNotFound
}

func (r *memoryRepository) ListEmailVerificationTokensByUserID(_ context.Context, userID string) ([]EmailVerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EmailVerificationToken
	for _, t := range r.verifications {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memoryRepository) CreateEmailVerificationToken(_ context.Context, t EmailVerificationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifications[t.ID] = t
	return nil
}

func (r *memoryRepository) DeleteEmailVerificationToken(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.verifications, id)
	return nil
}

func (r *memoryRepository) FindPasswordResetTokenBySelector(_ context.Context, selector string) (PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.resets {
		if t.Selector == selector {
			return t, nil
		}
	}
	return PasswordResetToken{}, ErrNotFound
}

func (r *memoryRepository) ListPasswordResetTokensByUserID(_ context.Context, userID string) ([]PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PasswordResetToken
	for _, t := range r.resets {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memoryRepository) CreatePasswordResetToken(_ context.Context, t PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets[t.ID] = t
	return nil
}

func (r *memoryRepository) DeletePasswordResetToken(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.resets, id)
	return nil
}

func (r *memoryRepository) FindOAuthStateByState(_ context.Context, state string) (OAuthState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.oauthStates {
		if s.State == state {
			return s, nil
		}
	}
	return OAuthState{}, ErrNotFound
}

func (r *memoryRepository) CreateOAuthState(_ context.Context, s OAuthState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oauthStates[s.ID] = s
	return nil
}

func (r *memoryRepository) DeleteOAuthState(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.oauthStates, id)
	return nil
}

func (r *memoryRepository) RecordLoginAttempt(_ context.Context, a LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return nil
}

func (r *memoryRepository) CountRecentFailedAttempts(_ context.Context, email string, window time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, a := range r.attempts {
		if a.Email == email && !a.Success {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepository) Transaction(ctx context.Context, fn func(Repository) error) error {
	return fn(r)
}

func (r *memoryRepository) userCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

func (r *memoryRepository) sessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *memoryRepository) sessionCountForUser(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

func (r *memoryRepository) accountLookupCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accountLookups
}

func (r *memoryRepository) verificationTokenCountFor(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.verifications {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

func (r *memoryRepository) resetTokenCountFor(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.resets {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

func (r *memoryRepository) oauthStateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.oauthStates)
}

func (r *memoryRepository) deleteAllCallsFor(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteAllCalls[userID]
}

// captureEmail records outbound mail instead of sending it.
type captureEmail struct {
	mu            sync.Mutex
	verifications []sentMail
	resets        []sentMail
}

type sentMail struct {
	Email string
	Link  string
}

func (c *captureEmail) SendVerificationEmail(_ context.Context, email, link string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verifications = append(c.verifications, sentMail{Email: email, Link: link})
	return nil
}

func (c *captureEmail) SendPasswordResetEmail(_ context.Context, email, link string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets = append(c.resets, sentMail{Email: email, Link: link})
	return nil
}

func (c *captureEmail) lastVerification() (sentMail, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.verifications) == 0 {
		return sentMail{}, false
	}
	return c.verifications[len(c.verifications)-1], true
}

func (c *captureEmail) lastReset() (sentMail, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.resets) == 0 {
		return sentMail{}, false
	}
	return c.resets[len(c.resets)-1], true
}

func (c *captureEmail) resetCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resets)
}

// scriptedOAuthProvider returns canned responses for the callback flow.
type scriptedOAuthProvider struct {
	userInfo    OAuthUserInfo
	exchangeErr error
	userInfoErr error

	mu           sync.Mutex
	lastVerifier string
}

func (p *scriptedOAuthProvider) AuthorizationURL(req AuthorizationRequest) (string, error) {
	return "https://provider.example/authorize?state=" + req.State + "&code_challenge=" + req.CodeChallenge, nil
}

func (p *scriptedOAuthProvider) ExchangeCode(_ context.Context, code, codeVerifier string) (OAuthTokens, error) {
	p.mu.Lock()
	p.lastVerifier = codeVerifier
	p.mu.Unlock()
	if p.exchangeErr != nil {
		return OAuthTokens{}, p.exchangeErr
	}
	return OAuthTokens{AccessToken: "access-" + code}, nil
}

func (p *scriptedOAuthProvider) FetchUserInfo(_ context.Context, accessToken string) (OAuthUserInfo, error) {
	if p.userInfoErr != nil {
		return OAuthUserInfo{}, p.userInfoErr
	}
	return p.userInfo, nil
}

func fastArgonParams() password.Params {
	return password.Params{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Password.Argon2 = fastArgonParams()
	cfg.Session.TTL = time.Hour
	cfg.RateLimit.Login = ratelimit.Bucket{MaxTokens: 100, RefillInterval: time.Second, Window: time.Hour}
	cfg.RateLimit.Signup = ratelimit.Bucket{MaxTokens: 100, RefillInterval: time.Second, Window: time.Hour}
	cfg.RateLimit.PasswordReset = ratelimit.Bucket{MaxTokens: 100, RefillInterval: time.Second, Window: time.Hour}
	cfg.RateLimit.VerifyEmail = ratelimit.Bucket{MaxTokens: 100, RefillInterval: time.Second, Window: time.Hour}
	return cfg
}

type testEngine struct {
	engine *Engine
	repo   *memoryRepository
	email  *captureEmail
	clock  *testClock
}

func newTestEngine(t *testing.T, mutate ...func(*Builder)) testEngine {
	t.Helper()

	repo := newMemoryRepository()
	email := &captureEmail{}
	clock := newTestClock()

	b := New().
		WithConfig(testConfig()).
		WithRepository(repo).
		WithEmailProvider(email).
		withClock(clock.Now)
	for _, m := range mutate {
		m(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return testEngine{engine: engine, repo: repo, email: email, clock: clock}
}

// signUpVerified registers a user and marks the email verified so sign-in
// tests can start from a usable account.
func (te testEngine) signUpVerified(t *testing.T, email, pass string) SignUpResult {
	t.Helper()

	res, err := te.engine.SignUp(context.Background(), SignUpInput{Email: email, Password: pass})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	mail, ok := te.email.lastVerification()
	if !ok {
		t.Fatal("no verification email sent")
	}
	if _, err := te.engine.VerifyEmail(context.Background(), tokenFromLink(t, mail.Link)); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	return res
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()

	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("bad link %q: %v", link, err)
	}
	raw := u.Query().Get("token")
	if raw == "" {
		t.Fatalf("link %q has no token parameter", link)
	}
	return raw
}
