package fortress

import "context"

// ClientInfo carries optional request metadata used for rate limiting and
// session records. Zero values mean "not available".
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// EmailProvider is the outbound mail port. Calls are fire-and-forget from
// the engine's perspective: a failed send never rolls back an already
// committed account mutation.
type EmailProvider interface {
	SendVerificationEmail(ctx context.Context, email, link string) error
	SendPasswordResetEmail(ctx context.Context, email, link string) error
}

// AuthorizationRequest is the provider-bound half of an OAuth round-trip.
type AuthorizationRequest struct {
	State         string
	CodeChallenge string
	RedirectURI   string
}

// OAuthTokens is the result of a successful code exchange.
type OAuthTokens struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
}

// OAuthUserInfo is the provider's view of the authenticated user.
type OAuthUserInfo struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// OAuthProvider is the per-provider OAuth port. Implementations own all
// provider HTTP traffic; the engine only orchestrates state and PKCE.
type OAuthProvider interface {
	AuthorizationURL(req AuthorizationRequest) (string, error)
	ExchangeCode(ctx context.Context, code, codeVerifier string) (OAuthTokens, error)
	FetchUserInfo(ctx context.Context, accessToken string) (OAuthUserInfo, error)
}

// BreachedPasswordChecker is the optional breach-corpus port behind
// Config.Password.BreachedCheck. Network I/O lives entirely in the
// implementation.
type BreachedPasswordChecker interface {
	IsBreached(ctx context.Context, password string) (bool, error)
}

// SignUpInput is the input to Engine.SignUp.
type SignUpInput struct {
	Email    string
	Password string
	Client   ClientInfo
}

// SignUpResult carries the created user and their first session token.
type SignUpResult struct {
	User         User
	SessionToken string
}

// SignInInput is the input to Engine.SignIn.
type SignInInput struct {
	Email    string
	Password string
	Client   ClientInfo
}

// SignInResult carries the authenticated user and a fresh session token.
type SignInResult struct {
	User         User
	SessionToken string
}

// SessionValidation is returned by Engine.ValidateSession.
type SessionValidation struct {
	User    User
	Session Session
}

// ResetPasswordInput is the input to Engine.ResetPassword.
type ResetPasswordInput struct {
	Token       string
	NewPassword string
	Client      ClientInfo
}

// OAuthAuthorization is returned by Engine.OAuthAuthorize; the host
// redirects the browser to URL.
type OAuthAuthorization struct {
	URL   string
	State string
}
