package internaldefs

import (
	fortress "github.com/fortressauth/fortress"
)

// CounterDef binds a core MetricID to its exported name and help text.
type CounterDef struct {
	ID   fortress.MetricID
	Name string
	Help string
}

// HistogramDef binds a core histogram MetricID to its exported name.
type HistogramDef struct {
	ID   fortress.MetricID
	Name string
	Help string
}

// CounterDefs is the shared counter table used by every exporter backend.
var CounterDefs = []CounterDef{
	{ID: fortress.MetricSignUpSuccess, Name: "fortress_signup_success_total", Help: "Successful sign-ups."},
	{ID: fortress.MetricSignUpDuplicate, Name: "fortress_signup_duplicate_total", Help: "Sign-up attempts rejected as duplicate email."},
	{ID: fortress.MetricSignUpRejected, Name: "fortress_signup_rejected_total", Help: "Sign-up attempts rejected by validation or policy."},
	{ID: fortress.MetricSignUpRateLimited, Name: "fortress_signup_rate_limited_total", Help: "Rate-limited sign-up attempts."},
	{ID: fortress.MetricSignInSuccess, Name: "fortress_signin_success_total", Help: "Successful sign-ins."},
	{ID: fortress.MetricSignInFailure, Name: "fortress_signin_failure_total", Help: "Failed sign-in attempts."},
	{ID: fortress.MetricSignInRateLimited, Name: "fortress_signin_rate_limited_total", Help: "Rate-limited sign-in attempts."},
	{ID: fortress.MetricAccountLocked, Name: "fortress_account_locked_total", Help: "Accounts locked by the lockout policy."},
	{ID: fortress.MetricSessionCreated, Name: "fortress_session_created_total", Help: "Created sessions."},
	{ID: fortress.MetricSessionValidated, Name: "fortress_session_validated_total", Help: "Successful session validations."},
	{ID: fortress.MetricSessionRejected, Name: "fortress_session_rejected_total", Help: "Rejected session validations."},
	{ID: fortress.MetricSignOut, Name: "fortress_signout_total", Help: "Single-session sign-out operations."},
	{ID: fortress.MetricSignOutAll, Name: "fortress_signout_all_total", Help: "Sign-out-all operations."},
	{ID: fortress.MetricEmailVerificationSent, Name: "fortress_email_verification_sent_total", Help: "Verification emails issued."},
	{ID: fortress.MetricEmailVerificationSuccess, Name: "fortress_email_verification_success_total", Help: "Successful email verifications."},
	{ID: fortress.MetricEmailVerificationFailure, Name: "fortress_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: fortress.MetricPasswordResetRequest, Name: "fortress_password_reset_request_total", Help: "Password reset requests."},
	{ID: fortress.MetricPasswordResetSuccess, Name: "fortress_password_reset_success_total", Help: "Successful password resets."},
	{ID: fortress.MetricPasswordResetFailure, Name: "fortress_password_reset_failure_total", Help: "Failed password reset redemptions."},
	{ID: fortress.MetricPasswordBreachedRejected, Name: "fortress_password_breached_rejected_total", Help: "Passwords rejected by the breach-corpus check."},
	{ID: fortress.MetricOAuthAuthorize, Name: "fortress_oauth_authorize_total", Help: "OAuth authorization round-trips started."},
	{ID: fortress.MetricOAuthSignIn, Name: "fortress_oauth_signin_total", Help: "Successful OAuth sign-ins."},
	{ID: fortress.MetricOAuthAccountLinked, Name: "fortress_oauth_account_linked_total", Help: "OAuth identities linked to existing users."},
	{ID: fortress.MetricOAuthFailure, Name: "fortress_oauth_failure_total", Help: "Failed OAuth callbacks."},
	{ID: fortress.MetricRateLimitHit, Name: "fortress_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

// HistogramDefs is the shared histogram table used by every exporter backend.
var HistogramDefs = []HistogramDef{
	{ID: fortress.MetricValidateLatency, Name: "fortress_validate_latency_seconds", Help: "ValidateSession latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the
// core's fixed 8-bucket layout.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix carries bound labels rewritten for backends that
// forbid dots in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies a snapshot slice into the fixed bucket array,
// tolerating short or missing slices.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus histograms require.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
