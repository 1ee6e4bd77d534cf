package fortress

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditEventType identifies what happened, not why. Failure events carry
// the wire code of the rejection in Code.
type AuditEventType string

const (
	AuditSignUp                AuditEventType = "auth.signup"
	AuditSignUpFailed          AuditEventType = "auth.signup.failed"
	AuditSignIn                AuditEventType = "auth.signin"
	AuditSignInFailed          AuditEventType = "auth.signin.failed"
	AuditSignOut               AuditEventType = "auth.signout"
	AuditSignOutAll            AuditEventType = "auth.signout.all"
	AuditSessionRejected       AuditEventType = "auth.session.rejected"
	AuditEmailVerified         AuditEventType = "auth.email.verified"
	AuditEmailVerifyFailed     AuditEventType = "auth.email.verify.failed"
	AuditPasswordResetRequest  AuditEventType = "auth.password.reset.requested"
	AuditPasswordResetComplete AuditEventType = "auth.password.reset.completed"
	AuditPasswordResetFailed   AuditEventType = "auth.password.reset.failed"
	AuditAccountLocked         AuditEventType = "auth.account.locked"
	AuditRateLimited           AuditEventType = "auth.rate.limited"
	AuditOAuthAuthorize        AuditEventType = "auth.oauth.authorize"
	AuditOAuthSignIn           AuditEventType = "auth.oauth.signin"
	AuditOAuthFailed           AuditEventType = "auth.oauth.failed"
)

// AuditEvent is one immutable record of an authentication decision.
type AuditEvent struct {
	ID         string         `json:"id"`
	Type       AuditEventType `json:"type"`
	UserID     string         `json:"user_id,omitempty"`
	Email      string         `json:"email,omitempty"`
	ProviderID string         `json:"provider_id,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Code       string         `json:"code,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func newAuditEvent(t AuditEventType, now time.Time) AuditEvent {
	return AuditEvent{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: now,
	}
}

// AuditSink receives events from the dispatcher goroutine. Write must be
// safe for serial calls from a single goroutine; it should not block for
// long or the dispatcher buffer fills and events drop.
type AuditSink interface {
	Write(event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Write(AuditEvent) {}

// ChannelSink forwards events to a caller-owned channel, dropping when the
// channel is full. Useful for tests and custom pipelines.
type ChannelSink struct {
	C chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{C: make(chan AuditEvent, buffer)}
}

func (s *ChannelSink) Write(event AuditEvent) {
	select {
	case s.C <- event:
	default:
	}
}

// JSONWriterSink writes one JSON object per line to the underlying writer.
type JSONWriterSink struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{w: w, enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Write(event AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(event)
}
