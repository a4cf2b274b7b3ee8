package zen

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/natedunn/convex-zen-sub000/internal/audit"
	"github.com/natedunn/convex-zen-sub000/internal/verification"
	"github.com/natedunn/convex-zen-sub000/store"
	"github.com/rs/zerolog"
)

// Mailer delivers codes the engine returns. The engine never calls it:
// callers pass SignUpResult.VerificationCode and
// PasswordResetRequestResult.ResetCode to their own Mailer.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, code string) error
	SendPasswordResetEmail(ctx context.Context, to, code string) error
}

/*
====================================
CREDENTIALS
====================================
*/

const (
	StatusVerificationRequired = "verification_required"
	StatusSent                 = "sent"
)

// SignUpRequest is the input to SignUp. Name is optional.
type SignUpRequest struct {
	Email    string
	Password string
	Name     string
}

// SignUpResult carries the raw verification code. It is not stored anywhere
// else and must be delivered to the user by the caller.
type SignUpResult struct {
	Status           string
	UserID           string
	VerificationCode string
	ExpiresAt        time.Time
}

// SignInRequest is the input to SignIn.
type SignInRequest struct {
	Email    string
	Password string
	// RequireEmailVerified rejects users whose email is not yet verified.
	RequireEmailVerified bool
}

// SignInResult carries the raw session token. Only its hash is stored.
type SignInResult struct {
	SessionToken string
	UserID       string
}

// VerifyResult is the outcome of checking a verification or reset code.
type VerifyResult = verification.Result

const (
	VerifyValid           = verification.Valid
	VerifyInvalid         = verification.Invalid
	VerifyExpired         = verification.Expired
	VerifyTooManyAttempts = verification.TooManyAttempts
)

// PasswordResetRequestResult always reports StatusSent. ResetCode is empty
// when no user owns the email.
type PasswordResetRequestResult struct {
	Status    string
	ResetCode string
	ExpiresAt time.Time
}

// ResendVerificationResult mirrors PasswordResetRequestResult for email
// verification codes.
type ResendVerificationResult struct {
	Status           string
	VerificationCode string
	ExpiresAt        time.Time
}

/*
====================================
SESSIONS
====================================
*/

// SessionResult identifies the owner of a valid session.
type SessionResult struct {
	UserID    string
	SessionID string
}

/*
====================================
OAUTH
====================================
*/

// Outcome reports how HandleCallback resolved the provider identity.
type Outcome string

const (
	OutcomeExisting Outcome = "existing"
	OutcomeLinked   Outcome = "linked"
	OutcomeCreated  Outcome = "created"
)

// CallbackRequest holds the query parameters the provider redirected with.
type CallbackRequest struct {
	ProviderID string
	Code       string
	State      string
	// RedirectURL is returned when the state record carries none.
	RedirectURL string
}

// CallbackResult is a freshly opened session for the resolved user.
type CallbackResult struct {
	SessionToken string
	UserID       string
	RedirectURL  string
	Outcome      Outcome
}

/*
====================================
ADMIN
====================================
*/

// ListUsersRequest selects one page. A zero Limit uses Admin.DefaultPageSize.
type ListUsersRequest struct {
	Limit  int
	Cursor string
}

// UserPage is one page of AdminListUsers.
type UserPage = store.UserPage

// BanRequest is the input to AdminBanUser.
type BanRequest struct {
	UserID string
	Reason string
	// ExpiresAt zero means a permanent ban.
	ExpiresAt time.Time
}

/*
====================================
CLEANUP
====================================
*/

// CleanupReport counts records removed by one Cleanup pass.
type CleanupReport struct {
	Sessions      int
	Verifications int
	OAuthStates   int
	RateLimits    int
}

// Total sums every table.
func (r CleanupReport) Total() int {
	return r.Sessions + r.Verifications + r.OAuthStates + r.RateLimits
}

/*
====================================
AUDIT
====================================
*/

// AuditEvent is one security event emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives events from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards events to a buffered channel, dropping them when it
// is full.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per event.
type JSONWriterSink = internalaudit.JSONWriterSink

// LogSink writes events through a zerolog.Logger.
type LogSink = internalaudit.LogSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLogSink writes audit events through log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return internalaudit.NewLogSink(log)
}
