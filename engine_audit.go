package zen

import (
	"context"
	"errors"
)

const (
	auditEventSignUp               = "sign_up"
	auditEventSignInSuccess        = "sign_in_success"
	auditEventSignInFailure        = "sign_in_failure"
	auditEventSignInRateLimited    = "sign_in_rate_limited"
	auditEventEmailVerification    = "email_verification"
	auditEventVerificationResend   = "email_verification_resend"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordReset        = "password_reset"
	auditEventSessionInvalidated   = "session_invalidated"
	auditEventOAuthAuthorize       = "oauth_authorize"
	auditEventOAuthCallback        = "oauth_callback"
	auditEventAdminBan             = "admin_ban"
	auditEventAdminUnban           = "admin_unban"
	auditEventAdminSetRole         = "admin_set_role"
	auditEventAdminDelete          = "admin_delete"
	auditEventAdminDenied          = "admin_denied"
)

// auditEntry is filled by each operation; zero fields are omitted from the
// emitted event.
type auditEntry struct {
	userID    string
	actorID   string
	sessionID string
	err       error
	metadata  map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, entry auditEntry) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		Type:      eventType,
		UserID:    entry.userID,
		ActorID:   entry.actorID,
		SessionID: entry.sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  entry.metadata,
	}
	if entry.err != nil {
		event.Error = auditErrorCode(entry.err)
	}
	e.audit.Emit(ctx, event)
}

// auditErrorCode reduces err to a stable code so raw storage or provider
// messages never reach audit sinks.
func auditErrorCode(err error) string {
	var zerr *Error
	if !errors.As(err, &zerr) {
		return KindInternal.String()
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrEmailNotVerified):
		return "email_not_verified"
	case errors.Is(err, ErrUserBanned):
		return "user_banned"
	case errors.Is(err, ErrInvalidOAuthState):
		return "invalid_state"
	case errors.Is(err, ErrAccountExists):
		return "duplicate"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	}
	return zerr.Kind.String()
}
