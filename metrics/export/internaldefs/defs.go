package internaldefs

import (
	zen "github.com/natedunn/convex-zen-sub000"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   zen.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   zen.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for AuditDropped.
const (
	AuditDroppedName = "zen_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: zen.MetricSignUpSuccess, Name: "zen_sign_up_success_total", Help: "Completed sign-ups."},
	{ID: zen.MetricSignUpDuplicate, Name: "zen_sign_up_duplicate_total", Help: "Sign-ups rejected because the email is registered."},
	{ID: zen.MetricSignUpRateLimited, Name: "zen_sign_up_rate_limited_total", Help: "Rate-limited sign-up attempts."},
	{ID: zen.MetricSignInSuccess, Name: "zen_sign_in_success_total", Help: "Successful sign-ins."},
	{ID: zen.MetricSignInFailure, Name: "zen_sign_in_failure_total", Help: "Failed sign-ins."},
	{ID: zen.MetricSignInRateLimited, Name: "zen_sign_in_rate_limited_total", Help: "Rate-limited sign-in attempts."},
	{ID: zen.MetricEmailVerificationSuccess, Name: "zen_email_verification_success_total", Help: "Successful email verifications."},
	{ID: zen.MetricEmailVerificationFailure, Name: "zen_email_verification_failure_total", Help: "Rejected email verification codes."},
	{ID: zen.MetricPasswordResetRequest, Name: "zen_password_reset_request_total", Help: "Password reset requests."},
	{ID: zen.MetricPasswordResetSuccess, Name: "zen_password_reset_success_total", Help: "Completed password resets."},
	{ID: zen.MetricPasswordResetFailure, Name: "zen_password_reset_failure_total", Help: "Rejected password reset codes."},
	{ID: zen.MetricSessionCreated, Name: "zen_session_created_total", Help: "Created sessions."},
	{ID: zen.MetricSessionValidated, Name: "zen_session_validated_total", Help: "Successful session validations."},
	{ID: zen.MetricSessionRejected, Name: "zen_session_rejected_total", Help: "Session validations that found no live session."},
	{ID: zen.MetricSessionInvalidated, Name: "zen_session_invalidated_total", Help: "Sessions removed by sign-out or bulk invalidation."},
	{ID: zen.MetricOAuthAuthorize, Name: "zen_oauth_authorize_total", Help: "OAuth flows started."},
	{ID: zen.MetricOAuthCallbackSuccess, Name: "zen_oauth_callback_success_total", Help: "Completed OAuth callbacks."},
	{ID: zen.MetricOAuthCallbackFailure, Name: "zen_oauth_callback_failure_total", Help: "Failed OAuth callbacks."},
	{ID: zen.MetricAdminAction, Name: "zen_admin_action_total", Help: "Admin mutations applied."},
	{ID: zen.MetricAdminDenied, Name: "zen_admin_denied_total", Help: "Admin calls rejected for the actor."},
	{ID: zen.MetricUserBanned, Name: "zen_user_banned_total", Help: "Users banned."},
	{ID: zen.MetricUserDeleted, Name: "zen_user_deleted_total", Help: "Users deleted."},
	{ID: zen.MetricRateLimitHit, Name: "zen_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: zen.MetricCleanupRemoved, Name: "zen_cleanup_removed_total", Help: "Expired records removed by cleanup."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: zen.MetricValidateLatency, Name: "zen_validate_latency_seconds", Help: "Session validation latency."},
}

// HistogramBounds are the upper bounds of the engine's latency buckets in
// seconds, as Prometheus "le" labels.
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

// HistogramBoundValues mirrors HistogramBounds without the +Inf bucket.
var HistogramBoundValues = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
