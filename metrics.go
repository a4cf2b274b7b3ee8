package zen

import (
	internalmetrics "github.com/natedunn/convex-zen-sub000/internal/metrics"
)

// MetricID identifies an engine counter or the validate latency histogram.
type MetricID = internalmetrics.MetricID

// Metrics is the engine's lock-free counter set.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy returned by Engine.MetricsSnapshot.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	MetricSignUpSuccess            = internalmetrics.MetricSignUpSuccess
	MetricSignUpDuplicate          = internalmetrics.MetricSignUpDuplicate
	MetricSignUpRateLimited        = internalmetrics.MetricSignUpRateLimited
	MetricSignInSuccess            = internalmetrics.MetricSignInSuccess
	MetricSignInFailure            = internalmetrics.MetricSignInFailure
	MetricSignInRateLimited        = internalmetrics.MetricSignInRateLimited
	MetricEmailVerificationSuccess = internalmetrics.MetricEmailVerificationSuccess
	MetricEmailVerificationFailure = internalmetrics.MetricEmailVerificationFailure
	MetricPasswordResetRequest     = internalmetrics.MetricPasswordResetRequest
	MetricPasswordResetSuccess     = internalmetrics.MetricPasswordResetSuccess
	MetricPasswordResetFailure     = internalmetrics.MetricPasswordResetFailure
	MetricSessionCreated           = internalmetrics.MetricSessionCreated
	MetricSessionValidated         = internalmetrics.MetricSessionValidated
	MetricSessionRejected          = internalmetrics.MetricSessionRejected
	MetricSessionInvalidated       = internalmetrics.MetricSessionInvalidated
	MetricOAuthAuthorize           = internalmetrics.MetricOAuthAuthorize
	MetricOAuthCallbackSuccess     = internalmetrics.MetricOAuthCallbackSuccess
	MetricOAuthCallbackFailure     = internalmetrics.MetricOAuthCallbackFailure
	MetricAdminAction              = internalmetrics.MetricAdminAction
	MetricAdminDenied              = internalmetrics.MetricAdminDenied
	MetricUserBanned               = internalmetrics.MetricUserBanned
	MetricUserDeleted              = internalmetrics.MetricUserDeleted
	MetricRateLimitHit             = internalmetrics.MetricRateLimitHit
	MetricCleanupRemoved           = internalmetrics.MetricCleanupRemoved
	MetricValidateLatency          = internalmetrics.MetricValidateLatency
)

// MetricIDCount is the number of defined metric IDs, the latency histogram
// included.
const MetricIDCount = internalmetrics.Count

// NewMetrics returns a counter set configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
