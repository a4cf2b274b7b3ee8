package zen

import (
	"context"
	"errors"
)

// Cleanup removes one bounded batch of expired sessions, verification codes,
// OAuth states and rate limit counters. It is safe to run concurrently with
// foreground operations, which reject expired records on their own.
//
// Every pass runs even when an earlier one fails; the report counts what was
// removed and the error joins all failures.
func (e *Engine) Cleanup(ctx context.Context) (CleanupReport, error) {
	var (
		report CleanupReport
		errs   []error
		err    error
	)

	if report.Sessions, err = e.sessions.Cleanup(ctx); err != nil {
		errs = append(errs, err)
	}
	if report.Verifications, err = e.codes.Cleanup(ctx); err != nil {
		errs = append(errs, err)
	}

	now := e.now()
	batch := e.config.Cleanup.BatchSize
	if report.OAuthStates, err = e.store.DeleteExpiredOAuthStates(ctx, now, batch); err != nil {
		errs = append(errs, err)
	}
	if report.RateLimits, err = e.store.DeleteExpiredRateLimits(ctx, now, batch); err != nil {
		errs = append(errs, err)
	}

	if e.metrics != nil {
		e.metrics.Add(MetricCleanupRemoved, uint64(report.Total()))
	}
	if len(errs) > 0 {
		return report, storageErr(errors.Join(errs...))
	}

	e.log.Debug().
		Int("sessions", report.Sessions).
		Int("verifications", report.Verifications).
		Int("oauth_states", report.OAuthStates).
		Int("rate_limits", report.RateLimits).
		Msg("cleanup pass")
	return report, nil
}
