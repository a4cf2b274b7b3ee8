package zen

import (
	"context"
	"errors"
	"strconv"

	"github.com/natedunn/convex-zen-sub000/session"
)

// ValidateSession resolves a bearer token to its user. Any token that does
// not map to a live session of an unbanned user yields ErrInvalidSession.
// Idle sessions are extended as a side effect, never past their absolute
// expiry.
func (e *Engine) ValidateSession(ctx context.Context, token string) (*SessionResult, error) {
	start := e.now()
	if e.metrics.LatencyEnabled() {
		defer func() {
			e.metrics.Observe(MetricValidateLatency, e.now().Sub(start))
		}()
	}

	res, err := e.sessions.Validate(ctx, token, true)
	if err != nil {
		if errors.Is(err, session.ErrInvalid) {
			e.metricInc(MetricSessionRejected)
			return nil, ErrInvalidSession
		}
		return nil, storageErr(err)
	}

	e.metricInc(MetricSessionValidated)
	return &SessionResult{UserID: res.UserID, SessionID: res.SessionID}, nil
}

// InvalidateSession signs out the session behind token. Unknown or already
// invalidated tokens are not an error.
func (e *Engine) InvalidateSession(ctx context.Context, token string) error {
	if err := e.sessions.Invalidate(ctx, token); err != nil {
		return storageErr(err)
	}
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventSessionInvalidated, true, auditEntry{})
	return nil
}

// InvalidateAllSessions signs userID out everywhere and returns the number
// of sessions removed.
func (e *Engine) InvalidateAllSessions(ctx context.Context, userID string) (int, error) {
	n, err := e.sessions.InvalidateAll(ctx, userID)
	if err != nil {
		return 0, storageErr(err)
	}
	if e.metrics != nil {
		e.metrics.Add(MetricSessionInvalidated, uint64(n))
	}
	e.emitAudit(ctx, auditEventSessionInvalidated, true, auditEntry{
		userID:   userID,
		metadata: map[string]string{"count": strconv.Itoa(n)},
	})
	return n, nil
}
